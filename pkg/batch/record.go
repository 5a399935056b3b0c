package batch

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// NoRecordPhrase is the portal's wording for an empty field.
const NoRecordPhrase = "Não há registro"

// DateTimeLayout is the normalized form of extracted dates.
const DateTimeLayout = "2006-01-02 15:04:05.000"

const portalDateLayout = "02/01/2006"

var portalDatePattern = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)

// FieldMap names the result-table labels that feed each Record field.
type FieldMap struct {
	ExpiredAt      string
	CollectionDate string
	NoRecord       string
}

// DefaultFieldMap returns the labels used by the toxicological-exam page.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		ExpiredAt:      "Prazo para realização de novo exame",
		CollectionDate: "Amostra para novo exame coletada em",
		NoRecord:       NoRecordPhrase,
	}
}

// Apply fills the extracted fields of rec from a raw label/value table.
func (f FieldMap) Apply(raw map[string]string, rec *Record) {
	rec.ExpiredAt = f.normalize(raw[f.ExpiredAt])
	rec.CollectionDate = f.normalize(raw[f.CollectionDate])
}

func (f FieldMap) normalize(text string) *string {
	sentinel := f.NoRecord
	if sentinel == "" {
		sentinel = NoRecordPhrase
	}
	if strings.Contains(text, sentinel) {
		return nil
	}
	return NormalizeDate(text)
}

// NormalizeDate finds the first dd/mm/yyyy date in text and returns it as
// midnight in DateTimeLayout. Text without a valid date yields nil, and so
// does a well-formed date that is not on the calendar, such as 31/02.
func NormalizeDate(text string) *string {
	if text == "" || strings.Contains(text, NoRecordPhrase) {
		return nil
	}

	match := portalDatePattern.FindString(text)
	if match == "" {
		return nil
	}

	t, err := time.Parse(portalDateLayout, match)
	if err != nil {
		log.Warn().Err(err).Str("date", match).Msg("Portal returned an impossible date, recording it as empty")
		return nil
	}

	out := t.Format(DateTimeLayout)
	return &out
}
