package batch

import (
	"encoding/json"
	"strings"
	"time"
)

// Query is one subject's lookup request. It is immutable once submitted.
type Query struct {
	Identifier         string `json:"id,omitempty"`
	SubjectIdentifier  string `json:"subject_identifier"`
	BirthDate          string `json:"birth_date"`          // dd/mm/yyyy
	DocumentExpiryDate string `json:"document_expiry_date"` // dd/mm/yyyy
}

// UnmarshalJSON accepts the legacy roster field names (cpf, birthday,
// cnh_due_at) alongside the canonical ones.
func (q *Query) UnmarshalJSON(data []byte) error {
	type plain Query
	var aux struct {
		plain
		CPF      string `json:"cpf"`
		Birthday string `json:"birthday"`
		CNHDueAt string `json:"cnh_due_at"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*q = Query(aux.plain)
	if q.SubjectIdentifier == "" {
		q.SubjectIdentifier = aux.CPF
	}
	if q.BirthDate == "" {
		q.BirthDate = aux.Birthday
	}
	if q.DocumentExpiryDate == "" {
		q.DocumentExpiryDate = aux.CNHDueAt
	}
	return nil
}

// MissingFields lists the required fields that are empty.
func (q Query) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(q.SubjectIdentifier) == "" {
		missing = append(missing, "subject_identifier")
	}
	if strings.TrimSpace(q.BirthDate) == "" {
		missing = append(missing, "birth_date")
	}
	if strings.TrimSpace(q.DocumentExpiryDate) == "" {
		missing = append(missing, "document_expiry_date")
	}
	return missing
}

// Validate returns a validation error when a required field is missing.
func (q Query) Validate() error {
	missing := q.MissingFields()
	if len(missing) == 0 {
		return nil
	}
	return &Error{
		Kind:    KindValidation,
		Message: "missing required fields (" + strings.Join(missing, ", ") + ")",
	}
}

// Record is the wire form of a lookup outcome.
type Record struct {
	Success             bool    `json:"success"`
	ExpiredAt           *string `json:"expired_at"`
	CollectionDate      *string `json:"collection_date"`
	CapturedImageBase64 *string `json:"captured_image_base64"`
	Error               *string `json:"error"`
}

// Result is the terminal outcome for one Query.
type Result struct {
	Payload Query  `json:"payload"`
	Result  Record `json:"result"`

	Attempts int           `json:"-"`
	Kind     ErrorKind     `json:"-"`
	Duration time.Duration `json:"-"`
}

// Status returns "success" or "error".
func (r Result) Status() string {
	if r.Result.Success {
		return "success"
	}
	return "error"
}

func failedResult(q Query, err error) Result {
	msg := err.Error()
	return Result{
		Payload: q,
		Result: Record{
			Success: false,
			Error:   &msg,
		},
		Kind: KindOf(err),
	}
}
