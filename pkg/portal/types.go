package portal

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultURL is the toxicological-exam lookup page.
const DefaultURL = "https://portalservicos.senatran.serpro.gov.br/#/condutor/consultar-toxicologico"

// DefaultUserAgent is reported instead of the headless/automation UA.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Selectors are the CSS selectors of the lookup form and its outcomes.
type Selectors struct {
	SubjectIdentifier  string `json:"subject_identifier" mapstructure:"subject_identifier"`
	BirthDate          string `json:"birth_date" mapstructure:"birth_date"`
	DocumentExpiryDate string `json:"document_expiry_date" mapstructure:"document_expiry_date"`
	Proceed            string `json:"proceed" mapstructure:"proceed"`
	Success            string `json:"success" mapstructure:"success"`
	Failure            string `json:"failure" mapstructure:"failure"`
	FailureTitle       string `json:"failure_title" mapstructure:"failure_title"`
	ResultRows         string `json:"result_rows" mapstructure:"result_rows"`
}

// DefaultSelectors returns the selectors of the production page.
func DefaultSelectors() Selectors {
	return Selectors{
		SubjectIdentifier:  `br-input[formcontrolname="cpf"] input`,
		BirthDate:          `br-date-picker[formcontrolname="dataNascimento"] input`,
		DocumentExpiryDate: `br-date-picker[formcontrolname="dataValidade"] input`,
		Proceed:            `button.br-button.primary`,
		Success:            `h3.text-primary`,
		Failure:            `.br-message.is-danger`,
		FailureTitle:       `.br-message.is-danger .title`,
		ResultRows:         `app-consulta-toxicologico table tr`,
	}
}

// Config configures the Chrome process and the pages it opens.
type Config struct {
	URL            string
	Headless       bool
	ChromePath     string
	UserDataDir    string
	NoSandbox      bool
	WindowWidth    int
	WindowHeight   int
	UserAgent      string
	AcceptLanguage string
	KeystrokeDelay time.Duration
	// NetworkIdle is the quiet period that ends navigation.
	NetworkIdle  time.Duration
	BlockedHosts []string
	Selectors    Selectors
}

// DefaultConfig returns the settings used against the production portal.
func DefaultConfig() *Config {
	return &Config{
		URL:            DefaultURL,
		Headless:       false,
		UserDataDir:    DefaultUserDataDir(),
		NoSandbox:      true,
		WindowWidth:    1920,
		WindowHeight:   1080,
		UserAgent:      DefaultUserAgent,
		AcceptLanguage: "pt-BR,pt;q=0.9",
		KeystrokeDelay: 120 * time.Millisecond,
		NetworkIdle:    500 * time.Millisecond,
		BlockedHosts:   []string{"googlesyndication", "doubleclick", "analytics"},
		Selectors:      DefaultSelectors(),
	}
}

// DefaultUserDataDir returns ~/.chrome_senatran_profile, or a temp dir path
// when the home directory is unknown.
func DefaultUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "chrome_senatran_profile")
	}
	return filepath.Join(home, ".chrome_senatran_profile")
}

// Error types
type PortalError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

func (e *PortalError) Error() string {
	return e.Message
}

func (e *PortalError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNavigation      = "NAVIGATION_ERROR"
	ErrCodeElementNotFound = "ELEMENT_NOT_FOUND"
	ErrCodeScriptExecution = "SCRIPT_EXECUTION_ERROR"
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
	ErrCodeConfiguration   = "CONFIGURATION_ERROR"
	ErrCodeSessionClosed   = "SESSION_CLOSED"
)
