package logger

import (
	"io"
	"regexp"
)

// redactionRule replaces every match of re with repl. repl may use $n
// references to keep part of the match.
type redactionRule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor redacts sensitive information from logs
type Redactor struct {
	rules []redactionRule
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []redactionRule{
			// CPF, bare or punctuated. The check digits stay visible for correlation.
			{regexp.MustCompile(`\b\d{3}\.?\d{3}\.?\d{3}-?(\d{2})\b`), "***.***.***-$1"},

			// Bearer tokens
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`), "[REDACTED]"},

			// AWS keys
			{regexp.MustCompile(`(AKIA|ASIA)[0-9A-Z]{16}`), "[REDACTED]"},
			{regexp.MustCompile(`(?i)(aws_secret_access_key|secret_access_key|SecretAccessKey)["\s:=]+[A-Za-z0-9/+=]{40}`), "[REDACTED]"},

			// SQS receipt handles are bearer credentials for DeleteMessage
			{regexp.MustCompile(`(?i)receipt_?handle["\s:=]+[^\s",}]+`), "[REDACTED]"},

			// Passwords
			{regexp.MustCompile(`password["\s:=]+[^\s"]+`), "[REDACTED]"},
			{regexp.MustCompile(`pwd["\s:=]+[^\s"]+`), "[REDACTED]"},

			// Auth tokens
			{regexp.MustCompile(`token["\s:=]+[a-zA-Z0-9._-]{20,}`), "[REDACTED]"},

			// Generic secrets
			{regexp.MustCompile(`secret["\s:=]+[^\s"]+`), "[REDACTED]"},
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactionRule{re: re, repl: "[REDACTED]"})
	return nil
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	result := s
	for _, rule := range r.rules {
		result = rule.re.ReplaceAllString(result, rule.repl)
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

// redactingWriter is an io.Writer that redacts sensitive information
type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success since the redacted length differs.
func (w *redactingWriter) Write(p []byte) (n int, err error) {
	redacted := w.redactor.Redact(string(p))
	if _, err := w.writer.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
