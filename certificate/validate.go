package certificate

import (
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jmcleod/certichain/canonical"
)

const (
	// MaxIDLength bounds record ids, cert_uuids and actor ids.
	MaxIDLength = 256

	// MaxFieldLength bounds each signed payload value.
	MaxFieldLength = 1024

	// MaxNotesLength bounds the free-text notes kept on a record.
	MaxNotesLength = 4096

	// DateLayout is the ISO date format of issue_date.
	DateLayout = "2006-01-02"
)

func validationErrorf(field, reason string) error {
	return &canonical.ValidationError{Field: field, Reason: reason}
}

// validateID checks identifiers that end up in storage keys.
func validateID(id, label string) error {
	if id == "" {
		return validationErrorf(label, "must not be empty")
	}
	if len(id) > MaxIDLength {
		return validationErrorf(label, "exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return validationErrorf(label, "contains invalid UTF-8")
	}
	for _, r := range id {
		if r == ':' || r == '/' {
			return validationErrorf(label, "contains forbidden character "+string(r))
		}
		if unicode.IsControl(r) {
			return validationErrorf(label, "contains control character")
		}
	}
	return nil
}

// ValidateID reports whether id can be used as a cert_uuid, owner or actor id.
func ValidateID(id, label string) error {
	return validateID(id, label)
}

// ValidateIssueDate checks that s is a calendar date in YYYY-MM-DD form.
func ValidateIssueDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return validationErrorf(canonical.FieldIssueDate, "must be a date in YYYY-MM-DD form")
	}
	return nil
}

func validatePayload(p canonical.Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := validateID(p.CertUUID, canonical.FieldCertUUID); err != nil {
		return err
	}
	for name, value := range p.Fields() {
		if len(value) > MaxFieldLength {
			return validationErrorf(name, "exceeds maximum length")
		}
		if !utf8.ValidString(value) {
			return validationErrorf(name, "contains invalid UTF-8")
		}
	}
	return nil
}
