// Package canonical turns certificate payload fields into the exact byte
// sequence that is signed at issuance and reconstructed at verification.
//
// The encoding is a UTF-8 JSON object whose keys are sorted
// lexicographically and which carries no insignificant whitespace. Every
// value is trimmed and normalised to Unicode NFC first, so two payloads
// with the same field values always produce identical bytes no matter how
// they were built.
package canonical

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Field names of the signed payload.
const (
	FieldCertUUID      = "cert_uuid"
	FieldRecipientName = "recipient_name"
	FieldCourseName    = "course_name"
	FieldIssuerName    = "issuer_name"
	FieldIssueDate     = "issue_date"
)

// ErrValidation is returned when a required payload field is missing or
// empty after trimming.
var ErrValidation = errors.New("invalid certificate payload")

// ValidationError names the payload field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Payload is the signed content of a certificate. All five fields take
// part in every signature.
type Payload struct {
	CertUUID      string `json:"cert_uuid"`
	RecipientName string `json:"recipient_name"`
	CourseName    string `json:"course_name"`
	IssuerName    string `json:"issuer_name"`
	IssueDate     string `json:"issue_date"`
}

// Fields returns the payload as a key/value map using the wire field names.
func (p Payload) Fields() map[string]string {
	return map[string]string{
		FieldCertUUID:      p.CertUUID,
		FieldRecipientName: p.RecipientName,
		FieldCourseName:    p.CourseName,
		FieldIssuerName:    p.IssuerName,
		FieldIssueDate:     p.IssueDate,
	}
}

// Normalize returns a copy of p with every field trimmed and NFC-normalised.
func (p Payload) Normalize() Payload {
	return Payload{
		CertUUID:      normalizeValue(p.CertUUID),
		RecipientName: normalizeValue(p.RecipientName),
		CourseName:    normalizeValue(p.CourseName),
		IssuerName:    normalizeValue(p.IssuerName),
		IssueDate:     normalizeValue(p.IssueDate),
	}
}

// Validate checks that every field is valid UTF-8 and non-empty after
// normalisation.
func (p Payload) Validate() error {
	for _, f := range []struct{ name, value string }{
		{FieldCertUUID, p.CertUUID},
		{FieldCourseName, p.CourseName},
		{FieldIssueDate, p.IssueDate},
		{FieldIssuerName, p.IssuerName},
		{FieldRecipientName, p.RecipientName},
	} {
		if !utf8.ValidString(f.value) {
			return &ValidationError{Field: f.name, Reason: "contains invalid UTF-8"}
		}
		if normalizeValue(f.value) == "" {
			return &ValidationError{Field: f.name, Reason: "is required"}
		}
	}
	return nil
}

// FieldNames returns the payload field names in canonical (sorted) order.
func FieldNames() []string {
	return []string{FieldCertUUID, FieldCourseName, FieldIssueDate, FieldIssuerName, FieldRecipientName}
}

// PayloadFromFields builds a Payload from a field map. Unknown keys are
// rejected so that no extra data can ride along unsigned.
func PayloadFromFields(fields map[string]string) (Payload, error) {
	var p Payload
	for k, v := range fields {
		switch k {
		case FieldCertUUID:
			p.CertUUID = v
		case FieldRecipientName:
			p.RecipientName = v
		case FieldCourseName:
			p.CourseName = v
		case FieldIssuerName:
			p.IssuerName = v
		case FieldIssueDate:
			p.IssueDate = v
		default:
			return Payload{}, &ValidationError{Field: k, Reason: "is not a payload field"}
		}
	}
	return p, nil
}

// Canonicalize validates p and returns its canonical bytes.
func Canonicalize(p Payload) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return encodeObject(p.Normalize().Fields()), nil
}

// CanonicalizeFields is Canonicalize for a field map.
func CanonicalizeFields(fields map[string]string) ([]byte, error) {
	p, err := PayloadFromFields(fields)
	if err != nil {
		return nil, err
	}
	return Canonicalize(p)
}

func normalizeValue(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func encodeObject(obj map[string]string) []byte {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(&buf, k)
		buf.WriteByte(':')
		writeString(&buf, obj[k])
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// writeString emits a JSON string literal. Only the characters JSON
// requires to be escaped are escaped; everything else is written as UTF-8.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexLower[r>>4])
				buf.WriteByte(hexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

var hexLower = []byte("0123456789abcdef")
