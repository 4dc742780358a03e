package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmcleod/certichain/certificate"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func printRecord(w io.Writer, rec *certificate.Record, verifyURL string) {
	fmt.Fprintf(w, "Certificate: %s\n", rec.CertUUID)
	fmt.Fprintf(w, "  Recipient:   %s\n", rec.RecipientName)
	fmt.Fprintf(w, "  Course:      %s\n", rec.CourseName)
	fmt.Fprintf(w, "  Issuer:      %s\n", rec.IssuerName)
	fmt.Fprintf(w, "  Issue date:  %s\n", rec.IssueDate)
	fmt.Fprintf(w, "  Status:      %s\n", rec.Status)
	fmt.Fprintf(w, "  Owner:       %s\n", rec.CreatedBy)
	fmt.Fprintf(w, "  Created:     %s\n", formatTime(rec.CreatedAt))
	if rec.RevokedAt != nil {
		fmt.Fprintf(w, "  Revoked:     %s by %s\n", formatTime(*rec.RevokedAt), rec.RevokedBy)
	}
	fmt.Fprintf(w, "  Algorithm:   %s\n", rec.Algorithm)
	fmt.Fprintf(w, "  Fingerprint: %s\n", rec.Fingerprint)
	if rec.Notes != "" {
		fmt.Fprintf(w, "  Notes:       %s\n", rec.Notes)
	}
	if verifyURL != "" {
		fmt.Fprintf(w, "  Verify at:   %s\n", verifyURL)
	}
}

func printAuditLog(w io.Writer, events []certificate.AuditEvent) {
	fmt.Fprintf(w, "Audit log (%d):\n", len(events))
	for _, e := range events {
		line := fmt.Sprintf("  %s  %-8s %s", formatTime(e.Timestamp), e.Action, e.UserID)
		if e.Reason != "" {
			line += " (" + e.Reason + ")"
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
