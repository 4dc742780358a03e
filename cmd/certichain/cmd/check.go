package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/custody"
)

// ---------------------------------------------------------------------------
// Result types
// ---------------------------------------------------------------------------

type recordCheck struct {
	File     string        `json:"file"`
	CertUUID string        `json:"cert_uuid"`
	Valid    bool          `json:"valid"`
	Checks   []checkResult `json:"checks"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "fail", "warn"
	Detail string `json:"detail,omitempty"`
}

func (r *recordCheck) pass(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "pass", Detail: detail})
}

func (r *recordCheck) warn(name, detail string) {
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "warn", Detail: detail})
}

func (r *recordCheck) fail(name, detail string) {
	r.Valid = false
	r.Checks = append(r.Checks, checkResult{Name: name, Status: "fail", Detail: detail})
}

// ---------------------------------------------------------------------------
// Core checks
// ---------------------------------------------------------------------------

// checkRecord inspects an exported record without any storage. It trusts
// only the public key embedded in the record, so a pass proves integrity of
// the export, not the identity of its issuer.
func checkRecord(v *certificate.Verifier, rec *certificate.Record) recordCheck {
	result := recordCheck{CertUUID: rec.CertUUID, Valid: true}

	// 1. Payload completeness.
	payloadOK := true
	if err := rec.Payload().Validate(); err != nil {
		payloadOK = false
		result.fail("payload_complete", err.Error())
	} else {
		result.pass("payload_complete", "")
	}

	// 2. Signature encoding.
	sigOK := true
	if sig, err := certificate.DecodeSignature(rec.Signature); err != nil {
		sigOK = false
		result.fail("signature_format", err.Error())
	} else {
		result.pass("signature_format", fmt.Sprintf("%d byte signature", len(sig)))
	}

	// 3. Public key encoding.
	fp, err := custody.FingerprintPEM(rec.PublicKey)
	keyOK := err == nil
	if keyOK {
		_, err = custody.NewSoftwareCustody().ImportPublicKey(rec.PublicKey)
		keyOK = err == nil
	}
	if keyOK {
		result.pass("public_key_format", "")
	} else {
		result.fail("public_key_format", err.Error())
	}

	// 4. Fingerprint matches the embedded key.
	switch {
	case !keyOK:
		result.warn("fingerprint_match", "skipped: public key unreadable")
	case rec.Fingerprint == "":
		result.warn("fingerprint_match", "record carries no fingerprint")
	case custody.NormalizeFingerprint(rec.Fingerprint) != fp:
		result.fail("fingerprint_match", fmt.Sprintf("record says %s, key hashes to %s", rec.Fingerprint, fp))
	default:
		result.pass("fingerprint_match", fp)
	}

	// 5. Signature over the canonical payload.
	if payloadOK && sigOK && keyOK {
		valid, err := v.VerifyRecord(rec)
		switch {
		case err != nil:
			result.fail("signature_valid", err.Error())
		case !valid:
			result.fail("signature_valid", "signature does not match payload")
		default:
			result.pass("signature_valid", "")
		}
	} else {
		result.fail("signature_valid", "skipped: payload, signature or key unusable")
	}

	// 6. Status.
	if rec.Revoked() {
		detail := "certificate was revoked"
		if rec.RevokedAt != nil {
			detail = fmt.Sprintf("revoked at %s by %s", formatTime(*rec.RevokedAt), rec.RevokedBy)
		}
		result.fail("status_active", detail)
	} else {
		result.pass("status_active", "")
	}

	// 7. Audit log shape.
	checkAuditLog(&result, rec)

	return result
}

func checkAuditLog(result *recordCheck, rec *certificate.Record) {
	if len(rec.AuditLog) == 0 {
		result.warn("audit_log", "no audit entries")
		return
	}
	first := rec.AuditLog[0]
	if first.Action != certificate.ActionCreated {
		result.fail("audit_log", fmt.Sprintf("first entry is %q, expected %q", first.Action, certificate.ActionCreated))
		return
	}
	if rec.CreatedBy != "" && first.UserID != rec.CreatedBy {
		result.fail("audit_log", fmt.Sprintf("created by %s but first entry names %s", rec.CreatedBy, first.UserID))
		return
	}

	revocations := 0
	for _, e := range rec.AuditLog {
		if e.Action == certificate.ActionRevoked {
			revocations++
		}
	}
	switch {
	case rec.Revoked() && revocations == 0:
		result.fail("audit_log", "status is revoked but no revoked entry exists")
		return
	case !rec.Revoked() && revocations > 0:
		result.fail("audit_log", "revoked entry present on an active certificate")
		return
	case revocations > 1:
		result.fail("audit_log", fmt.Sprintf("%d revoked entries", revocations))
		return
	}

	for i := 1; i < len(rec.AuditLog); i++ {
		if rec.AuditLog[i].Timestamp.Before(rec.AuditLog[i-1].Timestamp) {
			result.warn("audit_log", fmt.Sprintf("entry %d is earlier than entry %d", i, i-1))
			return
		}
	}
	result.pass("audit_log", fmt.Sprintf("%d entries", len(rec.AuditLog)))
}

// ---------------------------------------------------------------------------
// Output formatting
// ---------------------------------------------------------------------------

func printHumanCheck(w io.Writer, result recordCheck) {
	fmt.Fprintf(w, "Certificate check: %s\n", result.File)
	fmt.Fprintf(w, "UUID: %s\n\n", result.CertUUID)

	failures, warnings := 0, 0
	for _, c := range result.Checks {
		tag := "[PASS]"
		switch c.Status {
		case "fail":
			tag = "[FAIL]"
			failures++
		case "warn":
			tag = "[WARN]"
			warnings++
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s %s\n", tag, c.Name)
		}
	}

	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintln(w, "Result: VALID")
	} else {
		fmt.Fprintf(w, "Result: INVALID (%d error(s), %d warning(s))\n", failures, warnings)
	}
}

// ---------------------------------------------------------------------------
// Cobra command
// ---------------------------------------------------------------------------

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check <record.json>",
	Short: "Check an exported certificate record offline",
	Long: `Reads a certificate record exported with "show --json" and checks it
without touching storage: payload completeness, signature and key encoding,
fingerprint, signature validity against the embedded key, status and audit log.

The embedded key proves the record was not altered after signing. It does not
prove who signed it; use "verify" against the key registry for that.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output results as JSON")
}

func runCheck(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	data, err := os.ReadFile(filePath)
	if err != nil {
		return usageError(fmt.Errorf("cannot read file: %w", err))
	}
	var rec certificate.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return usageError(fmt.Errorf("invalid JSON: %w", err))
	}

	result := checkRecord(certificate.NewVerifier(custody.NewSoftwareCustody()), &rec)
	result.File = filePath

	out := cmd.OutOrStdout()
	if checkJSON {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		printHumanCheck(out, result)
	}

	if !result.Valid {
		return &exitError{code: exitNotVerified}
	}
	return nil
}
