package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/trust"
)

var (
	verifyJSON   bool
	verifyRecord bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify <cert-uuid>",
	Short: "Check a stored certificate's signature and status",
	Long: `Verify evaluates a stored certificate from scratch: it must exist, must not
be revoked, its issuer key must be available and its signature must match the
payload. The command exits 1 when the certificate is not verified.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Output the verdict as JSON")
	verifyCmd.Flags().BoolVar(&verifyRecord, "record", false, "Append a verified event to the audit log")
}

func runVerify(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		res := a.svc.Verify(cmd.Context(), args[0])
		if verifyRecord && res.State != trust.StateNotFound {
			if _, err := a.svc.RecordAccess(cmd.Context(), args[0], certificate.ActionVerified, actorID); err != nil {
				a.logger.Warn("failed to record verification", "cert_uuid", args[0], "error", err)
			}
		}

		out := cmd.OutOrStdout()
		if verifyJSON {
			if err := writeJSON(out, res); err != nil {
				return err
			}
		} else {
			printVerdict(cmd, a, res)
		}
		if !res.Verified {
			return &exitError{code: exitNotVerified}
		}
		return nil
	})
}

func printVerdict(cmd *cobra.Command, a *app, res trust.Result) {
	out := cmd.OutOrStdout()
	if res.Certificate != nil {
		printRecord(out, res.Certificate, a.svc.VerificationURL(res.Certificate.CertUUID))
		fmt.Fprintln(out)
	}
	tag := "[PASS]"
	if !res.Verified {
		tag = "[FAIL]"
	}
	fmt.Fprintf(out, "%s %s: %s\n", tag, res.State, res.Reason)
	if res.PublicKeyFingerprint != "" {
		fmt.Fprintf(out, "Key: %s\n", res.PublicKeyFingerprint)
	}
	fmt.Fprintf(out, "Checked at: %s\n", formatTime(res.CheckedAt))
}
