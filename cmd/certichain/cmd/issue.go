package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/certichain/service"
)

var (
	issueReq  service.IssueRequest
	issueJSON bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign and store a new certificate",
	Long: `Issue signs the certificate payload with a freshly generated RSA-PSS key,
stores the record and registers the public key. The private key is destroyed
as soon as the signature exists.`,
	Args: cobra.NoArgs,
	RunE: runIssue,
}

func init() {
	rootCmd.AddCommand(issueCmd)
	f := issueCmd.Flags()
	f.StringVar(&issueReq.RecipientName, "recipient", "", "Recipient name (required)")
	f.StringVar(&issueReq.CourseName, "course", "", "Course name (required)")
	f.StringVar(&issueReq.IssuerName, "issuer", "", "Issuing organisation (required)")
	f.StringVar(&issueReq.IssueDate, "date", "", "Issue date as YYYY-MM-DD (default today)")
	f.StringVar(&issueReq.CertUUID, "uuid", "", "Certificate UUID (default generated)")
	f.StringVar(&issueReq.Notes, "notes", "", "Free-form notes kept with the record")
	f.BoolVar(&issueJSON, "json", false, "Output the stored record as JSON")
}

func runIssue(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app) error {
		sess, err := a.svc.NewSession(actorID)
		if err != nil {
			return usageError(err)
		}
		defer sess.Close()

		rec, err := a.svc.Issue(cmd.Context(), sess, issueReq)
		if err != nil && !(rec != nil && errors.Is(err, service.ErrRegistration)) {
			return err
		}
		out := cmd.OutOrStdout()
		if err != nil {
			a.logger.Warn("certificate stored without registered key",
				"cert_uuid", rec.CertUUID, "error", err)
		}
		if issueJSON {
			return writeJSON(out, rec)
		}
		printRecord(out, rec, a.svc.VerificationURL(rec.CertUUID))
		fmt.Fprintf(out, "\nSignature:\n%s\n", rec.Signature)
		return nil
	})
}
