package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/certichain/certificate"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <cert-uuid>",
	Short: "Show a certificate record and its audit log",
	Long: `Show prints a stored certificate with its audit log and records a viewed
event for the current actor.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output the record as JSON")
}

func runShow(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		rec, err := a.svc.RecordAccess(cmd.Context(), args[0], certificate.ActionViewed, actorID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if showJSON {
			return writeJSON(out, rec)
		}
		printRecord(out, rec, a.svc.VerificationURL(rec.CertUUID))
		fmt.Fprintln(out)
		printAuditLog(out, rec.AuditLog)
		return nil
	})
}
