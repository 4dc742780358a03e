package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var revokeReason string

var revokeCmd = &cobra.Command{
	Use:   "revoke <cert-uuid>",
	Short: "Revoke a certificate you issued",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevoke,
}

func init() {
	rootCmd.AddCommand(revokeCmd)
	revokeCmd.Flags().StringVar(&revokeReason, "reason", "", "Reason recorded in the audit log")
}

func runRevoke(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		sess, err := a.svc.NewSession(actorID)
		if err != nil {
			return usageError(err)
		}
		defer sess.Close()

		rec, err := a.svc.Revoke(cmd.Context(), sess, args[0], revokeReason)
		if err != nil {
			return err
		}
		ev := rec.AuditLog[len(rec.AuditLog)-1]
		fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s at %s (%s)\n", rec.CertUUID, formatTime(ev.Timestamp), ev.Reason)
		return nil
	})
}
