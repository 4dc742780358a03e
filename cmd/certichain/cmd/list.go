package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmcleod/certichain/certificate"
	"github.com/jmcleod/certichain/service"
)

var (
	listStatus string
	listJSON   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the certificates issued by the current actor",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (active or revoked)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
}

type listOutput struct {
	Stats        service.Stats         `json:"stats"`
	Certificates []*certificate.Record `json:"certificates"`
}

func runList(cmd *cobra.Command, _ []string) error {
	status, err := certificate.ParseStatus(listStatus)
	if err != nil {
		return usageError(err)
	}
	return withApp(cmd, func(a *app) error {
		records, err := a.svc.List(cmd.Context(), actorID, status)
		if err != nil {
			return err
		}
		stats, err := a.svc.Stats(cmd.Context(), actorID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if listJSON {
			return writeJSON(out, listOutput{Stats: stats, Certificates: records})
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "UUID\tRECIPIENT\tCOURSE\tISSUE DATE\tSTATUS")
		for _, rec := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rec.CertUUID, rec.RecipientName, rec.CourseName, rec.IssueDate, rec.Status)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d total, %d active, %d revoked\n", stats.Total, stats.Active, stats.Revoked)
		return nil
	})
}
