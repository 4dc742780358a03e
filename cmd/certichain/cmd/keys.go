package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	keysIssuer string
	keysJSON   bool
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect and manage registered public keys",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List public keys registered by an issuer",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysRetireCmd = &cobra.Command{
	Use:   "retire <fingerprint>",
	Short: "Retire a public key so it no longer verifies certificates",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRetire,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysListCmd, keysRetireCmd)
	keysListCmd.Flags().StringVar(&keysIssuer, "issuer", "", "Issuer id (default the current actor)")
	keysListCmd.Flags().BoolVar(&keysJSON, "json", false, "Output as JSON")
}

func runKeysList(cmd *cobra.Command, _ []string) error {
	issuer := keysIssuer
	if issuer == "" {
		issuer = actorID
	}
	return withApp(cmd, func(a *app) error {
		keys, err := a.registry.ListByIssuer(cmd.Context(), issuer)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if keysJSON {
			return writeJSON(out, keys)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FINGERPRINT\tCERTIFICATE\tCREATED\tRETIRED")
		for _, k := range keys {
			retired := "-"
			if k.RetiredAt != nil {
				retired = formatTime(*k.RetiredAt)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k.Fingerprint, k.CertUUID, formatTime(k.CreatedAt), retired)
		}
		return tw.Flush()
	})
}

func runKeysRetire(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app) error {
		key, err := a.registry.Retire(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Retired %s at %s\n", key.Fingerprint, formatTime(*key.RetiredAt))
		return nil
	})
}
