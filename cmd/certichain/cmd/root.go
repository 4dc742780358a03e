package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK          = 0
	exitNotVerified = 1
	exitUsage       = 2
)

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

var (
	configPath string
	dataDir    string
	actorID    string
)

var rootCmd = &cobra.Command{
	Use:   "certichain",
	Short: "CertiChain issues and verifies signed completion certificates",
	Long: `Issue, verify and revoke digitally signed completion certificates.

Each certificate is signed with its own RSA-PSS key. Public keys are kept in a
key registry apart from the certificate records, and every verification is
decided afresh from the stored record, its status and its signature.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return run(rootCmd, os.Args[1:])
}

func run(root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	return exitUsage
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data (overrides storage.path)")
	rootCmd.PersistentFlags().StringVar(&actorID, "actor", defaultActor(), "User id recorded as issuer, revoker or viewer")
}

func defaultActor() string {
	if a := os.Getenv("CERTICHAIN_ACTOR"); a != "" {
		return a
	}
	return "local-issuer"
}
