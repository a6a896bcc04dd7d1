package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solarnautics/relaymail/pkg/config"
)

var (
	envFile  string
	logLevel string
	trace    bool
)

var rootCmd = &cobra.Command{
	Use:   "relaymail",
	Short: "Send email through an SMTP relay",
	Long: `relaymail sends an HTML email, optionally with attachments, through an SMTP relay.

Every flag falls back to an environment variable of the same meaning, which
may also come from a .env file. Flags win over the environment, the
environment wins over the .env file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Environment file to load if present")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "Print OpenTelemetry spans to stderr")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func GetRoot() *cobra.Command {
	return rootCmd
}

// SetInfo overrides the name and descriptions shown in help output
func SetInfo(use, short, long string) {
	rootCmd.Use = use
	rootCmd.Short = short
	rootCmd.Long = long
}

// EnvFile returns the value of --env-file
func EnvFile() string {
	return envFile
}

// LogLevel returns the value of --log-level, empty when unset
func LogLevel() string {
	return logLevel
}

// TraceEnabled reports whether --trace was given
func TraceEnabled() bool {
	return trace
}
