package root

import (
	"testing"

	"github.com/solarnautics/relaymail/pkg/config"
)

func TestSetInfo(t *testing.T) {
	// Save original values
	origUse := rootCmd.Use
	origShort := rootCmd.Short
	origLong := rootCmd.Long
	defer func() {
		// Restore original values
		rootCmd.Use = origUse
		rootCmd.Short = origShort
		rootCmd.Long = origLong
	}()

	use := "test-app"
	short := "Test Short"
	long := "Test Long Description"

	SetInfo(use, short, long)

	if rootCmd.Use != use {
		t.Errorf("Expected Use to be %s, got %s", use, rootCmd.Use)
	}
	if rootCmd.Short != short {
		t.Errorf("Expected Short to be %s, got %s", short, rootCmd.Short)
	}
	if rootCmd.Long != long {
		t.Errorf("Expected Long to be %s, got %s", long, rootCmd.Long)
	}
}

func TestPersistentFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()
	if err := flags.Parse([]string{"--env-file", "prod.env", "--log-level", "debug", "--trace"}); err != nil {
		t.Fatalf("Unexpected parse error: %v", err)
	}
	defer func() {
		envFile, logLevel, trace = config.DefaultEnvFile, "", false
	}()

	if EnvFile() != "prod.env" {
		t.Errorf("Expected env file prod.env, got %s", EnvFile())
	}
	if LogLevel() != "debug" {
		t.Errorf("Expected log level debug, got %s", LogLevel())
	}
	if !TraceEnabled() {
		t.Errorf("Expected trace to be enabled")
	}
}
