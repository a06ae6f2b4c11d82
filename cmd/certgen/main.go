// Command certgen produces numbered, QR-stamped, owner-protected PDF
// certificates from a roster and a DOCX template.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/certgen/internal/config"
	"github.com/Lllllllleong/certgen/internal/logging"
	"github.com/Lllllllleong/certgen/internal/services"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "certgen",
	Short:         "Produce numbered, verifiable PDF certificates",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to certgen.yaml (default: ./"+config.DefaultPath+" if present)")
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(verifyCmd)
}

// loadConfig reads the config and installs the logger it describes.
func loadConfig() (config.Config, error) {
	path, required := configPath, true
	if path == "" {
		path, required = config.DefaultPath, false
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return cfg, err
	}
	logging.Setup(cfg.Logging)
	return cfg, nil
}

// errRecordFailures marks a batch that ran to the end with failed rows.
var errRecordFailures = errors.New("batch finished with record failures")

// Exit codes.
const (
	exitOK = iota
	exitMissingTemplate
	exitMissingInput
	exitMissingConverter
	exitConfiguration
	exitInput
	exitRecordFailures
)

func exitCode(err error) int {
	var (
		cfgErr   *services.ConfigurationError
		inputErr *services.InputError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, services.ErrMissingTemplate):
		return exitMissingTemplate
	case errors.Is(err, services.ErrMissingInput):
		return exitMissingInput
	case errors.Is(err, services.ErrMissingConverter):
		return exitMissingConverter
	case errors.As(err, &cfgErr):
		return exitConfiguration
	case errors.As(err, &inputErr):
		return exitInput
	case errors.Is(err, errRecordFailures):
		return exitRecordFailures
	default:
		return exitConfiguration
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		slog.Error("certgen failed.", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	stop()
	os.Exit(exitCode(err))
}
