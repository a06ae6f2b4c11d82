package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/certgen/internal/input"
	"github.com/Lllllllleong/certgen/internal/logging"
	"github.com/Lllllllleong/certgen/internal/services"
	"github.com/Lllllllleong/certgen/internal/store"
	"github.com/spf13/cobra"
)

var (
	generateDate    string
	generatePreview bool
)

var generateCmd = &cobra.Command{
	Use:   "generate INPUT",
	Short: "Generate certificates for every row of a CSV or XLSX roster",
	Long: `Numbers each row, fills the DOCX template, converts it to PDF, stamps a
verification QR code and protects the file with a fresh owner password.

The sequence state is only committed when every row published. A run with
failures can be repeated as-is: it reissues the same numbers.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateDate, "date", "", "Certificate date to print (dd-mm-yyyy, default today)")
	generateCmd.Flags().BoolVar(&generatePreview, "preview", false, "Write unprotected preview_ files only; no ledger, no state change")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if generateDate != "" {
		if _, err := time.Parse(services.DateLayout, generateDate); err != nil {
			return &services.ConfigurationError{Err: fmt.Errorf("invalid --date %q: want dd-mm-yyyy", generateDate)}
		}
	}

	if err := cfg.CheckTemplate(); err != nil {
		return err
	}

	slog.SetDefault(slog.With("run", logging.NewRunID()))

	table, err := input.Read(args[0])
	if err != nil {
		return err
	}

	asm, err := newAssembler(cfg)
	if err != nil {
		return err
	}

	opts := []services.BatchOption{services.WithConsole(cmd.OutOrStdout())}
	if !generatePreview {
		registry, err := openRegistry(ctx, cfg.Registry)
		if err != nil {
			return err
		}
		if registry != nil {
			defer registry.Close()
			opts = append(opts, services.WithRegistry(registry))
		}
		mirror, err := openMirror(ctx, cfg.Mirror)
		if err != nil {
			return &services.ConfigurationError{Err: err}
		}
		if mirror != nil {
			defer mirror.Close()
			opts = append(opts, services.WithMirror(mirror))
		}
	}

	batch := services.NewBatch(services.BatchConfig{
		Template:        cfg.Template,
		OutputDir:       cfg.OutputDir,
		LedgerPath:      services.LedgerPath(cfg.OutputDir, args[0]),
		NamePrefix:      cfg.NamePrefix,
		CertificateDate: generateDate,
		Preview:         generatePreview,
		PayloadFields:   cfg.Payload.Fields,
		Issuer:          cfg.Payload.Issuer,
		StaleAfter:      cfg.StaleAfter,
		UploadLimit:     cfg.Mirror.Concurrency,
	}, store.NewSequenceFile(cfg.StateFile), asm, opts...)

	result, err := batch.Run(ctx, table)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%d certificate(s), %d failed. Sequence %s -> %s.\n",
		len(result.Entries), result.Failed(), formatState(result.Start), formatState(result.End))
	if result.LedgerPath != "" {
		fmt.Fprintf(out, "Ledger: %s\n", filepath.Clean(result.LedgerPath))
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "Warning: %v\n", w)
	}
	if result.Failed() > 0 {
		return fmt.Errorf("%w: %d of %d rows", errRecordFailures, result.Failed(), len(result.Entries))
	}
	return nil
}

func formatState(s services.SequenceState) string {
	return services.CertificateNumber{Year: s.ActiveYear, Counter: s.LastCounter}.String()
}
