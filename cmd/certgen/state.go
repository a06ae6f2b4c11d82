package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/certgen/internal/services"
	"github.com/Lllllllleong/certgen/internal/store"
	"github.com/spf13/cobra"
)

var (
	stateYear   int
	stateNumber int
	stateForce  bool
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or seed the certificate sequence state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the last committed number and the next one to be issued",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var stateInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the sequence state file",
	Long: `Creates the sequence state file so that the next certificate issued in
--year is numbered --number. An existing file is kept unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runStateInit,
}

func init() {
	stateInitCmd.Flags().IntVar(&stateYear, "year", time.Now().Year(), "Active year")
	stateInitCmd.Flags().IntVar(&stateNumber, "number", 1, "Next certificate number to issue")
	stateInitCmd.Flags().BoolVar(&stateForce, "force", false, "Overwrite an existing state file")
	stateCmd.AddCommand(stateShowCmd, stateInitCmd)
}

func runStateShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	seq := store.NewSequenceFile(cfg.StateFile)
	state, err := seq.Load(cmd.Context())
	if errors.Is(err, services.ErrNoSequence) {
		return &services.ConfigurationError{Err: fmt.Errorf("%w: run `certgen state init` to create %s", services.ErrMissingState, cfg.StateFile)}
	}
	if err != nil {
		return err
	}
	next, _ := services.NextNumber(state, time.Now())
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "State file:     %s\n", seq.Path())
	fmt.Fprintf(out, "Last committed: %s\n", formatState(state))
	fmt.Fprintf(out, "Next number:    %s\n", next)
	return nil
}

func runStateInit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	seq := store.NewSequenceFile(cfg.StateFile)
	if err := seq.Seed(cmd.Context(), stateYear, stateNumber, stateForce); err != nil {
		return &services.ConfigurationError{Err: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sequence state written to %s; next number %s.\n",
		seq.Path(), services.CertificateNumber{Year: stateYear, Counter: stateNumber})
	return nil
}
