package main

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/certgen/internal/config"
	"github.com/Lllllllleong/certgen/internal/services"
	"github.com/spf13/cobra"
)

var verifyFile string

var verifyCmd = &cobra.Command{
	Use:   "verify NUMBER",
	Short: "Look up an issued certificate and optionally check a file against it",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFile, "file", "", "PDF to compare with the registered artifact hash")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	number, err := services.ParseCertificateNumber(args[0])
	if err != nil {
		return &services.InputError{Err: err}
	}
	if cfg.Registry.Backend == config.RegistryNone {
		return &services.ConfigurationError{Err: errors.New("no issuance registry configured")}
	}
	registry, err := openRegistry(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	defer registry.Close()

	iss, err := registry.Lookup(ctx, number.String())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Certificate %s\n", iss.Number)
	fmt.Fprintf(out, "  Recipient: %s\n", iss.RecipientName)
	fmt.Fprintf(out, "  Title:     %s\n", iss.Title)
	fmt.Fprintf(out, "  Institute: %s\n", iss.InstituteName)
	fmt.Fprintf(out, "  Date:      %s\n", iss.CertificateDate)
	fmt.Fprintf(out, "  Artifact:  %s\n", iss.Artifact)
	if iss.DownloadLink != "" {
		fmt.Fprintf(out, "  Link:      %s\n", iss.DownloadLink)
	}

	if verifyFile == "" {
		return nil
	}
	hash, err := services.FileSHA256(verifyFile)
	if err != nil {
		return &services.InputError{Path: verifyFile, Err: err}
	}
	if hash != iss.FileHash {
		return fmt.Errorf("%s does not match certificate %s", verifyFile, iss.Number)
	}
	fmt.Fprintf(out, "%s matches the issued artifact.\n", verifyFile)
	return nil
}
