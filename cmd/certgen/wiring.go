package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Lllllllleong/certgen/internal/config"
	"github.com/Lllllllleong/certgen/internal/gcp"
	"github.com/Lllllllleong/certgen/internal/office"
	"github.com/Lllllllleong/certgen/internal/pdf"
	"github.com/Lllllllleong/certgen/internal/services"
	"github.com/Lllllllleong/certgen/internal/store"
)

// newAssembler wires the external tools. The converter is located up front so
// a missing LibreOffice fails before any record is numbered.
func newAssembler(cfg config.Config) (*services.Assembler, error) {
	binary, err := office.LocateSoffice(cfg.Converter.Path)
	if err != nil {
		return nil, &services.ConfigurationError{Err: err}
	}
	engine := pdf.NewEngine()
	return services.NewAssembler(
		office.NewDocxMerger(),
		office.NewSoffice(binary, cfg.Converter.Timeout, engine.Validate),
		pdf.NewQREncoder(),
		engine,
		cfg.Stamp.Region,
		cfg.Stamp.QRPixels,
	), nil
}

func openRegistry(ctx context.Context, cfg config.RegistryConfig) (services.Registry, error) {
	switch cfg.Backend {
	case config.RegistrySQLite:
		return store.NewSQLiteRegistry(cfg.Path)
	case config.RegistryFirestore:
		return gcp.NewFirestoreRegistry(ctx, cfg.ProjectID, cfg.Collection)
	case config.RegistryNone, "":
		return nil, nil
	default:
		return nil, &services.ConfigurationError{Err: fmt.Errorf("unknown registry backend %q", cfg.Backend)}
	}
}

func openMirror(ctx context.Context, cfg config.MirrorConfig) (services.Mirror, error) {
	switch {
	case cfg.URL == "":
		return nil, nil
	case strings.HasPrefix(cfg.URL, "gs://"):
		return gcp.NewStorageMirror(ctx, cfg.URL)
	default:
		return store.NewBlobMirror(ctx, cfg.URL, "", cfg.LinkBase)
	}
}
