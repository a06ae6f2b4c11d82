// Package config loads certgen settings from an optional YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/certgen/internal/gcp"
	"github.com/Lllllllleong/certgen/internal/logging"
	"github.com/Lllllllleong/certgen/internal/services"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "certgen.yaml"

const (
	RegistrySQLite    = "sqlite"
	RegistryFirestore = "firestore"
	RegistryNone      = "none"
)

type Config struct {
	Template   string          `yaml:"template"`
	OutputDir  string          `yaml:"output_dir"`
	StateFile  string          `yaml:"state_file"`
	NamePrefix string          `yaml:"name_prefix"`
	Converter  ConverterConfig `yaml:"converter"`
	Stamp      StampConfig     `yaml:"stamp"`
	Payload    PayloadConfig   `yaml:"payload"`
	Mirror     MirrorConfig    `yaml:"mirror"`
	Registry   RegistryConfig  `yaml:"registry"`
	Logging    logging.Config  `yaml:"logging"`
	StaleAfter time.Duration   `yaml:"stale_after"`
}

type ConverterConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

type StampConfig struct {
	Region   services.Region `yaml:"region"`
	QRPixels int             `yaml:"qr_pixels"`
}

type PayloadConfig struct {
	Issuer string                  `yaml:"issuer"`
	Fields []services.PayloadField `yaml:"fields"`
}

// MirrorConfig selects where published certificates are copied. A gs:// URL
// uses the Cloud Storage client; any other scheme goes through gocloud.dev.
type MirrorConfig struct {
	URL         string `yaml:"url"`
	LinkBase    string `yaml:"link_base"`
	Concurrency int    `yaml:"concurrency"`
}

type RegistryConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	ProjectID  string `yaml:"project_id"`
	Collection string `yaml:"collection"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Template:   "template.docx",
		OutputDir:  "certificates",
		StateFile:  "certgen_state.toml",
		NamePrefix: services.DefaultNamePrefix,
		Converter:  ConverterConfig{Timeout: 2 * time.Minute},
		Stamp:      StampConfig{Region: services.DefaultRegion, QRPixels: 360},
		Payload:    PayloadConfig{Fields: services.DefaultPayloadFields},
		Mirror:     MirrorConfig{Concurrency: 4},
		Registry:   RegistryConfig{Backend: RegistrySQLite, Path: "certgen_registry.db", Collection: "certificates"},
		Logging:    logging.Config{Format: "text", Level: "info"},
		StaleAfter: 24 * time.Hour,
	}
}

// Load decodes path over the defaults and then applies environment
// overrides. A missing file is only an error when required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &services.ConfigurationError{Err: fmt.Errorf("failed to parse %s: %w", path, err)}
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return cfg, &services.ConfigurationError{Err: fmt.Errorf("failed to read %s: %w", path, err)}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Template = gcp.GetEnv("CERTGEN_TEMPLATE", c.Template)
	c.OutputDir = gcp.GetEnv("CERTGEN_OUTPUT_DIR", c.OutputDir)
	c.StateFile = gcp.GetEnv("CERTGEN_STATE_FILE", c.StateFile)
	c.Converter.Path = gcp.GetEnv("CERTGEN_SOFFICE", c.Converter.Path)
	c.Payload.Issuer = gcp.GetEnv("CERTGEN_ISSUER", c.Payload.Issuer)
	c.Mirror.URL = gcp.GetEnv("CERTGEN_MIRROR_URL", c.Mirror.URL)
	c.Registry.Backend = gcp.GetEnv("CERTGEN_REGISTRY", c.Registry.Backend)
	c.Registry.ProjectID = gcp.GetEnv("PROJECT_ID", c.Registry.ProjectID)
	c.Registry.Collection = gcp.GetEnv("CERTGEN_FIRESTORE_COLLECTION", c.Registry.Collection)
	c.Logging.Format = gcp.GetEnv("CERTGEN_LOG_FORMAT", c.Logging.Format)
	c.Logging.Level = gcp.GetEnv("CERTGEN_LOG_LEVEL", c.Logging.Level)
	if v := os.Getenv("CERTGEN_CONVERTER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Converter.Timeout = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			c.Converter.Timeout = time.Duration(secs) * time.Second
		}
	}
}

// Validate reports every problem at once as a *services.ConfigurationError.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Template) == "" {
		errs = append(errs, errors.New("template must be set"))
	} else if !strings.EqualFold(filepath.Ext(c.Template), ".docx") {
		errs = append(errs, fmt.Errorf("template %s must be a .docx file", c.Template))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, errors.New("output_dir must be set"))
	}
	if strings.TrimSpace(c.StateFile) == "" {
		errs = append(errs, errors.New("state_file must be set"))
	}
	if strings.TrimSpace(c.Payload.Issuer) == "" {
		errs = append(errs, errors.New("payload.issuer must be set"))
	}
	if c.Converter.Timeout <= 0 {
		errs = append(errs, errors.New("converter.timeout must be positive"))
	}
	if c.Stamp.Region.Size <= 0 || c.Stamp.Region.X < 0 || c.Stamp.Region.Y < 0 {
		errs = append(errs, fmt.Errorf("stamp.region %+v is invalid", c.Stamp.Region))
	}
	if c.Stamp.QRPixels <= 0 {
		errs = append(errs, errors.New("stamp.qr_pixels must be positive"))
	}
	for i, f := range c.Payload.Fields {
		if f.Key == "" {
			errs = append(errs, fmt.Errorf("payload.fields[%d] has no key", i))
		}
	}
	switch c.Registry.Backend {
	case RegistrySQLite:
		if c.Registry.Path == "" {
			errs = append(errs, errors.New("registry.path must be set for the sqlite backend"))
		}
	case RegistryFirestore:
		if c.Registry.ProjectID == "" {
			errs = append(errs, errors.New("registry.project_id (or PROJECT_ID) must be set for the firestore backend"))
		}
	case RegistryNone:
	default:
		errs = append(errs, fmt.Errorf("unknown registry backend %q", c.Registry.Backend))
	}
	if len(errs) == 0 {
		return nil
	}
	return &services.ConfigurationError{Err: errors.Join(errs...)}
}

// CheckTemplate reports a missing template file as ErrMissingTemplate. It runs
// before the input and the converter are looked at.
func (c Config) CheckTemplate() error {
	info, err := os.Stat(c.Template)
	if err != nil || info.IsDir() {
		return &services.ConfigurationError{Err: fmt.Errorf("%w: %s", services.ErrMissingTemplate, c.Template)}
	}
	return nil
}
