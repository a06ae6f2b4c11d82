package office

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/certgen/internal/services"
)

const (
	toolName       = "soffice"
	DefaultTimeout = 2 * time.Minute
)

// searchPaths are tried after $PATH when no converter is configured.
var searchPaths = []string{
	"/usr/bin/soffice",
	"/usr/lib/libreoffice/program/soffice",
	"/opt/libreoffice/program/soffice",
	"/Applications/LibreOffice.app/Contents/MacOS/soffice",
	`C:\Program Files\LibreOffice\program\soffice.exe`,
}

// LocateSoffice resolves the converter binary. An explicit path must exist;
// otherwise $PATH and the usual install locations are searched.
func LocateSoffice(configured string) (string, error) {
	if configured != "" {
		if p, err := exec.LookPath(configured); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("%w: %s", services.ErrMissingConverter, configured)
	}
	for _, name := range []string{"soffice", "libreoffice"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	for _, p := range searchPaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", services.ErrMissingConverter
}

// Soffice converts documents with a headless LibreOffice. Each conversion uses
// a throwaway user profile so parallel runs do not contend for the lock.
type Soffice struct {
	Binary  string
	Timeout time.Duration
	// Validate checks the produced PDF. A failure is reported as malformed
	// output.
	Validate func(path string) error
}

func NewSoffice(binary string, timeout time.Duration, validate func(string) error) *Soffice {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Soffice{Binary: binary, Timeout: timeout, Validate: validate}
}

// Convert writes <outDir>/<stem>.pdf for inPath.
func (s *Soffice) Convert(ctx context.Context, inPath, outDir string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))
	outPath := filepath.Join(outDir, stem+".pdf")
	logCtx := slog.With("tool", toolName, "input", filepath.Base(inPath))

	profile, err := os.MkdirTemp("", "certgen-soffice-")
	if err != nil {
		return "", &services.ToolFailure{Tool: toolName, Err: fmt.Errorf("failed to create profile dir: %w", err)}
	}
	defer os.RemoveAll(profile)

	runCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.Binary,
		"--headless", "--norestore", "--nolockcheck",
		"-env:UserInstallation="+fileURL(profile),
		"--convert-to", "pdf",
		"--outdir", outDir,
		inPath,
	)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	// Helpers forked by soffice may hold the output pipe after a kill.
	cmd.WaitDelay = 5 * time.Second

	started := time.Now()
	err = cmd.Run()
	logCtx.Debug("Converter finished.", "duration", time.Since(started), "error", err)

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return outPath, &services.ToolFailure{Tool: toolName, TimedOut: true, Timeout: s.Timeout, Err: runCtx.Err()}
	}
	if ctx.Err() != nil {
		return outPath, ctx.Err()
	}
	if err != nil {
		tf := &services.ToolFailure{Tool: toolName, Output: strings.TrimSpace(output.String()), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			tf.ExitCode = exitErr.ExitCode()
		}
		return outPath, tf
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return outPath, &services.ToolFailure{
			Tool:      toolName,
			Malformed: true,
			Output:    strings.TrimSpace(output.String()),
			Err:       fmt.Errorf("no PDF written to %s", outPath),
		}
	}
	if s.Validate != nil {
		if err := s.Validate(outPath); err != nil {
			return outPath, &services.ToolFailure{Tool: toolName, Malformed: true, Err: err}
		}
	}
	return outPath, nil
}

func fileURL(dir string) string {
	p := filepath.ToSlash(dir)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p
}
