package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Merger fills a document template with record fields.
type Merger interface {
	// Fields lists the merge fields the template references.
	Fields(template string) ([]string, error)
	Merge(ctx context.Context, template string, fields map[string]string, outPath string) error
}

// Converter turns a merged document into a PDF placed in outDir. The output
// base name is the input's base name. Failures are *ToolFailure.
type Converter interface {
	Convert(ctx context.Context, inPath, outDir string) (string, error)
}

// Encoder renders a text payload as a square QR image of px pixels.
type Encoder interface {
	Encode(payload string, px int, outPath string) error
}

// Pages performs the PDF page operations the assembler needs.
type Pages interface {
	// ImagePage writes a single-page PDF of size x size points holding the image.
	ImagePage(imgPath, outPath string, size float64) error
	// Overlay stamps page 1 of stampPath onto page 1 of target, in place.
	Overlay(target, stampPath string, x, y, size float64) error
	// Protect applies an owner password allowing viewing and printing only.
	Protect(path, ownerPassword string) error
}

// Region is where the verification code lands on the first page, in points
// from the bottom-left corner.
type Region struct {
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	Size float64 `yaml:"size"`
}

// DefaultRegion is a one-inch code one inch in from the bottom-left corner.
var DefaultRegion = Region{X: 72, Y: 72, Size: 72}

const (
	tempPrefix    = ".certgen-"
	secretBytes   = 8
	defaultCodePx = 360
)

// AssembleJob is the input for one certificate.
type AssembleJob struct {
	Line      int
	Template  string
	Fields    map[string]string
	Payload   string
	FinalPath string
	Protect   bool
}

// Assembler drives one record from template to published PDF. Everything it
// writes lives under a process-unique temporary name until the final rename.
type Assembler struct {
	merger    Merger
	converter Converter
	encoder   Encoder
	pages     Pages
	region    Region
	codePx    int
	newSecret func() (string, error)
	newID     func() string
}

func NewAssembler(m Merger, c Converter, e Encoder, p Pages, region Region, codePx int) *Assembler {
	if region.Size <= 0 {
		region = DefaultRegion
	}
	if codePx <= 0 {
		codePx = defaultCodePx
	}
	return &Assembler{
		merger:    m,
		converter: c,
		encoder:   e,
		pages:     p,
		region:    region,
		codePx:    codePx,
		newSecret: GenerateSecret,
		newID:     uuid.NewString,
	}
}

// Assemble runs merge, convert, stamp, protect and publish. It returns the
// owner secret, which is empty when the job is not protected.
func (a *Assembler) Assemble(ctx context.Context, job AssembleJob) (string, error) {
	logCtx := slog.With("row", job.Line, "artifact", filepath.Base(job.FinalPath))
	dir := filepath.Dir(job.FinalPath)
	base := filepath.Join(dir, tempPrefix+a.newID())

	var staged []string
	published := false
	defer func() {
		if published {
			return
		}
		for _, p := range staged {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				logCtx.Warn("Failed to remove staged file.", "path", p, "error", err)
			}
		}
	}()
	fail := func(stage string, err error) (string, error) {
		logCtx.Error("Certificate assembly failed.", "stage", stage, "error", err)
		return "", &RecordError{Line: job.Line, Stage: stage, Err: err}
	}

	// --- 1. Merge ---
	docPath := base + ".docx"
	staged = append(staged, docPath)
	if err := a.merger.Merge(ctx, job.Template, job.Fields, docPath); err != nil {
		return fail("merge", err)
	}

	// --- 2. Convert ---
	pdfPath, err := a.converter.Convert(ctx, docPath, dir)
	if pdfPath != "" {
		staged = append(staged, pdfPath)
	}
	if err != nil {
		return fail("convert", err)
	}
	if want := base + ".pdf"; pdfPath != want {
		staged = append(staged, want)
		return fail("convert", fmt.Errorf("converter wrote %s, expected %s", pdfPath, want))
	}
	if err := os.Remove(docPath); err != nil {
		return fail("convert", fmt.Errorf("failed to remove merged document: %w", err))
	}
	logCtx.Debug("Document converted.", "path", pdfPath)

	// --- 3. Encode & overlay ---
	codePNG := base + "-qr.png"
	codePDF := base + "-qr.pdf"
	staged = append(staged, codePNG, codePDF)
	if err := a.encoder.Encode(job.Payload, a.codePx, codePNG); err != nil {
		return fail("encode", err)
	}
	if err := a.pages.ImagePage(codePNG, codePDF, a.region.Size); err != nil {
		return fail("encode", err)
	}
	if err := a.pages.Overlay(pdfPath, codePDF, a.region.X, a.region.Y, a.region.Size); err != nil {
		return fail("overlay", err)
	}
	for _, p := range []string{codePNG, codePDF} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fail("overlay", fmt.Errorf("failed to remove code intermediate: %w", err))
		}
	}

	// --- 4. Protect ---
	var secret string
	if job.Protect {
		secret, err = a.newSecret()
		if err != nil {
			return fail("protect", err)
		}
		if err := a.pages.Protect(pdfPath, secret); err != nil {
			return fail("protect", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return fail("publish", err)
	}

	// --- 5. Publish ---
	if err := Publish(pdfPath, job.FinalPath); err != nil {
		return fail("publish", err)
	}
	published = true
	logCtx.Info("Certificate published.", "protected", job.Protect)
	return secret, nil
}

// Publish moves a finished artifact onto its final name. Rename replaces an
// existing file atomically where the platform allows it; where it does not,
// the old file is removed first and the rename retried.
func Publish(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if _, statErr := os.Stat(dst); statErr != nil {
		return fmt.Errorf("failed to publish %s: %w", dst, err)
	}
	if rmErr := os.Remove(dst); rmErr != nil {
		return fmt.Errorf("failed to replace %s: %w", dst, rmErr)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to publish %s: %w", dst, err)
	}
	return nil
}

// GenerateSecret returns a fresh random owner password. It is never derived
// from record data.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SweepStale removes temporary files left in dir by crashed runs. Only files
// older than maxAge are touched so concurrent runs keep their work.
func SweepStale(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
