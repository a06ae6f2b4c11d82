// Package pdf implements the page operations of certificate assembly on top
// of pdfcpu: image pages, stamping, owner-password protection and validation.
package pdf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func init() {
	// pdfcpu would otherwise create a config dir under the user's home.
	api.DisableConfigDir()
}

const aesKeyLength = 256

// Engine is a stateless pdfcpu wrapper.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

func relaxed() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// ImagePage writes a one-page PDF of size x size points filled by the image.
func (e *Engine) ImagePage(imgPath, outPath string, size float64) error {
	imp, err := api.Import(fmt.Sprintf("dim:%.2f %.2f, pos:full", size, size), types.POINTS)
	if err != nil {
		return fmt.Errorf("failed to parse image import: %w", err)
	}
	if err := api.ImportImagesFile([]string{imgPath}, outPath, imp, relaxed()); err != nil {
		return fmt.Errorf("failed to build image page: %w", err)
	}
	return nil
}

// Overlay stamps the first page of stampPath onto the first page of target,
// with the stamp's lower-left corner at (x, y) points. The stamp keeps its own
// size. target is replaced in place.
func (e *Engine) Overlay(target, stampPath string, x, y, size float64) error {
	desc := fmt.Sprintf("pos:bl, off:%.2f %.2f, scalefactor:1 abs, rot:0", x, y)
	out := stagingPath(target, "stamped")
	if err := api.AddPDFWatermarksFile(target, out, []string{"1"}, true, stampPath, desc, relaxed()); err != nil {
		os.Remove(out)
		return fmt.Errorf("failed to stamp code onto %s: %w", filepath.Base(target), err)
	}
	return replace(out, target)
}

// Protect encrypts path with AES-256 under the owner password. There is no
// user password, so anyone can open the file; only printing is permitted.
func (e *Engine) Protect(path, ownerPassword string) error {
	if ownerPassword == "" {
		return fmt.Errorf("owner password must not be empty")
	}
	cfg := model.NewAESConfiguration("", ownerPassword, aesKeyLength)
	cfg.Permissions = model.PermissionsPrint
	cfg.ValidationMode = model.ValidationRelaxed

	out := stagingPath(path, "protected")
	if err := api.EncryptFile(path, out, cfg); err != nil {
		os.Remove(out)
		return fmt.Errorf("failed to encrypt %s: %w", filepath.Base(path), err)
	}
	return replace(out, path)
}

// Validate checks that path parses as a PDF with at least one page.
func (e *Engine) Validate(path string) error {
	if err := api.ValidateFile(path, relaxed()); err != nil {
		return fmt.Errorf("invalid PDF: %w", err)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return fmt.Errorf("failed to count pages: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("PDF has no pages")
	}
	return nil
}

// PageCount returns the number of pages in path.
func (e *Engine) PageCount(path string) (int, error) {
	return api.PageCountFile(path)
}

func stagingPath(path, step string) string {
	return path + "." + step + ".pdf"
}

func replace(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		os.Remove(src)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(dst), err)
	}
	return nil
}
