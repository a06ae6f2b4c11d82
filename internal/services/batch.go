package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Lllllllleong/certgen/internal/models"
	"golang.org/x/sync/errgroup"
)

// BatchConfig holds configuration for one batch invocation.
type BatchConfig struct {
	Template        string
	OutputDir       string
	LedgerPath      string
	NamePrefix      string
	CertificateDate string // dd-mm-yyyy; empty means today
	Preview         bool
	PayloadFields   []PayloadField
	Issuer          string
	StaleAfter      time.Duration
	UploadLimit     int
}

// Batch drives a roster through the assembler and owns the sequence commit.
type Batch struct {
	cfg       BatchConfig
	sequence  SequenceStore
	assembler *Assembler
	registry  Registry
	mirror    Mirror
	now       func() time.Time
	console   io.Writer
}

type BatchOption func(*Batch)

func WithRegistry(r Registry) BatchOption { return func(b *Batch) { b.registry = r } }
func WithMirror(m Mirror) BatchOption { return func(b *Batch) { b.mirror = m } }
func WithClock(now func() time.Time) BatchOption { return func(b *Batch) { b.now = now } }
func WithConsole(w io.Writer) BatchOption { return func(b *Batch) { b.console = w } }

func NewBatch(cfg BatchConfig, seq SequenceStore, asm *Assembler, opts ...BatchOption) *Batch {
	if len(cfg.PayloadFields) == 0 {
		cfg.PayloadFields = DefaultPayloadFields
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	if cfg.UploadLimit <= 0 {
		cfg.UploadLimit = 4
	}
	b := &Batch{
		cfg:       cfg,
		sequence:  seq,
		assembler: asm,
		now:       time.Now,
		console:   io.Discard,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RunResult is the outcome of one batch.
type RunResult struct {
	Entries    []LedgerEntry
	Start      SequenceState
	End        SequenceState
	Committed  bool
	LedgerPath string
	Warnings   []error
}

// Failed counts rows that did not publish.
func (r *RunResult) Failed() int {
	n := 0
	for _, e := range r.Entries {
		if !e.Published {
			n++
		}
	}
	return n
}

// Run processes the table in order. Fatal errors are returned before any
// durable state changes. Per-row failures are recorded in the ledger and
// suppress the sequence commit.
func (b *Batch) Run(ctx context.Context, table *models.Table) (*RunResult, error) {
	logCtx := slog.With("input", table.Source, "rows", len(table.Rows), "preview", b.cfg.Preview)
	logCtx.Info("Starting certificate batch.")

	if err := b.preflight(table); err != nil {
		logCtx.Error("Preflight failed.", "error", err)
		return nil, err
	}

	start, err := b.sequence.Load(ctx)
	if errors.Is(err, ErrNoSequence) {
		return nil, configErr(ErrMissingState)
	}
	if err != nil {
		return nil, configErr(fmt.Errorf("failed to load sequence state: %w", err))
	}
	logCtx = logCtx.With("startYear", start.ActiveYear, "startCounter", start.LastCounter)

	certDate := b.cfg.CertificateDate
	if certDate == "" {
		certDate = b.now().Format(DateLayout)
	}

	if n, err := SweepStale(b.cfg.OutputDir, b.cfg.StaleAfter, b.now()); err != nil {
		logCtx.Warn("Failed to sweep stale temp files.", "error", err)
	} else if n > 0 {
		logCtx.Info("Removed stale temp files.", "count", n)
	}

	alloc := NewAllocator(start, b.now)
	result := &RunResult{Start: start, End: start}
	names := make(map[string]int, len(table.Rows))

	fmt.Fprintf(b.console, "%9s %-30s %-30s %-16s %s\n", "Number", "Student Name", "Supervisor", "PDF Password", "Certificate file")
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			logCtx.Warn("Batch cancelled; nothing committed.", "error", err)
			return nil, err
		}
		entry := b.processRow(ctx, logCtx, alloc, row, certDate, names)
		result.Entries = append(result.Entries, entry)
		b.printEntry(entry)
	}
	if err := ctx.Err(); err != nil {
		logCtx.Warn("Batch cancelled; nothing committed.", "error", err)
		return nil, err
	}
	result.End = alloc.State()

	if b.cfg.Preview {
		logCtx.Info("Preview complete; ledger and sequence state untouched.", "failed", result.Failed())
		return result, nil
	}

	if result.Failed() == 0 && b.mirror != nil {
		b.mirrorAll(ctx, logCtx, result)
	}

	if err := WriteLedger(b.cfg.LedgerPath, result.Entries); err != nil {
		logCtx.Error("Failed to write run ledger.", "error", err)
		return result, err
	}
	result.LedgerPath = b.cfg.LedgerPath
	logCtx.Info("Run ledger written.", "path", b.cfg.LedgerPath)

	if failed := result.Failed(); failed > 0 {
		logCtx.Warn("Batch finished with failures; sequence state not committed.", "failed", failed)
		return result, nil
	}

	// Every artifact is already published, so the commit must not be lost to
	// a late cancellation.
	if err := b.sequence.Commit(context.WithoutCancel(ctx), result.End); err != nil {
		logCtx.Error("Failed to commit sequence state.", "error", err)
		return result, fmt.Errorf("failed to commit sequence state: %w", err)
	}
	result.Committed = true
	logCtx.Info("Sequence state committed.", "year", result.End.ActiveYear, "counter", result.End.LastCounter)

	if b.registry != nil {
		b.registerAll(ctx, logCtx, result)
	}
	return result, nil
}

func (b *Batch) processRow(ctx context.Context, logCtx *slog.Logger, alloc *Allocator, row models.RawRow, certDate string, names map[string]int) LedgerEntry {
	entry := LedgerEntry{Line: row.Line}

	rec, err := Normalize(row)
	if err != nil {
		logCtx.Error("Row rejected.", "row", row.Line, "error", err)
		entry.Record = &models.Record{Line: row.Line, RecipientName: row.Get(recipientKeys...)}
		entry.Err = &RecordError{Line: row.Line, Stage: "normalize", Err: err}
		return entry
	}
	entry.Record = rec

	num := alloc.Allocate()
	if err := rec.AssignNumber(num.String(), certDate); err != nil {
		entry.Err = &RecordError{Line: row.Line, Stage: "allocate", Err: err}
		return entry
	}

	name := ArtifactName(b.cfg.NamePrefix, num, rec.RecipientName)
	if b.cfg.Preview {
		name = PreviewName(name)
	}
	if prev, dup := names[name]; dup {
		entry.Err = &RecordError{Line: row.Line, Stage: "stage", Err: fmt.Errorf("artifact name %s already used by row %d", name, prev)}
		return entry
	}
	names[name] = row.Line
	final := filepath.Join(b.cfg.OutputDir, name)

	secret, err := b.assembler.Assemble(ctx, AssembleJob{
		Line:      row.Line,
		Template:  b.cfg.Template,
		Fields:    rec.Fields(),
		Payload:   BuildPayload(rec, b.cfg.PayloadFields, b.cfg.Issuer),
		FinalPath: final,
		Protect:   !b.cfg.Preview,
	})
	if err != nil {
		entry.Err = err
		return entry
	}
	if err := rec.AssignArtifact(secret, final); err != nil {
		entry.Err = &RecordError{Line: row.Line, Stage: "publish", Err: err}
		return entry
	}
	entry.Published = true
	return entry
}

// preflight rejects a run before any record is touched.
func (b *Batch) preflight(table *models.Table) error {
	if b.cfg.Issuer == "" {
		return configErr(errors.New("issuer must be set"))
	}
	if _, err := os.Stat(b.cfg.Template); err != nil {
		return configErr(fmt.Errorf("%w: %s", ErrMissingTemplate, b.cfg.Template))
	}
	if missing := MissingColumns(table); len(missing) > 0 {
		return &InputError{Path: table.Source, Err: fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))}
	}

	fields, err := b.assembler.merger.Fields(b.cfg.Template)
	if err != nil {
		return configErr(fmt.Errorf("failed to read template fields: %w", err))
	}
	known := make(map[string]bool)
	for _, k := range models.CanonicalFields() {
		known[k] = true
	}
	for _, c := range table.Columns {
		known[c] = true
	}
	var unknown []string
	for _, f := range fields {
		if !known[f] {
			unknown = append(unknown, f)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return configErr(fmt.Errorf("template references unknown merge fields: %s", strings.Join(unknown, ", ")))
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return configErr(fmt.Errorf("failed to create output directory: %w", err))
	}
	return nil
}

// mirrorAll uploads published artifacts concurrently. Upload failures are
// warnings: the certificates exist locally either way.
func (b *Batch) mirrorAll(ctx context.Context, logCtx *slog.Logger, result *RunResult) {
	logCtx.Info("Starting concurrent mirror upload.")
	var eg errgroup.Group
	eg.SetLimit(b.cfg.UploadLimit)

	warnings := make([]error, len(result.Entries))
	for i := range result.Entries {
		i := i
		e := &result.Entries[i]
		if !e.Published {
			continue
		}
		eg.Go(func() error {
			link, err := b.mirror.Upload(ctx, e.Record.ArtifactPath, filepath.Base(e.Record.ArtifactPath))
			if err != nil {
				warnings[i] = fmt.Errorf("mirror %s: %w", e.Record.CertificateNumber, err)
				return nil
			}
			e.Record.DownloadLink = link
			return nil
		})
	}
	_ = eg.Wait()
	for _, w := range warnings {
		if w != nil {
			logCtx.Warn("Mirror upload failed.", "error", w)
			result.Warnings = append(result.Warnings, w)
		}
	}
}

func (b *Batch) registerAll(ctx context.Context, logCtx *slog.Logger, result *RunResult) {
	for _, e := range result.Entries {
		rec := e.Record
		hash, err := FileSHA256(rec.ArtifactPath)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("hash %s: %w", rec.CertificateNumber, err))
			continue
		}
		iss := models.Issuance{
			Number:          rec.CertificateNumber,
			RecipientName:   rec.RecipientName,
			Title:           rec.Title,
			InstituteName:   rec.InstituteName,
			CertificateDate: rec.CertificateDate,
			Artifact:        filepath.Base(rec.ArtifactPath),
			FileHash:        hash,
			DownloadLink:    rec.DownloadLink,
			IssuedAt:        b.now().UTC(),
		}
		if err := b.registry.Record(ctx, iss); err != nil {
			logCtx.Warn("Failed to record issuance.", "number", rec.CertificateNumber, "error", err)
			result.Warnings = append(result.Warnings, fmt.Errorf("register %s: %w", rec.CertificateNumber, err))
		}
	}
}

func (b *Batch) printEntry(e LedgerEntry) {
	r := e.Record
	if !e.Published {
		fmt.Fprintf(b.console, "%9s %-30s %-30s FAILED: %v\n", r.CertificateNumber, r.RecipientName, r.SupervisorName, e.Err)
		return
	}
	fmt.Fprintf(b.console, "%9s %-30s %-30s %-16s %s\n", r.CertificateNumber, r.RecipientName, r.SupervisorName, r.AccessSecret, filepath.Base(r.ArtifactPath))
}
