package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storyforge/internal/asset"
	"storyforge/internal/fileutil"
	"storyforge/internal/logging"
	"storyforge/internal/services"
)

// ErrorSuffix is appended to the filename of an entry that failed to resolve.
const ErrorSuffix = ".error.txt"

// NamedAsset is one archive entry. Entries with an empty Reference and
// non-empty Text are written as inline text.
type NamedAsset struct {
	Filename  string
	Reference string
	Text      string
}

// IsText reports whether the entry carries inline text.
func (n NamedAsset) IsText() bool {
	return strings.TrimSpace(n.Reference) == "" && n.Text != ""
}

// FailedEntry describes one entry replaced by an error note.
type FailedEntry struct {
	Filename string
	Err      error
}

// Report lists what a build wrote.
type Report struct {
	Written []string
	Failed  []FailedEntry
	Bytes   int
}

// Resolver materializes asset references.
type Resolver interface {
	Resolve(ctx context.Context, ref, filename string) (asset.Asset, error)
}

// Builder assembles bundles.
type Builder struct {
	resolver Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock fixes entry modification times.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder constructs a Builder resolving references through resolver.
func NewBuilder(resolver Resolver, opts ...Option) *Builder {
	b := &Builder{
		resolver: resolver,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.NewComponentLogger(b.logger, "archive")
	return b
}

// BuildArchive resolves every entry and returns the zip bytes. Per-entry
// failures are reported in the Report and as error notes inside the bundle.
// The returned error is ErrEmptyArchive, ErrInvalidParameter for unusable
// filenames, or the context error.
func (b *Builder) BuildArchive(ctx context.Context, bundleName string, entries []NamedAsset) ([]byte, Report, error) {
	var report Report
	if err := validateFilenames(entries); err != nil {
		return nil, report, err
	}
	logger := logging.WithContext(ctx, b.logger).With(logging.String("bundle", bundleName))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if bundleName != "" {
		if err := zw.SetComment(bundleName); err != nil {
			return nil, report, services.Wrap(services.ErrInvalidParameter, "archive", "build", "bundle name", err)
		}
	}
	modified := b.now()

	realEntries := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		data, err := b.materialize(ctx, entry)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, report, ctxErr
			}
			report.Failed = append(report.Failed, FailedEntry{Filename: entry.Filename, Err: err})
			logger.Warn("archive entry failed",
				logging.String("entry", entry.Filename),
				logging.Error(err),
				logging.String(logging.FieldEventType, "archive_entry_failed"),
			)
			note := fmt.Sprintf("Failed to include %s: %v\n", entry.Filename, err)
			if err := writeEntry(zw, entry.Filename+ErrorSuffix, []byte(note), modified); err != nil {
				return nil, report, err
			}
			continue
		}
		if err := writeEntry(zw, entry.Filename, data, modified); err != nil {
			return nil, report, err
		}
		report.Written = append(report.Written, entry.Filename)
		realEntries++
	}

	if realEntries == 0 {
		return nil, report, services.Wrap(services.ErrEmptyArchive, "archive", "build",
			fmt.Sprintf("%d entries requested, none resolved", len(entries)), nil)
	}
	if err := zw.Close(); err != nil {
		return nil, report, fmt.Errorf("archive: finalize zip: %w", err)
	}
	report.Bytes = buf.Len()
	logger.Info("archive built",
		logging.Int("entries", len(report.Written)),
		logging.Int("failed", len(report.Failed)),
		logging.Int("bytes", report.Bytes),
		logging.String(logging.FieldEventType, "archive_built"),
	)
	return buf.Bytes(), report, nil
}

func (b *Builder) materialize(ctx context.Context, entry NamedAsset) ([]byte, error) {
	if entry.IsText() {
		return []byte(entry.Text), nil
	}
	if b.resolver == nil {
		return nil, &asset.ResolutionError{Ref: entry.Reference, Err: fmt.Errorf("no resolver configured")}
	}
	resolved, err := b.resolver.Resolve(ctx, entry.Reference, entry.Filename)
	if err != nil {
		return nil, err
	}
	return resolved.Data, nil
}

func validateFilenames(entries []NamedAsset) error {
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		name := entry.Filename
		switch {
		case strings.TrimSpace(name) == "":
			return services.Wrap(services.ErrInvalidParameter, "archive", "build", "entry without filename", nil)
		case strings.HasPrefix(name, "/") || strings.Contains(name, "\\") || hasDotDot(name):
			return services.Wrap(services.ErrInvalidParameter, "archive", "build",
				fmt.Sprintf("unsafe entry name %q", name), nil)
		}
		if _, dup := seen[name]; dup {
			return services.Wrap(services.ErrInvalidParameter, "archive", "build",
				fmt.Sprintf("duplicate entry name %q", name), nil)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func hasDotDot(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("archive: create entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("archive: write entry %s: %w", name, err)
	}
	return nil
}

// WriteArchive stores a built bundle at path without leaving partial files.
func WriteArchive(path string, data []byte) error {
	if len(data) == 0 {
		return services.Wrap(services.ErrEmptyArchive, "archive", "write", "no data", nil)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("archive: write %s: %w", path, err)
	}
	return nil
}
