// Package export renders an ordered chapter set to markdown on disk,
// either as one concatenated document or as numbered per-chapter files.
package export

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kerbaras/booklet/pkg/fetch"
)

// Placeholder stands in for a chapter whose fetch failed, keeping the
// table of contents and the body index-aligned.
const Placeholder = "*content unavailable*"

// Options selects the output layout.
type Options struct {
	OutputDir  string
	SingleFile bool
	AutoTitle  bool
}

// Assembler writes the final artifact. Assembly runs single-threaded,
// strictly after the scheduler has returned the full ordered result set.
type Assembler struct {
	opts   Options
	logger *log.Logger
	now    func() time.Time
}

func NewAssembler(opts Options, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Assembler{opts: opts, logger: logger, now: time.Now}
}

// Assemble renders results in the given order and returns the final path:
// the merged file in single-file mode, the booklet directory otherwise.
func (a *Assembler) Assemble(title, bookID string, results []fetch.Result) (string, error) {
	if err := os.MkdirAll(a.opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	if a.opts.SingleFile {
		return a.writeSingleFile(title, bookID, results)
	}
	return a.writeChapterFiles(title, results)
}

// ImageDir returns where localized images belong for the given layout.
// Single-file keeps one img/ directory beside the merged file; multi-file
// keeps it inside the booklet directory. Both layouts reference images by
// the same "img/..." relative path.
func ImageDir(outputDir, title string, singleFile bool) string {
	if singleFile {
		return filepath.Join(outputDir, "img")
	}
	return filepath.Join(outputDir, SanitizeFilename(title), "img")
}

func (a *Assembler) writeSingleFile(title, bookID string, results []fetch.Result) (string, error) {
	path := filepath.Join(a.opts.OutputDir, SanitizeFilename(title)+".md")

	var b strings.Builder
	b.WriteString(fmt.Sprintf("# %s\n\n", title))
	b.WriteString(fmt.Sprintf("**Booklet ID**: %s\n\n", bookID))
	b.WriteString(fmt.Sprintf("**Generated**: %s\n\n", a.now().Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("**Chapters**: %d\n\n", len(results)))
	b.WriteString("---\n\n")

	b.WriteString("## Table of Contents\n\n")
	for i, r := range results {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, r.Ref.Title))
	}
	b.WriteString("\n---\n")

	for _, r := range results {
		if a.opts.AutoTitle {
			b.WriteString(fmt.Sprintf("\n\n# %s\n\n", r.Ref.Title))
		} else {
			b.WriteString("\n\n")
		}
		b.WriteString(chapterBody(r))
		b.WriteString("\n\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func (a *Assembler) writeChapterFiles(title string, results []fetch.Result) (string, error) {
	dir := filepath.Join(a.opts.OutputDir, SanitizeFilename(title))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating booklet directory: %w", err)
	}

	for i, r := range results {
		// Zero-padded prefix keeps lexical order equal to chapter order.
		name := fmt.Sprintf("%03d_%s.md", i+1, SanitizeFilename(r.Ref.Title))
		content := fmt.Sprintf("# %s\n\n%s\n", r.Ref.Title, chapterBody(r))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return "", fmt.Errorf("writing %s: %w", path, err)
		}
		a.logger.Printf("chapter written: %s", path)
	}
	return dir, nil
}

func chapterBody(r fetch.Result) string {
	if !r.OK || r.Body == "" {
		return Placeholder
	}
	return r.Body
}
