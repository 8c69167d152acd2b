// Package integrations exports an assembled booklet to additional
// formats. EPUB is the only integration today.
package integrations

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	epub "github.com/go-shiori/go-epub"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/kerbaras/booklet/pkg/export"
	"github.com/kerbaras/booklet/pkg/fetch"
)

// EPUBExporter renders ordered chapter markdown into one EPUB per booklet.
type EPUBExporter struct {
	outputDir string
	md        goldmark.Markdown
	logger    *log.Logger
}

func NewEPUBExporter(outputDir string, logger *log.Logger) *EPUBExporter {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &EPUBExporter{
		outputDir: outputDir,
		// WithUnsafe keeps the raw <img> tags booklet bodies carry.
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
		),
		logger: logger,
	}
}

// Export writes <sanitized title>.epub with one section per chapter, in
// the given order. Failed chapters become placeholder sections so the
// book's navigation matches the chapter list. imageDir may name the run's
// localized image directory; its files are embedded and in-document
// img/... references rewritten to the EPUB-internal paths.
func (p *EPUBExporter) Export(title, bookID string, results []fetch.Result, imageDir string) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("no chapters to export")
	}
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	e, err := epub.NewEpub(title)
	if err != nil {
		return "", fmt.Errorf("creating epub: %w", err)
	}
	e.SetDescription(fmt.Sprintf("Booklet %s", bookID))

	imageMap := p.embedImages(e, imageDir)

	for _, r := range results {
		body := r.Body
		if !r.OK || body == "" {
			body = export.Placeholder
		}

		var buf bytes.Buffer
		if err := p.md.Convert([]byte(body), &buf); err != nil {
			return "", fmt.Errorf("rendering chapter %q: %w", r.Ref.Title, err)
		}
		content := buf.String()
		for local, internal := range imageMap {
			content = strings.ReplaceAll(content, local, internal)
		}

		section := fmt.Sprintf("<h1>%s</h1>\n%s", html.EscapeString(r.Ref.Title), content)
		if _, err := e.AddSection(section, r.Ref.Title, "", ""); err != nil {
			return "", fmt.Errorf("adding chapter %q: %w", r.Ref.Title, err)
		}
	}

	outputPath := filepath.Join(p.outputDir, export.SanitizeFilename(title)+".epub")
	if err := e.Write(outputPath); err != nil {
		return "", fmt.Errorf("writing epub: %w", err)
	}
	return outputPath, nil
}

// embedImages adds every localized image file to the epub and returns the
// rewrite map from the markdown-relative path to the internal one.
func (p *EPUBExporter) embedImages(e *epub.Epub, imageDir string) map[string]string {
	if imageDir == "" {
		return nil
	}
	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil
	}

	m := make(map[string]string, len(entries))
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		internal, err := e.AddImage(filepath.Join(imageDir, ent.Name()), ent.Name())
		if err != nil {
			p.logger.Printf("WARN: image %s not embedded: %v", ent.Name(), err)
			continue
		}
		m["img/"+ent.Name()] = internal
	}
	return m
}
