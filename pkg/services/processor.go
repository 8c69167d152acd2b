// Package services orchestrates one booklet download end to end: chapter
// listing, concurrent fetch with image localization, assembly, optional
// EPUB export, and run-history recording.
package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/kerbaras/booklet/pkg/api"
	"github.com/kerbaras/booklet/pkg/config"
	"github.com/kerbaras/booklet/pkg/data"
	"github.com/kerbaras/booklet/pkg/export"
	"github.com/kerbaras/booklet/pkg/fetch"
	"github.com/kerbaras/booklet/pkg/images"
	"github.com/kerbaras/booklet/pkg/integrations"
)

// Status values carried by Progress events.
type Status string

const (
	StatusFetched    Status = "fetched"
	StatusFailed     Status = "failed"
	StatusAssembling Status = "assembling"
	StatusComplete   Status = "complete"
)

// Progress is one pipeline event, suitable for a progress UI.
type Progress struct {
	BookletID string
	Booklet   string
	Chapter   string
	Done      int
	Total     int
	Status    Status
}

// RunSummary is the outcome of one booklet run.
type RunSummary struct {
	BookletID  string
	Title      string
	Chapters   int
	Succeeded  int
	Images     int
	OutputPath string
	EPUBPath   string
}

// ContentClient is the remote API surface the processor needs.
type ContentClient interface {
	ListShelf(ctx context.Context) []string
	GetBooklet(ctx context.Context, bookID string) (*api.Booklet, error)
	GetSectionContent(ctx context.Context, sectionID string) (string, bool)
}

// Processor drives booklet runs. One Processor serves one invocation;
// runs execute sequentially, chapters within a run concurrently.
type Processor struct {
	cfg          *config.Config
	client       ContentClient
	repo         *data.Repository
	logger       *log.Logger
	progressChan chan Progress
}

// NewProcessor wires a processor. repo may be nil to disable history.
func NewProcessor(cfg *config.Config, client ContentClient, repo *data.Repository, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Processor{
		cfg:          cfg,
		client:       client,
		repo:         repo,
		logger:       logger,
		progressChan: make(chan Progress, 100),
	}
}

// Progress returns the event channel. Closed by Close.
func (p *Processor) Progress() <-chan Progress {
	return p.progressChan
}

// Close releases the progress channel once no more runs will happen.
func (p *Processor) Close() {
	close(p.progressChan)
}

// Targets resolves which booklets this invocation processes: the single
// configured id, or the whole owned shelf minus the exclusion list.
// Exclusion ids are matched literally.
func (p *Processor) Targets(ctx context.Context) []string {
	if !p.cfg.DownloadAll {
		return []string{p.cfg.BookID}
	}

	excluded := make(map[string]bool, len(p.cfg.Exclude))
	for _, id := range p.cfg.Exclude {
		excluded[id] = true
	}

	var targets []string
	for _, id := range p.client.ListShelf(ctx) {
		if excluded[id] {
			p.logger.Printf("booklet %s excluded by config", id)
			continue
		}
		targets = append(targets, id)
	}
	return targets
}

// RunAll processes every target booklet, continuing past per-booklet
// failures, and returns the summaries of the runs that completed.
func (p *Processor) RunAll(ctx context.Context) []*RunSummary {
	var summaries []*RunSummary
	for _, bookID := range p.Targets(ctx) {
		summary, err := p.Run(ctx, bookID)
		if err != nil {
			p.logger.Printf("ERROR: booklet %s: %v", bookID, err)
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// Run downloads and assembles one booklet. The chapter list call is the
// only fatal failure; everything after it degrades per chapter or per
// image and still produces an artifact.
func (p *Processor) Run(ctx context.Context, bookID string) (*RunSummary, error) {
	booklet, err := p.client.GetBooklet(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("listing chapters of %s: %w", bookID, err)
	}

	summary := &RunSummary{
		BookletID: bookID,
		Title:     booklet.Title,
		Chapters:  len(booklet.Sections),
	}
	if len(booklet.Sections) == 0 {
		p.logger.Printf("booklet %s (%q) has no chapters, nothing to write", bookID, booklet.Title)
		return summary, nil
	}
	p.logger.Printf("booklet %q: %d chapters", booklet.Title, len(booklet.Sections))

	fetcher, localizer := p.buildFetcher(booklet.Title)

	var done atomic.Int64
	scheduler := fetch.NewScheduler(fetcher, p.cfg.MaxWorkers, p.cfg.RequestDelay(), p.logger)
	scheduler.OnProgress(func(e fetch.Event) {
		status := StatusFetched
		if !e.OK {
			status = StatusFailed
		}
		p.send(Progress{
			BookletID: bookID,
			Booklet:   booklet.Title,
			Chapter:   e.Ref.Title,
			Done:      int(done.Add(1)),
			Total:     e.Total,
			Status:    status,
		})
	})

	results := scheduler.FetchAll(ctx, booklet.Sections)
	for _, r := range results {
		if r.OK {
			summary.Succeeded++
		} else {
			p.logger.Printf("WARN: chapter %q (%s) unavailable", r.Ref.Title, r.Ref.ID)
		}
	}
	if localizer != nil {
		summary.Images = localizer.Count()
	}

	p.send(Progress{
		BookletID: bookID,
		Booklet:   booklet.Title,
		Done:      len(results),
		Total:     len(results),
		Status:    StatusAssembling,
	})

	assembler := export.NewAssembler(export.Options{
		OutputDir:  p.cfg.OutputDir,
		SingleFile: p.cfg.SingleFile,
		AutoTitle:  p.cfg.AutoTitle,
	}, p.logger)
	outputPath, err := assembler.Assemble(booklet.Title, bookID, results)
	if err != nil {
		return nil, err
	}
	summary.OutputPath = outputPath

	if p.cfg.EPUB {
		summary.EPUBPath = p.exportEPUB(booklet.Title, bookID, results)
	}

	p.recordHistory(summary)
	p.send(Progress{
		BookletID: bookID,
		Booklet:   booklet.Title,
		Done:      len(results),
		Total:     len(results),
		Status:    StatusComplete,
	})
	p.logger.Printf("booklet %q done: %d/%d chapters, %d images, output %s",
		booklet.Title, summary.Succeeded, summary.Chapters, summary.Images, outputPath)
	return summary, nil
}

// buildFetcher wraps the API client with image localization when enabled.
// Localizer setup failure downgrades to fetching without localization.
func (p *Processor) buildFetcher(title string) (fetch.ContentFetcher, *images.Localizer) {
	if !p.cfg.LocalizeImages {
		return p.client, nil
	}
	dir := export.ImageDir(p.cfg.OutputDir, title, p.cfg.SingleFile)
	localizer, err := images.NewLocalizer(dir, "img", "", p.logger)
	if err != nil {
		p.logger.Printf("WARN: image localization disabled: %v", err)
		return p.client, nil
	}
	return &localizingFetcher{client: p.client, localizer: localizer}, localizer
}

func (p *Processor) exportEPUB(title, bookID string, results []fetch.Result) string {
	exporter := integrations.NewEPUBExporter(p.cfg.OutputDir, p.logger)
	imageDir := ""
	if p.cfg.LocalizeImages {
		imageDir = export.ImageDir(p.cfg.OutputDir, title, p.cfg.SingleFile)
	}
	path, err := exporter.Export(title, bookID, results, imageDir)
	if err != nil {
		// The markdown artifact already exists; a failed EPUB is a warning.
		p.logger.Printf("WARN: epub export of %q failed: %v", title, err)
		return ""
	}
	return path
}

func (p *Processor) recordHistory(summary *RunSummary) {
	if p.repo == nil {
		return
	}
	err := p.repo.SaveRun(&data.Run{
		BookletID:  summary.BookletID,
		Title:      summary.Title,
		Chapters:   summary.Chapters,
		Succeeded:  summary.Succeeded,
		Images:     summary.Images,
		OutputPath: summary.OutputPath,
		FinishedAt: time.Now().UTC(),
	})
	if err != nil {
		p.logger.Printf("WARN: run history not recorded: %v", err)
	}
}

// send delivers a progress event without ever blocking the pipeline.
func (p *Processor) send(progress Progress) {
	select {
	case p.progressChan <- progress:
	default:
	}
}

// localizingFetcher localizes images inside the fetch workers, so image
// downloads overlap chapter downloads.
type localizingFetcher struct {
	client    ContentClient
	localizer *images.Localizer
}

func (f *localizingFetcher) GetSectionContent(ctx context.Context, sectionID string) (string, bool) {
	body, ok := f.client.GetSectionContent(ctx, sectionID)
	if ok && body != "" {
		body = f.localizer.Localize(ctx, body)
	}
	return body, ok
}
