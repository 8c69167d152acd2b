package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kerbaras/booklet/pkg/api"
	"github.com/kerbaras/booklet/pkg/config"
	"github.com/kerbaras/booklet/pkg/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient is an in-memory ContentClient. Sections absent from the
// sections map report as unavailable, mirroring the real client's
// downgrade behavior.
type mockClient struct {
	shelf      []string
	booklets   map[string]*api.Booklet
	sections   map[string]string
	bookletErr error
}

func (m *mockClient) ListShelf(ctx context.Context) []string {
	return m.shelf
}

func (m *mockClient) GetBooklet(ctx context.Context, bookID string) (*api.Booklet, error) {
	if m.bookletErr != nil {
		return nil, m.bookletErr
	}
	b, ok := m.booklets[bookID]
	if !ok {
		return nil, &api.RemoteError{Code: 404, Message: "no such booklet"}
	}
	return b, nil
}

func (m *mockClient) GetSectionContent(ctx context.Context, sectionID string) (string, bool) {
	body, ok := m.sections[sectionID]
	return body, ok
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Cookie:     "c",
		OutputDir:  t.TempDir(),
		MaxWorkers: 3,
		AutoTitle:  true,
		SingleFile: true,
	}
}

func threeChapterClient() *mockClient {
	return &mockClient{
		booklets: map[string]*api.Booklet{
			"7001": {
				Title: "Test Booklet",
				Sections: []api.SectionRef{
					{Title: "One", ID: "s1"},
					{Title: "Two", ID: "s2"},
					{Title: "Three", ID: "s3"},
				},
			},
		},
		sections: map[string]string{
			"s1": "first body",
			// s2 missing: its fetch fails
			"s3": "third body",
		},
	}
}

func TestRun_PartialFailureStillProducesFullArtifact(t *testing.T) {
	cfg := testConfig(t)
	p := NewProcessor(cfg, threeChapterClient(), nil, nil)

	summary, err := p.Run(context.Background(), "7001")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Chapters)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "Test Booklet.md"), summary.OutputPath)

	data, err := os.ReadFile(summary.OutputPath)
	require.NoError(t, err)
	doc := string(data)

	// TOC still lists all three chapters and the failed one is a
	// placeholder in position, not a gap.
	assert.Contains(t, doc, "1. One\n2. Two\n3. Three")
	assert.Contains(t, doc, "# Two\n\n"+export.Placeholder)
	assert.Less(t, strings.Index(doc, "first body"), strings.Index(doc, export.Placeholder))
	assert.Less(t, strings.Index(doc, export.Placeholder), strings.Index(doc, "third body"))
}

func TestRun_LocalizesImagesInSingleFileMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	imgURL := server.URL + "/y.png"
	client := &mockClient{
		booklets: map[string]*api.Booklet{
			"7001": {Title: "B", Sections: []api.SectionRef{{Title: "Ch", ID: "s1"}}},
		},
		sections: map[string]string{
			"s1": fmt.Sprintf("intro ![alt](%s) outro", imgURL),
		},
	}

	cfg := testConfig(t)
	cfg.LocalizeImages = true
	p := NewProcessor(cfg, client, nil, nil)

	summary, err := p.Run(context.Background(), "7001")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Images)

	doc, err := os.ReadFile(summary.OutputPath)
	require.NoError(t, err)
	assert.NotContains(t, string(doc), imgURL)
	assert.Contains(t, string(doc), "![alt](img/")

	// The referenced file exists on disk with the fetched bytes.
	entries, err := os.ReadDir(filepath.Join(cfg.OutputDir, "img"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	bytes, err := os.ReadFile(filepath.Join(cfg.OutputDir, "img", entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), bytes)
}

func TestRun_ListFailureIsFatalForThatBooklet(t *testing.T) {
	client := &mockClient{bookletErr: &api.RemoteError{Code: 500, Message: "boom"}}
	p := NewProcessor(testConfig(t), client, nil, nil)

	_, err := p.Run(context.Background(), "7001")
	var rerr *api.RemoteError
	require.ErrorAs(t, err, &rerr)
}

func TestRun_ZeroChaptersIsNothingToWrite(t *testing.T) {
	client := &mockClient{
		booklets: map[string]*api.Booklet{"7001": {Title: "Empty"}},
	}
	cfg := testConfig(t)
	p := NewProcessor(cfg, client, nil, nil)

	summary, err := p.Run(context.Background(), "7001")
	require.NoError(t, err)
	assert.Zero(t, summary.Chapters)
	assert.Empty(t, summary.OutputPath)

	// No booklet file was created.
	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_MultiFileMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.SingleFile = false
	p := NewProcessor(cfg, threeChapterClient(), nil, nil)

	summary, err := p.Run(context.Background(), "7001")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "Test Booklet"), summary.OutputPath)

	entries, err := os.ReadDir(summary.OutputPath)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"001_One.md", "002_Two.md", "003_Three.md"}, names)
}

func TestRun_EPUBExport(t *testing.T) {
	cfg := testConfig(t)
	cfg.EPUB = true
	p := NewProcessor(cfg, threeChapterClient(), nil, nil)

	summary, err := p.Run(context.Background(), "7001")
	require.NoError(t, err)
	require.NotEmpty(t, summary.EPUBPath)

	info, err := os.Stat(summary.EPUBPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestTargets_ExclusionIsLiteral(t *testing.T) {
	client := &mockClient{shelf: []string{"7001", "7002", "7003"}}
	cfg := testConfig(t)
	cfg.DownloadAll = true
	cfg.Exclude = []string{"7002", " 7003"} // the padded id does not match

	p := NewProcessor(cfg, client, nil, nil)
	assert.Equal(t, []string{"7001", "7003"}, p.Targets(context.Background()))
}

func TestTargets_SingleBooklet(t *testing.T) {
	cfg := testConfig(t)
	cfg.DownloadAll = false
	cfg.BookID = "9999"

	p := NewProcessor(cfg, &mockClient{shelf: []string{"7001"}}, nil, nil)
	assert.Equal(t, []string{"9999"}, p.Targets(context.Background()))
}

func TestRunAll_ContinuesPastBookletFailure(t *testing.T) {
	client := threeChapterClient()
	client.shelf = []string{"missing", "7001"}

	cfg := testConfig(t)
	cfg.DownloadAll = true
	p := NewProcessor(cfg, client, nil, nil)

	summaries := p.RunAll(context.Background())
	require.Len(t, summaries, 1)
	assert.Equal(t, "7001", summaries[0].BookletID)
}

func TestProgressEvents(t *testing.T) {
	cfg := testConfig(t)
	p := NewProcessor(cfg, threeChapterClient(), nil, nil)

	_, err := p.Run(context.Background(), "7001")
	require.NoError(t, err)
	p.Close()

	var fetched, failed, complete int
	for ev := range p.Progress() {
		switch ev.Status {
		case StatusFetched:
			fetched++
		case StatusFailed:
			failed++
		case StatusComplete:
			complete++
		}
	}
	assert.Equal(t, 2, fetched)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, complete)
}
