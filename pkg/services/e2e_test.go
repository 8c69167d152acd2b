package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kerbaras/booklet/pkg/api"
	"github.com/kerbaras/booklet/pkg/config"
	"github.com/kerbaras/booklet/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// End-to-end test of the full pipeline against a fake booklet API: real
// client, real scheduler, real localizer and assembler.

func TestE2E_FullDownloadPipeline(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	var imageHits int

	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/booklet_api/v1/booklet/bookletshelflist", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"err_no": 0, "err_msg": "success", "data": [
			{"booklet_id": "7001"}, {"booklet_id": "7777"}
		]}`)
	})
	mux.HandleFunc("/booklet_api/v1/booklet/get", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"err_no": 0, "err_msg": "success", "data": {
			"booklet": {"base_info": {"title": "Practical Pipelines"}},
			"sections": [
				{"draft_title": "Intro", "section_id": "s1"},
				{"draft_title": "Broken", "section_id": "s2"},
				{"draft_title": "Outro", "section_id": "s3"}
			]
		}}`)
	})
	mux.HandleFunc("/booklet_api/v1/section/get", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		switch payload["section_id"] {
		case "s1":
			body := fmt.Sprintf("intro text ![pic](%s/assets/cover.png)", server.URL)
			resp := map[string]any{
				"err_no": 0, "err_msg": "success",
				"data": map[string]any{"section": map[string]string{"markdown_show": body}},
			}
			json.NewEncoder(w).Encode(resp)
		case "s3":
			io.WriteString(w, `{"err_no": 0, "err_msg": "success", "data": {"section": {"markdown_show": "outro text"}}}`)
		default:
			io.WriteString(w, `{"err_no": 1, "err_msg": "section unavailable"}`)
		}
	})
	mux.HandleFunc("/assets/cover.png", func(w http.ResponseWriter, r *http.Request) {
		imageHits++
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-payload"))
	})

	server = httptest.NewServer(mux)
	defer server.Close()

	cfg := &config.Config{
		Cookie:         "sessionid=abc",
		OutputDir:      t.TempDir(),
		MaxWorkers:     3,
		AutoTitle:      true,
		DownloadAll:    true,
		SingleFile:     true,
		LocalizeImages: true,
		EPUB:           true,
		Exclude:        []string{"7777"},
		HistoryDB:      filepath.Join(t.TempDir(), "history.db"),
	}

	client := api.NewClient(server.URL, cfg.Cookie, log.New(io.Discard, "", 0))
	repo, err := data.Open(cfg.HistoryDB)
	require.NoError(t, err)
	defer repo.Close()

	proc := NewProcessor(cfg, client, repo, nil)
	summaries := proc.RunAll(context.Background())

	// 7777 is excluded, so exactly one booklet ran.
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, "7001", s.BookletID)
	assert.Equal(t, 3, s.Chapters)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Images)
	assert.NotEmpty(t, s.EPUBPath)

	doc, err := os.ReadFile(s.OutputPath)
	require.NoError(t, err)
	text := string(doc)

	assert.Contains(t, text, "# Practical Pipelines")
	assert.Contains(t, text, "1. Intro\n2. Broken\n3. Outro")
	assert.Contains(t, text, "content unavailable")
	assert.Contains(t, text, "![pic](img/")
	assert.NotContains(t, text, server.URL)

	// One image, downloaded once, present on disk.
	assert.Equal(t, 1, imageHits)
	entries, err := os.ReadDir(filepath.Join(cfg.OutputDir, "img"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".png"))

	// EPUB artifact written alongside the markdown.
	_, err = os.Stat(s.EPUBPath)
	require.NoError(t, err)

	// History recorded the run.
	runs, err := repo.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "7001", runs[0].BookletID)
	assert.Equal(t, 2, runs[0].Succeeded)
}
