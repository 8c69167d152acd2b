package data

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSaveAndListRuns(t *testing.T) {
	repo := setupTestRepo(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	runs := []*Run{
		{BookletID: "7001", Title: "First", Chapters: 10, Succeeded: 10, Images: 4, OutputPath: "out/First.md", FinishedAt: base},
		{BookletID: "7002", Title: "Second", Chapters: 5, Succeeded: 4, Images: 0, OutputPath: "out/Second.md", FinishedAt: base.Add(time.Hour)},
	}
	for _, run := range runs {
		require.NoError(t, repo.SaveRun(run))
	}

	got, err := repo.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Most recent first.
	assert.Equal(t, "7002", got[0].BookletID)
	assert.Equal(t, 4, got[0].Succeeded)
	assert.Equal(t, "7001", got[1].BookletID)
	assert.Equal(t, 4, got[1].Images)
	assert.True(t, got[1].FinishedAt.Equal(base))
}

func TestListRuns_Limit(t *testing.T) {
	repo := setupTestRepo(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.SaveRun(&Run{
			BookletID:  "7001",
			Title:      "B",
			Chapters:   1,
			Succeeded:  1,
			OutputPath: "out/B.md",
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := repo.ListRuns(3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestListRuns_Empty(t *testing.T) {
	repo := setupTestRepo(t)
	got, err := repo.ListRuns(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
