package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
)

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
documents:
  - doc_id: exam-2023-1
    kind: pdf
    source: exams/2023-1.pdf
  - doc_id: blog-17
    kind: url
    source: https://blog.example.com/17
report:
  formats: [json, xlsx]
`))

	require.NoError(t, err)
	require.Len(t, m.Documents, 2)
	assert.Equal(t, Job{DocID: "blog-17", Kind: SourceURL, Source: "https://blog.example.com/17"}, m.Documents[1])
	assert.Equal(t, []string{"json", "xlsx"}, m.Report.Formats)
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "documents: []\n", "no documents"},
		{"unknown field", "documents:\n  - doc_id: a\n    kind: pdf\n    source: a.pdf\n    pages: 3\n", "field pages not found"},
		{"bad doc id", "documents:\n  - doc_id: ../x\n    kind: pdf\n    source: a.pdf\n", "document 1"},
		{"duplicate", "documents:\n  - {doc_id: a, kind: pdf, source: a.pdf}\n  - {doc_id: a, kind: text, source: a.txt}\n", "duplicate doc_id"},
		{"kind", "documents:\n  - {doc_id: a, kind: docx, source: a.docx}\n", "unknown kind"},
		{"source", "documents:\n  - {doc_id: a, kind: pdf, source: ' '}\n", "source is required"},
		{"format", "documents:\n  - {doc_id: a, kind: pdf, source: a.pdf}\nreport:\n  formats: [csv]\n", "unknown report format"},
		{"multi document", "documents:\n  - {doc_id: a, kind: pdf, source: a.pdf}\n---\ndocuments: []\n", "multiple YAML documents"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read manifest")
}

func TestBatch_SkipsFailedDocuments(t *testing.T) {
	s := newTestService(t)
	s.SetFetcher(fakeFetcher{})
	writeInput(t, s, "page.html", examHTML)
	writeInput(t, s, "exam.txt", "1. 다음 중 운영체제가 아닌 것은?\n① Linux\n② Windows\n③ Excel\n정답: ③")

	batch, err := s.Batch(context.Background(), []Job{
		{DocID: "html-1", Kind: SourceHTML, Source: "page.html", BaseURL: "https://example.com/exam"},
		{DocID: "missing", Kind: SourceText, Source: "nope.txt"},
		{DocID: "text-1", Kind: SourceText, Source: "exam.txt"},
		{DocID: "url-1", Kind: SourceURL, Source: "https://blog.example.com/404"},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, 2, batch.Failed)
	require.Len(t, batch.Jobs, 4)

	assert.Empty(t, batch.Jobs[0].Error)
	require.NotNil(t, batch.Jobs[0].Artifacts)
	require.NotNil(t, batch.Jobs[0].Merge)
	assert.Equal(t, 1, batch.Jobs[0].Merge.Stats.Updated[exam.ArtifactImage])
	assert.Equal(t, 1, batch.Jobs[0].Issues)

	assert.NotEmpty(t, batch.Jobs[1].Error)
	assert.Nil(t, batch.Jobs[2].Artifacts)
	assert.Equal(t, 0, batch.Jobs[2].Issues)
	assert.Contains(t, batch.Jobs[3].Error, "FETCH_FAILURE")

	docs, err := s.Store().ListDocuments()
	require.NoError(t, err)
	assert.Equal(t, []string{"html-1", "text-1"}, docs)
}

func TestBatch_StopsOnCancel(t *testing.T) {
	s := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := s.Batch(ctx, []Job{{DocID: "a", Kind: SourceText, Source: "a.txt"}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, batch.Jobs)
}

func TestBatch_ContinuesAfterStorageError(t *testing.T) {
	s := newTestService(t)
	writeInput(t, s, "exam.txt", "1. 다음 중 운영체제가 아닌 것은?\n① Linux\n② Excel\n정답: ②")
	// a file where the document directory should be makes every write fail
	require.NoError(t, os.WriteFile(filepath.Join(s.Store().Root(), "blocked"), nil, 0o644))

	batch, err := s.Batch(context.Background(), []Job{
		{DocID: "blocked", Kind: SourceText, Source: "exam.txt"},
		{DocID: "after", Kind: SourceText, Source: "exam.txt"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, 1, batch.Succeeded)
	assert.Contains(t, batch.Jobs[0].Error, "STORAGE")
	assert.True(t, s.Store().Exists("after"))
}
