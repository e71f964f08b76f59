package mcp

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-exam-extractor/internal/config"
	"github.com/a3tai/mcp-exam-extractor/internal/pipeline"
)

const examPage = `<body>
<p>1. 다음 그림과 같은 자료구조의 이름은 무엇인가?</p>
<img src="/tree.png" width="200" height="200">
<p>① 스택<br>② 큐<br>③ 트리</p>
<p><span style="color:#009a87">③</span></p>
<p>2. 다음 SQL 문의 실행 결과로 옳은 것은 무엇인가?</p>
<pre>SELECT name
FROM student WHERE grade &gt; 3;</pre>
</body>`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.InputDirectory = t.TempDir()
	cfg.DataDirectory = t.TempDir()
	cfg.ServerName = "test-server"
	cfg.Version = "1.0.0"

	svc, err := pipeline.NewService(cfg)
	require.NoError(t, err)
	quiet := log.New(io.Discard, "", 0)
	svc.SetLogger(quiet)

	s, err := NewServer(cfg, svc)
	require.NoError(t, err)
	s.SetLogger(quiet)
	return s
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Arguments: args},
	}
}

func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}
	return ""
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(config.DefaultConfig(), nil)
	assert.Error(t, err)

	s := newTestServer(t)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.service)
}

func TestServer_HandleIngestText(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleIngestText(ctx, call(map[string]any{
		"doc_id": "quiz-1",
		"text":   "1. 다음 중 운영체제가 아닌 것은?\n① Linux\n② Windows\n③ Excel\n정답: ③",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	text := extractTextFromResult(result)
	assert.Contains(t, text, "Ingested quiz-1")
	assert.Contains(t, text, "Questions: 1")

	result, err = s.handleGetRecords(ctx, call(map[string]any{"doc_id": "quiz-1", "q_no": "Q001"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, extractTextFromResult(result), `"keys": [`)

	result, err = s.handleGetRecords(ctx, call(map[string]any{"doc_id": "quiz-1", "q_no": "Q002"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestServer_HandleIngestTextArguments(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing doc id", map[string]any{"text": "1. a"}, "doc_id"},
		{"neither", map[string]any{"doc_id": "a"}, "one of text or path"},
		{"both", map[string]any{"doc_id": "a", "text": "1. a", "path": "a.txt"}, "not both"},
		{"escape", map[string]any{"doc_id": "a", "path": "../../etc/passwd"}, "security validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handleIngestText(ctx, call(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractTextFromResult(result), tt.want)
		})
	}
}

func TestServer_HTMLWorkflow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(s.config.InputDirectory, "page.html"), []byte(examPage), 0o644))

	result, err := s.handleIngestHTML(ctx, call(map[string]any{
		"doc_id":   "blog-1",
		"path":     "page.html",
		"base_url": "https://example.com/exam",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))
	assert.Contains(t, extractTextFromResult(result), "Colored spans: 1")

	result, err = s.handleExtractArtifacts(ctx, call(map[string]any{"doc_id": "blog-1"}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))
	assert.Contains(t, extractTextFromResult(result), "• image: 1 found, 1 attached")

	result, err = s.handleMerge(ctx, call(map[string]any{"doc_id": "blog-1"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "• code: 1 updated")

	result, err = s.handleValidate(ctx, call(map[string]any{"doc_id": "blog-1"}))
	require.NoError(t, err)
	text := extractTextFromResult(result)
	assert.Contains(t, text, "Found 1 issue(s) in blog-1")
	assert.Contains(t, text, "[P2] Q002 answer-missing")

	result, err = s.handleReport(ctx, call(map[string]any{"format": "xlsx"}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(result))
	text = extractTextFromResult(result)
	assert.Contains(t, text, "report.xlsx")
	assert.Contains(t, text, "Questions: 2")
	assert.FileExists(t, filepath.Join(s.config.DataDirectory, "report.xlsx"))

	result, err = s.handleListDocuments(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "1. blog-1")
}

func TestServer_HandleExtractArtifactsErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleExtractArtifacts(ctx, call(map[string]any{"doc_id": "a", "kinds": "code,video"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractTextFromResult(result), "unknown artifact kind")

	result, err = s.handleExtractArtifacts(ctx, call(map[string]any{"doc_id": "a"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractTextFromResult(result), "no HTML source")
}

func TestServer_HandleIngestURLRejectsScheme(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleIngestURL(context.Background(), call(map[string]any{
		"doc_id": "a",
		"url":    "file:///etc/passwd",
	}))

	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractTextFromResult(result), "FETCH_FAILURE")
}

func TestServer_HandleIngestPDFRejectsNonPDF(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.config.InputDirectory, "notes.txt"), []byte("x"), 0o644))

	result, err := s.handleIngestPDF(context.Background(), call(map[string]any{"doc_id": "a", "path": "notes.txt"}))

	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestServer_HandleServerInfo(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleServerInfo(context.Background(), call(nil))

	require.NoError(t, err)
	text := extractTextFromResult(result)
	assert.Contains(t, text, "test-server v1.0.0")
	assert.Contains(t, text, "Documents: none ingested yet")
	assert.True(t, strings.Contains(text, "exam_extract_artifacts"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList(""))
}

func TestServer_Run_ServerModeStopsOnCancel(t *testing.T) {
	s := newTestServer(t)
	s.config.Mode = config.ModeServer
	s.config.Host = "127.0.0.1"
	s.config.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, s.Run(ctx))
}
