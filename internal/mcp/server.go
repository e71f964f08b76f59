package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/mcp-exam-extractor/internal/api"
	"github.com/a3tai/mcp-exam-extractor/internal/config"
	"github.com/a3tai/mcp-exam-extractor/internal/descriptions"
	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/pipeline"
)

const shutdownTimeout = 5 * time.Second

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *pipeline.Service
	mcpServer *server.MCPServer
	logger    *log.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *pipeline.Service) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("pipeline service cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcpServer,
		logger:    log.New(os.Stderr, "[MCP] ", log.LstdFlags),
	}
	s.registerTools()
	return s, nil
}

// SetLogger replaces the server logger
func (s *Server) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	docID := mcp.WithString("doc_id",
		mcp.Required(),
		mcp.Description("Document id: letters, digits, '.', '_' or '-'"),
	)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_ingest_pdf",
		mcp.WithDescription(descriptions.IngestPDFDescription),
		docID,
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("PDF path, relative to the input directory"),
		),
	), s.handleIngestPDF)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_ingest_text",
		mcp.WithDescription(descriptions.IngestTextDescription),
		docID,
		mcp.WithString("text", mcp.Description("Exam text to ingest")),
		mcp.WithString("path", mcp.Description("Text file path, relative to the input directory")),
		mcp.WithString("source_url", mcp.Description("Optional URL recorded on every record")),
	), s.handleIngestText)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_ingest_html",
		mcp.WithDescription(descriptions.IngestHTMLDescription),
		docID,
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("HTML file path, relative to the input directory"),
		),
		mcp.WithString("base_url", mcp.Description("URL the page was saved from, for resolving image links")),
	), s.handleIngestHTML)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_ingest_url",
		mcp.WithDescription(descriptions.IngestURLDescription),
		docID,
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("http or https URL of the exam page"),
		),
	), s.handleIngestURL)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_extract_artifacts",
		mcp.WithDescription(descriptions.ExtractArtifactsDescription),
		docID,
		mcp.WithString("kinds", mcp.Description("Comma-separated kinds: code, image, table (default: all)")),
	), s.handleExtractArtifacts)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_merge",
		mcp.WithDescription(descriptions.MergeDescription),
		docID,
	), s.handleMerge)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_validate",
		mcp.WithDescription(descriptions.ValidateDescription),
		docID,
	), s.handleValidate)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_report",
		mcp.WithDescription(descriptions.ReportDescription),
		mcp.WithString("doc_ids", mcp.Description("Comma-separated document ids (default: all)")),
		mcp.WithString("format", mcp.Description("Report file format: json or xlsx (default: json)")),
	), s.handleReport)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_get_records",
		mcp.WithDescription(descriptions.GetRecordsDescription),
		docID,
		mcp.WithString("q_no", mcp.Description("Optional question number such as Q007")),
	), s.handleGetRecords)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_list_documents",
		mcp.WithDescription(descriptions.ListDocumentsDescription),
	), s.handleListDocuments)

	s.mcpServer.AddTool(mcp.NewTool(
		"exam_server_info",
		mcp.WithDescription(descriptions.ServerInfoDescription),
	), s.handleServerInfo)
}

// Handler functions
func (s *Server) handleIngestPDF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.IngestPDF(docID, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatIngestResult(result)), nil
}

func (s *Server) handleIngestText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text := request.GetString("text", "")
	path := request.GetString("path", "")

	var result *pipeline.IngestResult
	switch {
	case text != "" && path != "":
		return mcp.NewToolResultError("give either text or path, not both"), nil
	case text != "":
		result, err = s.service.IngestText(docID, text, request.GetString("source_url", ""))
	case path != "":
		result, err = s.service.IngestTextFile(docID, path)
	default:
		return mcp.NewToolResultError("one of text or path is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatIngestResult(result)), nil
}

func (s *Server) handleIngestHTML(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.IngestHTMLFile(docID, path, request.GetString("base_url", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatIngestResult(result)), nil
}

func (s *Server) handleIngestURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.IngestURL(ctx, docID, url)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatIngestResult(result)), nil
}

func (s *Server) handleExtractArtifacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var kinds []exam.ArtifactKind
	for _, k := range splitList(request.GetString("kinds", "")) {
		kind, err := exam.ParseArtifactKind(k)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		kinds = append(kinds, kind)
	}

	result, err := s.service.ExtractArtifacts(ctx, docID, kinds)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Artifact passes for %s\n", result.DocID)
	for _, kind := range exam.ArtifactKinds() {
		st, ok := result.Stats[kind]
		if !ok {
			continue
		}
		text += fmt.Sprintf("• %s: %d found, %d attached, %d orphaned, %d rejected\n",
			kind, st.Found, st.Attached, st.Orphaned, st.Rejected)
	}
	if result.Downloaded > 0 {
		text += fmt.Sprintf("Images downloaded: %d\n", result.Downloaded)
	}
	text += formatWarnings(result.Warnings)
	text += "\nNext: run exam_merge to fold the side-files into the records.\n"
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleMerge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.Merge(docID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Merged side-files into %s (%d records)\n", result.DocID, result.Stats.Records)
	for _, kind := range exam.ArtifactKinds() {
		text += fmt.Sprintf("• %s: %d updated, %d retained, %d orphaned\n",
			kind, result.Stats.Updated[kind], result.Stats.Retained[kind], result.Stats.Orphans[kind])
	}
	if len(result.Stats.OrphanQNo) > 0 {
		text += fmt.Sprintf("Side-file entries with no record: %s\n", strings.Join(result.Stats.OrphanQNo, ", "))
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.Validate(docID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(result.Issues) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No issues found in %s", result.DocID)), nil
	}
	text := fmt.Sprintf("Found %d issue(s) in %s\n\n", len(result.Issues), result.DocID)
	for _, issue := range result.Issues {
		text += fmt.Sprintf("[P%d] %s %s: %s\n", issue.Priority, issue.QNo, issue.Type, issue.Message)
		if issue.Evidence != "" {
			text += fmt.Sprintf("     evidence: %s\n", issue.Evidence)
		}
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := request.GetString("format", "json")

	rep, err := s.service.Report(splitList(request.GetString("doc_ids", "")))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.service.WriteReport(rep, format)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	total := rep.Summary.Total
	text := fmt.Sprintf("Report %s written to %s\n", rep.Summary.RunID, path)
	text += fmt.Sprintf("Documents: %d\n", len(rep.Summary.Documents))
	text += fmt.Sprintf("Questions: %d\n", total.Questions)
	text += fmt.Sprintf("With answer: %d (%.1f%%)\n", total.WithAnswer, total.AnswerPct)
	text += fmt.Sprintf("With explanation: %d (%.1f%%)\n", total.WithExplanation, total.ExplanationPct)
	text += fmt.Sprintf("With choices: %d (%.1f%%)\n", total.WithChoices, total.ChoicesPct)
	text += fmt.Sprintf("Artifacts: %d code blocks, %d images, %d tables\n", total.CodeBlocks, total.Images, total.Tables)
	text += fmt.Sprintf("Low confidence: %d (mean confidence %.2f)\n", total.LowConfidence, total.MeanConfidence)
	text += fmt.Sprintf("Issues: %d\n", total.Issues)

	priorities := make([]int, 0, len(total.IssuesByPriority))
	for p := range total.IssuesByPriority {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)
	for _, p := range priorities {
		text += fmt.Sprintf("  P%d: %d\n", p, total.IssuesByPriority[p])
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleGetRecords(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	records, err := s.service.Records(docID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var payload any = records
	if qno := request.GetString("q_no", ""); qno != "" {
		payload = nil
		for _, q := range records {
			if q.QNo == qno {
				payload = q
				break
			}
		}
		if payload == nil {
			return mcp.NewToolResultError(fmt.Sprintf("question %s not found in %s", qno, docID)), nil
		}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.service.Documents()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("No documents ingested yet"), nil
	}
	text := fmt.Sprintf("Found %d document(s):\n", len(docs))
	for i, doc := range docs {
		text += fmt.Sprintf("%d. %s\n", i+1, doc)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.service.Documents()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rules := s.service.Rules()

	text := fmt.Sprintf("📋 %s v%s - Server Information\n", s.config.ServerName, s.config.Version)
	text += fmt.Sprintf("📁 Input Directory: %s\n", s.config.InputDirectory)
	text += fmt.Sprintf("🗄️  Data Directory: %s\n", s.config.DataDirectory)
	text += fmt.Sprintf("📏 Max File Size: %d MB\n", s.config.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("📐 Rules Version: %s\n", rules.Version)
	text += fmt.Sprintf("🔗 Anchor Hops: %d\n", s.config.AnchorHops)
	text += fmt.Sprintf("🖼️  Download Images: %t\n\n", s.config.DownloadImages)

	if len(docs) > 0 {
		text += fmt.Sprintf("📂 Documents (%d):\n", len(docs))
		for i, doc := range docs {
			if i >= 10 {
				text += fmt.Sprintf("   ... and %d more\n", len(docs)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s\n", i+1, doc)
		}
	} else {
		text += "📂 Documents: none ingested yet\n"
	}

	text += "\n🛠️  Recommended order:\n"
	text += "  1. exam_ingest_pdf | exam_ingest_text | exam_ingest_html | exam_ingest_url\n"
	text += "  2. exam_extract_artifacts (HTML sources only)\n"
	text += "  3. exam_merge\n"
	text += "  4. exam_validate\n"
	text += "  5. exam_report\n"
	return mcp.NewToolResultText(text), nil
}

// Formatting helpers
func formatIngestResult(result *pipeline.IngestResult) string {
	text := fmt.Sprintf("Ingested %s from %s\n", result.DocID, result.Source)
	text += fmt.Sprintf("Questions: %d\n", result.Questions)
	text += fmt.Sprintf("Low confidence: %d\n", result.LowConfidence)
	if result.Fallback {
		text += "\n⚠️  WARNING: no numbered questions were found; the whole text was kept as one record.\n"
	}
	if result.ColorSpans > 0 {
		text += fmt.Sprintf("Colored spans: %d (%d without a question)\n", result.ColorSpans, result.Orphaned)
	}
	if result.Images > 0 {
		text += fmt.Sprintf("Images attached: %d\n", result.Images)
	}
	return text + formatWarnings(result.Warnings)
}

func formatWarnings(warnings []string) string {
	if len(warnings) == 0 {
		return ""
	}
	text := fmt.Sprintf("\nWarnings (%d):\n", len(warnings))
	for i, w := range warnings {
		if i >= 20 {
			text += fmt.Sprintf("  ... and %d more\n", len(warnings)-20)
			break
		}
		text += fmt.Sprintf("  • %s\n", w)
	}
	return text
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Run starts the server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsServerMode() {
		return s.runServerMode(ctx)
	}
	return s.runStdioMode(ctx)
}

// runStdioMode serves the MCP tools over stdin/stdout
func (s *Server) runStdioMode(_ context.Context) error {
	if s.config.IsDebug() {
		s.logger.Printf("Starting exam MCP server in stdio mode")
		s.logger.Printf("Input directory: %s", s.config.InputDirectory)
		s.logger.Printf("Data directory: %s", s.config.DataDirectory)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves the HTTP API until ctx is cancelled
func (s *Server) runServerMode(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Address(),
		Handler:           api.NewRouter(s.service, s.config.MaxFileSize, s.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("HTTP API listening on %s", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
