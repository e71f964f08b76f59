// Package pipeline runs the extraction stages for a document: ingest,
// artifact passes, merge, validation and reporting. Each stage reads its
// inputs from the store and writes its outputs back, so stages can be run
// separately and rerun safely.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/a3tai/mcp-exam-extractor/internal/config"
	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/extract"
	"github.com/a3tai/mcp-exam-extractor/internal/fetch"
	"github.com/a3tai/mcp-exam-extractor/internal/htmlscan"
	"github.com/a3tai/mcp-exam-extractor/internal/merge"
	"github.com/a3tai/mcp-exam-extractor/internal/pdf"
	"github.com/a3tai/mcp-exam-extractor/internal/report"
	"github.com/a3tai/mcp-exam-extractor/internal/rules"
	"github.com/a3tai/mcp-exam-extractor/internal/security"
	"github.com/a3tai/mcp-exam-extractor/internal/store"
	"github.com/a3tai/mcp-exam-extractor/internal/validate"
)

// IngestResult summarizes the base records written for a document
type IngestResult struct {
	DocID         string   `json:"doc_id"`
	Source        string   `json:"source"`
	Questions     int      `json:"questions"`
	LowConfidence int      `json:"low_confidence"`
	Fallback      bool     `json:"fallback"`
	ColorSpans    int      `json:"color_spans,omitempty"`
	Orphaned      int      `json:"orphaned_color_spans,omitempty"`
	Images        int      `json:"images,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// ArtifactsResult summarizes the side-files written by artifact passes
type ArtifactsResult struct {
	DocID      string                                   `json:"doc_id"`
	Stats      map[exam.ArtifactKind]htmlscan.KindStats `json:"stats"`
	Downloaded int                                      `json:"downloaded,omitempty"`
	Warnings   []string                                 `json:"warnings,omitempty"`
}

// MergeResult reports what a merge changed
type MergeResult struct {
	DocID string      `json:"doc_id"`
	Stats merge.Stats `json:"stats"`
}

// ValidateResult holds the issues found for a document
type ValidateResult struct {
	DocID  string       `json:"doc_id"`
	Issues []exam.Issue `json:"issues"`
}

// Service wires the extraction components to the document store
type Service struct {
	cfg          *config.Config
	rules        *rules.Rules
	store        *store.Store
	inputs       *security.PathValidator
	builder      *extract.Builder
	scanner      *htmlscan.Scanner
	validator    *validate.Validator
	pdfReader    *pdf.Reader
	pdfValidator *pdf.Validator
	pdfImages    *pdf.ImageExtractor
	fetcher      fetch.Fetcher
	logger       *log.Logger
}

// NewService creates a pipeline service from configuration
func NewService(cfg *config.Config) (*Service, error) {
	r, err := rules.Load(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	st, err := store.New(cfg.DataDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	inputs, err := security.NewPathValidator(cfg.InputDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}

	segConfig := extract.DefaultSegmenterConfig()
	segConfig.MinContentChars = cfg.MinContentChars
	segmenter, err := extract.NewSegmenter(segConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create segmenter: %w", err)
	}
	scanner := htmlscan.NewScanner(r, cfg.AnchorHops)
	scanner.SetMinContent(cfg.MinContentChars)

	return &Service{
		cfg:          cfg,
		rules:        r,
		store:        st,
		inputs:       inputs,
		builder:      extract.NewBuilder(segmenter),
		scanner:      scanner,
		validator:    validate.New(r),
		pdfReader:    pdf.NewReader(cfg.MaxFileSize),
		pdfValidator: pdf.NewValidator(cfg.MaxFileSize),
		pdfImages:    pdf.NewImageExtractor(cfg.MaxFileSize, r.Thresholds.MinImagePixels),
		fetcher:      fetch.NewHTTPFetcher(fetch.Config{Timeout: cfg.FetchTimeout, MaxBytes: cfg.MaxFileSize}),
		logger:       log.New(os.Stderr, "[Pipeline] ", log.LstdFlags),
	}, nil
}

// SetLogger sets a custom logger for the service and its components
func (s *Service) SetLogger(logger *log.Logger) {
	s.logger = logger
	s.builder.SetLogger(logger)
	s.store.SetLogger(logger)
}

// SetFetcher replaces the fetcher used for URLs and remote images
func (s *Service) SetFetcher(f fetch.Fetcher) {
	s.fetcher = f
}

// Store returns the document store
func (s *Service) Store() *store.Store {
	return s.store
}

// Rules returns the rule tables in use
func (s *Service) Rules() *rules.Rules {
	return s.rules
}

// Config returns the service configuration
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Documents lists the ids of stored documents
func (s *Service) Documents() ([]string, error) {
	return s.store.ListDocuments()
}

// Records returns the stored question records of a document
func (s *Service) Records(docID string) ([]exam.Question, error) {
	return s.store.ReadRecords(docID)
}

// Issues returns the stored validator findings of a document
func (s *Service) Issues(docID string) ([]exam.Issue, error) {
	if !s.store.Exists(docID) {
		if _, err := s.store.ReadRecords(docID); err != nil {
			return nil, err
		}
	}
	return s.store.ReadIssues(docID)
}

// IngestText builds base records from plain text and writes them
func (s *Service) IngestText(docID, text, sourceURL string) (*IngestResult, error) {
	if _, err := s.store.DocDir(docID); err != nil {
		return nil, err
	}
	built := s.builder.Build(docID, text, nil, sourceURL)
	if err := s.store.WriteRecords(docID, built.Records); err != nil {
		return nil, err
	}
	return s.ingestResult(docID, "text", built), nil
}

// IngestTextFile reads a text file from the input directory and ingests it
func (s *Service) IngestTextFile(docID, path string) (*IngestResult, error) {
	data, abs, err := s.readInput(docID, path)
	if err != nil {
		return nil, err
	}
	result, err := s.IngestText(docID, string(data), "")
	if err != nil {
		return nil, err
	}
	result.Source = abs
	return result, nil
}

// IngestPDF extracts page-marked text and embedded images from a PDF in the
// input directory. Images are written to the image side-file keyed by the
// question they most likely belong to.
func (s *Service) IngestPDF(docID, path string) (*IngestResult, error) {
	if _, err := s.store.DocDir(docID); err != nil {
		return nil, err
	}
	abs, err := s.inputs.NormalizePath(path)
	if err != nil {
		return nil, exam.NewPipelineError(exam.ErrorTypeInvalidInput, docID, "security validation failed", err)
	}
	if v := s.pdfValidator.ValidateFile(abs); !v.Valid {
		return nil, exam.NewInputError(docID, v.Message)
	}
	doc, err := s.pdfReader.ReadFile(abs)
	if err != nil {
		return nil, exam.NewPipelineError(exam.ErrorTypeInvalidInput, docID, "read PDF", err)
	}

	built := s.builder.Build(docID, doc.Text, nil, "")
	if err := s.store.WriteRecords(docID, built.Records); err != nil {
		return nil, err
	}
	result := s.ingestResult(docID, abs, built)
	for _, page := range doc.Skipped {
		result.Warnings = append(result.Warnings, fmt.Sprintf("page %d: no extractable text", page))
	}

	images, err := s.pdfImages.ExtractFile(abs)
	if err != nil {
		s.logger.Printf("%s: image extraction failed: %v", docID, err)
		result.Warnings = append(result.Warnings, "image extraction failed: "+err.Error())
		return result, nil
	}
	side, warnings, err := s.storePageImages(docID, images, s.builder.BlockPages(doc.Text),
		extract.ImageKeywordQuestions(built.Records, s.rules))
	if err != nil {
		return nil, err
	}
	result.Warnings = append(result.Warnings, warnings...)
	for _, refs := range side {
		result.Images += len(refs)
	}
	if err := s.store.WriteSideFiles(docID, exam.SideFiles{Images: side}); err != nil {
		return nil, err
	}
	return result, nil
}

// IngestHTML renders an HTML page to text, cuts it into question blocks at
// the anchors the colored spans resolve to, and writes the base records.
// The source is kept so artifact passes can run later.
func (s *Service) IngestHTML(docID string, source []byte, sourceURL string) (*IngestResult, error) {
	if _, err := s.store.DocDir(docID); err != nil {
		return nil, err
	}
	doc, err := htmlscan.Parse(bytes.NewReader(source))
	if err != nil {
		return nil, exam.NewPipelineError(exam.ErrorTypeInvalidInput, docID, "parse HTML", err)
	}
	ix := s.scanner.Index(doc)
	colors := s.scanner.Colors().ExtractIndexed(doc, ix)
	built := s.builder.BuildBlocks(docID, ix.Blocks(), ix.Text(), colors.Streams, sourceURL)
	if err := s.store.WriteRecords(docID, built.Records); err != nil {
		return nil, err
	}
	if err := s.store.WriteSource(docID, source); err != nil {
		return nil, err
	}

	label := sourceURL
	if label == "" {
		label = "html"
	}
	result := s.ingestResult(docID, label, built)
	result.ColorSpans = colors.Spans
	result.Orphaned = colors.Orphaned
	result.Warnings = append(result.Warnings, colors.Warnings...)
	return result, nil
}

// IngestHTMLFile reads an HTML file from the input directory and ingests it
func (s *Service) IngestHTMLFile(docID, path, baseURL string) (*IngestResult, error) {
	data, abs, err := s.readInput(docID, path)
	if err != nil {
		return nil, err
	}
	result, err := s.IngestHTML(docID, data, baseURL)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		result.Source = abs
	}
	return result, nil
}

// IngestURL fetches a page and ingests it as HTML. A fetch failure is
// reported as a document-scoped error.
func (s *Service) IngestURL(ctx context.Context, docID, rawURL string) (*IngestResult, error) {
	if _, err := s.store.DocDir(docID); err != nil {
		return nil, err
	}
	res, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, exam.NewFetchError(docID, rawURL, err)
	}
	return s.IngestHTML(docID, res.Body, res.URL)
}

// ExtractArtifacts runs the requested artifact passes over the stored HTML
// source and writes one side-file per pass. An empty kinds list runs every
// pass. Only the side-files of the passes that ran are replaced.
func (s *Service) ExtractArtifacts(ctx context.Context, docID string, kinds []exam.ArtifactKind) (*ArtifactsResult, error) {
	source, err := s.store.ReadSource(docID)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		kinds = exam.ArtifactKinds()
	}
	doc, err := htmlscan.Parse(bytes.NewReader(source))
	if err != nil {
		return nil, exam.NewPipelineError(exam.ErrorTypeInvalidInput, docID, "parse HTML", err)
	}
	baseURL := s.sourceURL(docID)

	extracted := s.scanner.Artifacts().ExtractIndexed(doc, s.scanner.Index(doc), kinds, baseURL)
	result := &ArtifactsResult{
		DocID:    docID,
		Stats:    extracted.Stats,
		Warnings: extracted.Warnings,
	}
	files := extracted.SideFiles()

	if files.Images != nil && s.cfg.DownloadImages {
		downloaded, warnings, err := s.downloadImages(ctx, docID, files.Images)
		if err != nil {
			return nil, err
		}
		result.Downloaded = downloaded
		result.Warnings = append(result.Warnings, warnings...)
	}

	if err := s.store.WriteSideFiles(docID, files); err != nil {
		return nil, err
	}
	s.logger.Printf("%s: artifact passes %v done", docID, kinds)
	return result, nil
}

// Merge folds the stored side-files into the document's records
func (s *Service) Merge(docID string) (*MergeResult, error) {
	records, err := s.store.ReadRecords(docID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ReadSideFiles(docID)
	if err != nil {
		return nil, err
	}
	merged, stats := merge.MergeDocument(records, files)
	if err := s.store.WriteRecords(docID, merged); err != nil {
		return nil, err
	}
	if len(stats.OrphanQNo) > 0 {
		s.logger.Printf("%s: dropped side-file entries for unknown questions %v", docID, stats.OrphanQNo)
	}
	return &MergeResult{DocID: docID, Stats: stats}, nil
}

// Validate checks the document's records and stores the issues
func (s *Service) Validate(docID string) (*ValidateResult, error) {
	records, err := s.store.ReadRecords(docID)
	if err != nil {
		return nil, err
	}
	issues := s.validator.ValidateAll(records)
	if err := s.store.WriteIssues(docID, issues); err != nil {
		return nil, err
	}
	return &ValidateResult{DocID: docID, Issues: issues}, nil
}

// Report aggregates records and stored issues for docIDs, or for every
// stored document when docIDs is empty.
func (s *Service) Report(docIDs []string) (report.Report, error) {
	if len(docIDs) == 0 {
		all, err := s.store.ListDocuments()
		if err != nil {
			return report.Report{}, err
		}
		docIDs = all
	}
	var records []exam.Question
	var issues []exam.Issue
	for _, docID := range docIDs {
		r, err := s.store.ReadRecords(docID)
		if err != nil {
			return report.Report{}, err
		}
		i, err := s.store.ReadIssues(docID)
		if err != nil {
			return report.Report{}, err
		}
		records = append(records, r...)
		issues = append(issues, i...)
	}
	return report.New(records, issues), nil
}

// WriteReport stores a report in the data directory as JSON or XLSX and
// returns the file path.
func (s *Service) WriteReport(r report.Report, format string) (string, error) {
	switch format {
	case "", "json":
		return s.store.WriteFile("report.json", func(w io.Writer) error {
			return report.WriteJSON(w, r)
		})
	case "xlsx":
		return s.store.WriteFile("report.xlsx", func(w io.Writer) error {
			return report.WriteXLSX(w, r)
		})
	}
	return "", fmt.Errorf("unknown report format: %q (must be json or xlsx)", format)
}

func (s *Service) ingestResult(docID, source string, built extract.BuildResult) *IngestResult {
	result := &IngestResult{
		DocID:     docID,
		Source:    source,
		Questions: len(built.Records),
		Fallback:  built.Fallback,
		Warnings:  append([]string(nil), built.Warnings...),
	}
	for _, q := range built.Records {
		if q.Meta.Confidence < report.LowConfidenceThreshold {
			result.LowConfidence++
		}
	}
	if s.cfg.IsDebug() {
		s.logger.Printf("%s: %d questions from %s (fallback=%v)", docID, result.Questions, source, built.Fallback)
	}
	return result
}

func (s *Service) readInput(docID, path string) ([]byte, string, error) {
	abs, err := s.inputs.NormalizePath(path)
	if err != nil {
		return nil, "", exam.NewPipelineError(exam.ErrorTypeInvalidInput, docID, "security validation failed", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, "", exam.NewPipelineError(exam.ErrorTypeInvalidInput, docID, "cannot access input", err)
	}
	if info.IsDir() {
		return nil, "", exam.NewInputError(docID, "input is a directory: "+abs)
	}
	if info.Size() > s.cfg.MaxFileSize {
		return nil, "", exam.NewInputError(docID, fmt.Sprintf("input too large: %d bytes (max: %d bytes)", info.Size(), s.cfg.MaxFileSize))
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", exam.NewPipelineError(exam.ErrorTypeInvalidInput, docID, "read input", err)
	}
	return data, abs, nil
}

// sourceURL returns the source URL recorded on the document's records
func (s *Service) sourceURL(docID string) string {
	records, err := s.store.ReadRecords(docID)
	if err != nil {
		return ""
	}
	for _, q := range records {
		if q.Meta.SourceURL != "" {
			return q.Meta.SourceURL
		}
	}
	return ""
}
