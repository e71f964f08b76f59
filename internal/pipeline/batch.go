package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/security"
)

// Source kinds a job can ingest
const (
	SourcePDF  = "pdf"
	SourceText = "text"
	SourceHTML = "html"
	SourceURL  = "url"
)

// Job describes one document to run through every stage
type Job struct {
	DocID   string `yaml:"doc_id" json:"doc_id"`
	Kind    string `yaml:"kind" json:"kind"`
	Source  string `yaml:"source" json:"source"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// Manifest lists the jobs of a batch run
type Manifest struct {
	Documents []Job `yaml:"documents"`
	Report    struct {
		Formats []string `yaml:"formats"`
	} `yaml:"report"`
}

// JobResult is the outcome of one job
type JobResult struct {
	DocID     string           `json:"doc_id"`
	Ingest    *IngestResult    `json:"ingest,omitempty"`
	Artifacts *ArtifactsResult `json:"artifacts,omitempty"`
	Merge     *MergeResult     `json:"merge,omitempty"`
	Issues    int              `json:"issues"`
	Error     string           `json:"error,omitempty"`
}

// BatchResult collects job outcomes in manifest order
type BatchResult struct {
	Jobs      []JobResult `json:"jobs"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// LoadManifest reads a YAML batch manifest
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and checks a YAML batch manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("parse manifest: multiple YAML documents are not supported")
		}
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks job fields and doc id uniqueness
func (m *Manifest) Validate() error {
	if len(m.Documents) == 0 {
		return errors.New("manifest: no documents")
	}
	seen := make(map[string]bool, len(m.Documents))
	for i, job := range m.Documents {
		if err := security.ValidateDocID(job.DocID); err != nil {
			return fmt.Errorf("manifest: document %d: %w", i+1, err)
		}
		if seen[job.DocID] {
			return fmt.Errorf("manifest: duplicate doc_id %q", job.DocID)
		}
		seen[job.DocID] = true
		switch job.Kind {
		case SourcePDF, SourceText, SourceHTML, SourceURL:
		default:
			return fmt.Errorf("manifest: %s: unknown kind %q (must be pdf, text, html or url)", job.DocID, job.Kind)
		}
		if strings.TrimSpace(job.Source) == "" {
			return fmt.Errorf("manifest: %s: source is required", job.DocID)
		}
	}
	for _, f := range m.Report.Formats {
		if f != "json" && f != "xlsx" {
			return fmt.Errorf("manifest: unknown report format %q", f)
		}
	}
	return nil
}

// Ingest runs the ingest stage matching the job's source kind
func (s *Service) Ingest(ctx context.Context, job Job) (*IngestResult, error) {
	switch job.Kind {
	case SourcePDF:
		return s.IngestPDF(job.DocID, job.Source)
	case SourceText:
		return s.IngestTextFile(job.DocID, job.Source)
	case SourceHTML:
		return s.IngestHTMLFile(job.DocID, job.Source, job.BaseURL)
	case SourceURL:
		return s.IngestURL(ctx, job.DocID, job.Source)
	}
	return nil, exam.NewInputError(job.DocID, fmt.Sprintf("unknown source kind %q", job.Kind))
}

// Process runs ingest, artifact passes (for HTML sources), merge and
// validation for one job.
func (s *Service) Process(ctx context.Context, job Job) (*JobResult, error) {
	result := &JobResult{DocID: job.DocID}
	var err error

	if result.Ingest, err = s.Ingest(ctx, job); err != nil {
		return result, err
	}

	if job.Kind == SourceHTML || job.Kind == SourceURL {
		if result.Artifacts, err = s.ExtractArtifacts(ctx, job.DocID, nil); err != nil {
			return result, err
		}
	}
	if result.Merge, err = s.Merge(job.DocID); err != nil {
		return result, err
	}
	validated, err := s.Validate(job.DocID)
	if err != nil {
		return result, err
	}
	result.Issues = len(validated.Issues)
	return result, nil
}

// Batch processes jobs one document at a time. A failed document is logged
// and skipped, whatever the failure; only context cancellation stops the
// batch early.
func (s *Service) Batch(ctx context.Context, jobs []Job) (*BatchResult, error) {
	batch := &BatchResult{Jobs: make([]JobResult, 0, len(jobs))}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res, err := s.Process(ctx, job)
		if err != nil {
			res.Error = err.Error()
			batch.Jobs = append(batch.Jobs, *res)
			batch.Failed++
			s.logger.Printf("%s: skipped (%s): %v", job.DocID, exam.TypeOf(err), err)
			continue
		}
		batch.Jobs = append(batch.Jobs, *res)
		batch.Succeeded++
	}
	s.logger.Printf("Batch done: %d succeeded, %d failed", batch.Succeeded, batch.Failed)
	return batch, nil
}
