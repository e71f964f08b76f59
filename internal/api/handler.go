package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/pipeline"
	"github.com/a3tai/mcp-exam-extractor/internal/report"
)

const defaultMaxBody = 32 << 20

type pipelineService interface {
	Ingest(ctx context.Context, job pipeline.Job) (*pipeline.IngestResult, error)
	IngestText(docID, text, sourceURL string) (*pipeline.IngestResult, error)
	IngestHTML(docID string, source []byte, sourceURL string) (*pipeline.IngestResult, error)
	ExtractArtifacts(ctx context.Context, docID string, kinds []exam.ArtifactKind) (*pipeline.ArtifactsResult, error)
	Merge(docID string) (*pipeline.MergeResult, error)
	Validate(docID string) (*pipeline.ValidateResult, error)
	Report(docIDs []string) (report.Report, error)
	Documents() ([]string, error)
	Records(docID string) ([]exam.Question, error)
	Issues(docID string) ([]exam.Issue, error)
}

// Handler serves the pipeline stages over HTTP
type Handler struct {
	svc     pipelineService
	maxBody int64
	logger  *log.Logger
}

type ingestRequest struct {
	Kind    string `json:"kind"`
	Source  string `json:"source"`
	BaseURL string `json:"base_url"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

type artifactsRequest struct {
	Kinds []string `json:"kinds"`
}

// NewHandler creates a handler; maxBody caps request bodies (0 for the default)
func NewHandler(svc pipelineService, maxBody int64, logger *log.Logger) *Handler {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Handler{svc: svc, maxBody: maxBody, logger: logger}
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.Documents()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteOK(w, r, http.StatusOK, map[string]any{"documents": docs})
}

func (h *Handler) Questions(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	records, err := h.svc.Records(docID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if qno := strings.TrimSpace(r.URL.Query().Get("q_no")); qno != "" {
		for _, q := range records {
			if q.QNo == qno {
				WriteOK(w, r, http.StatusOK, q)
				return
			}
		}
		WriteError(w, r, http.StatusNotFound, fmt.Sprintf("question %s not found in %s", qno, docID))
		return
	}
	WriteOK(w, r, http.StatusOK, map[string]any{"doc_id": docID, "questions": records})
}

func (h *Handler) Issues(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	issues, err := h.svc.Issues(docID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteOK(w, r, http.StatusOK, map[string]any{"doc_id": docID, "issues": issues})
}

// Ingest accepts inline text or HTML, or a source kind and path/URL
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	var req ingestRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	var (
		result *pipeline.IngestResult
		err    error
	)
	switch {
	case req.Text != "" && req.HTML != "":
		WriteError(w, r, http.StatusBadRequest, "give either text or html, not both")
		return
	case req.Text != "":
		result, err = h.svc.IngestText(docID, req.Text, req.BaseURL)
	case req.HTML != "":
		result, err = h.svc.IngestHTML(docID, []byte(req.HTML), req.BaseURL)
	case req.Kind == "" || req.Source == "":
		WriteError(w, r, http.StatusBadRequest, "kind and source are required")
		return
	default:
		result, err = h.svc.Ingest(r.Context(), pipeline.Job{
			DocID:   docID,
			Kind:    req.Kind,
			Source:  req.Source,
			BaseURL: req.BaseURL,
		})
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteOK(w, r, http.StatusCreated, result)
}

func (h *Handler) Artifacts(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	var req artifactsRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	kinds := make([]exam.ArtifactKind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kind, err := exam.ParseArtifactKind(k)
		if err != nil {
			WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		kinds = append(kinds, kind)
	}

	result, err := h.svc.ExtractArtifacts(r.Context(), docID, kinds)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteOK(w, r, http.StatusOK, result)
}

func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Merge(chi.URLParam(r, "docID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteOK(w, r, http.StatusOK, result)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Validate(chi.URLParam(r, "docID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteOK(w, r, http.StatusOK, result)
}

// Report aggregates the doc_id query values (all documents when none are
// given). format=xlsx returns a workbook instead of the JSON envelope.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var docIDs []string
	for _, v := range query["doc_id"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				docIDs = append(docIDs, id)
			}
		}
	}
	format := query.Get("format")
	if format != "" && format != "json" && format != "xlsx" {
		WriteError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown report format: %q (must be json or xlsx)", format))
		return
	}

	rep, err := h.svc.Report(docIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if format != "xlsx" {
		WriteOK(w, r, http.StatusOK, rep)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="report.xlsx"`)
	if err := report.WriteXLSX(w, rep); err != nil {
		h.logger.Printf("write xlsx report: %v", err)
	}
}

// decode reads a JSON body into v. An empty body is accepted when optional.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", h.maxBody))
		return false
	}
	WriteError(w, r, http.StatusBadRequest, "invalid request body")
	return false
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	WritePipelineError(w, r, err)
}
