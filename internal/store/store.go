// Package store persists per-document pipeline files under a data
// directory:
//
//	<data>/<doc_id>/questions.jsonl
//	<data>/<doc_id>/code_blocks.json
//	<data>/<doc_id>/images.json
//	<data>/<doc_id>/tables.json
//	<data>/<doc_id>/issues.json
//	<data>/<doc_id>/source.html
//	<data>/<doc_id>/images/
//
// Every file is rewritten whole through a temporary file and a rename.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/security"
)

const (
	RecordsFile = "questions.jsonl"
	IssuesFile  = "issues.json"
	SourceFile  = "source.html"
	ImagesDir   = "images"
)

// SideFileName returns the file name holding artifacts of kind
func SideFileName(kind exam.ArtifactKind) string {
	switch kind {
	case exam.ArtifactCode:
		return "code_blocks.json"
	case exam.ArtifactImage:
		return "images.json"
	case exam.ArtifactTable:
		return "tables.json"
	}
	return string(kind) + ".json"
}

// Store reads and writes document files under a data directory
type Store struct {
	validator *security.PathValidator
	logger    *log.Logger
}

// New creates the data directory if needed and returns a Store rooted there
func New(dataDir string) (*Store, error) {
	v, err := security.NewPathValidator(dataDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Store{
		validator: v,
		logger:    log.New(os.Stderr, "[Store] ", log.LstdFlags),
	}, nil
}

// SetLogger replaces the store logger
func (s *Store) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Root returns the data directory
func (s *Store) Root() string {
	return s.validator.Root()
}

// DocDir returns the directory for docID after validating the id
func (s *Store) DocDir(docID string) (string, error) {
	dir, err := s.validator.DocumentDir(docID)
	if err != nil {
		return "", exam.NewPipelineError(exam.ErrorTypeInvalidInput, docID, "invalid document id", err)
	}
	return dir, nil
}

// Exists reports whether docID has a records file
func (s *Store) Exists(docID string) bool {
	dir, err := s.DocDir(docID)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, RecordsFile))
	return err == nil
}

// WriteRecords replaces the document's records file, one JSON object per line
func (s *Store) WriteRecords(docID string, records []exam.Question) error {
	path, err := s.docPath(docID, RecordsFile)
	if err != nil {
		return err
	}
	err = writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i := range records {
			q := records[i]
			q.Normalize()
			if err := enc.Encode(q); err != nil {
				return fmt.Errorf("encode %s: %w", q.QNo, err)
			}
		}
		return nil
	})
	if err != nil {
		return exam.NewStorageError(docID, "write records", err)
	}
	s.logger.Printf("Wrote %d records for %s", len(records), docID)
	return nil
}

// ReadRecords loads the document's records. A missing file is an input
// error, since the document has not been ingested yet.
func (s *Store) ReadRecords(docID string) ([]exam.Question, error) {
	path, err := s.docPath(docID, RecordsFile)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, exam.NewPipelineError(exam.ErrorTypeInvalidInput, docID, "no records; ingest the document first", err)
	}
	if err != nil {
		return nil, exam.NewStorageError(docID, "open records", err)
	}
	defer func() { _ = file.Close() }()

	records := []exam.Question{}
	dec := json.NewDecoder(bufio.NewReader(file))
	for line := 1; ; line++ {
		var q exam.Question
		err := dec.Decode(&q)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, exam.NewStorageError(docID, fmt.Sprintf("decode record %d", line), err)
		}
		q.Normalize()
		records = append(records, q)
	}
	return records, nil
}

// WriteSideFiles writes every side-file present in files. Absent (nil)
// side-files are left untouched on disk.
func (s *Store) WriteSideFiles(docID string, files exam.SideFiles) error {
	if files.Code != nil {
		if err := s.writeJSON(docID, SideFileName(exam.ArtifactCode), files.Code); err != nil {
			return err
		}
	}
	if files.Images != nil {
		if err := s.writeJSON(docID, SideFileName(exam.ArtifactImage), files.Images); err != nil {
			return err
		}
	}
	if files.Tables != nil {
		if err := s.writeJSON(docID, SideFileName(exam.ArtifactTable), files.Tables); err != nil {
			return err
		}
	}
	return nil
}

// ReadSideFiles loads whichever side-files exist for the document
func (s *Store) ReadSideFiles(docID string) (exam.SideFiles, error) {
	var files exam.SideFiles
	if _, err := s.readJSON(docID, SideFileName(exam.ArtifactCode), &files.Code); err != nil {
		return files, err
	}
	if _, err := s.readJSON(docID, SideFileName(exam.ArtifactImage), &files.Images); err != nil {
		return files, err
	}
	if _, err := s.readJSON(docID, SideFileName(exam.ArtifactTable), &files.Tables); err != nil {
		return files, err
	}
	return files, nil
}

// WriteIssues replaces the document's validator findings
func (s *Store) WriteIssues(docID string, issues []exam.Issue) error {
	if issues == nil {
		issues = []exam.Issue{}
	}
	return s.writeJSON(docID, IssuesFile, issues)
}

// ReadIssues loads the document's validator findings; a missing file
// yields an empty list.
func (s *Store) ReadIssues(docID string) ([]exam.Issue, error) {
	issues := []exam.Issue{}
	if _, err := s.readJSON(docID, IssuesFile, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// WriteSource keeps the HTML a document was ingested from so artifact
// passes can be rerun without fetching it again.
func (s *Store) WriteSource(docID string, data []byte) error {
	path, err := s.docPath(docID, SourceFile)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return exam.NewStorageError(docID, "write source", err)
	}
	return nil
}

// ReadSource returns the stored HTML source of a document
func (s *Store) ReadSource(docID string) ([]byte, error) {
	path, err := s.docPath(docID, SourceFile)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, exam.NewPipelineError(exam.ErrorTypeInvalidInput, docID, "no HTML source stored for document", err)
	}
	if err != nil {
		return nil, exam.NewStorageError(docID, "read source", err)
	}
	return data, nil
}

// SaveImage stores image bytes under the document's images directory and
// returns the path relative to the document directory.
func (s *Store) SaveImage(docID, name string, data []byte) (string, error) {
	name = sanitizeName(name)
	if name == "" {
		return "", exam.NewInputError(docID, "image name is empty")
	}
	dir, err := s.ImagesPath(docID)
	if err != nil {
		return "", err
	}
	if err := writeAtomic(filepath.Join(dir, name), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return "", exam.NewStorageError(docID, "save image "+name, err)
	}
	return ImagesDir + "/" + name, nil
}

// ImagesPath returns the document's image directory, creating it if needed
func (s *Store) ImagesPath(docID string) (string, error) {
	dir, err := s.DocDir(docID)
	if err != nil {
		return "", err
	}
	images := filepath.Join(dir, ImagesDir)
	if err := os.MkdirAll(images, 0o755); err != nil {
		return "", exam.NewStorageError(docID, "create images directory", err)
	}
	return images, nil
}

// ListDocuments returns the ids of all documents with a records file, sorted
func (s *Store) ListDocuments() ([]string, error) {
	entries, err := os.ReadDir(s.Root())
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}
	docs := []string{}
	for _, entry := range entries {
		if !entry.IsDir() || security.ValidateDocID(entry.Name()) != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.Root(), entry.Name(), RecordsFile)); err == nil {
			docs = append(docs, entry.Name())
		}
	}
	sort.Strings(docs)
	return docs, nil
}

// WriteFile writes a run-level file (for example a report) into the data
// directory root.
func (s *Store) WriteFile(name string, write func(io.Writer) error) (string, error) {
	path, err := s.validator.NormalizePath(sanitizeName(name))
	if err != nil {
		return "", err
	}
	if err := writeAtomic(path, write); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

func (s *Store) docPath(docID, name string) (string, error) {
	dir, err := s.DocDir(docID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (s *Store) writeJSON(docID, name string, v any) error {
	path, err := s.docPath(docID, name)
	if err != nil {
		return err
	}
	err = writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
	if err != nil {
		return exam.NewStorageError(docID, "write "+name, err)
	}
	return nil
}

// readJSON decodes name into v, reporting whether the file existed
func (s *Store) readJSON(docID, name string, v any) (bool, error) {
	path, err := s.docPath(docID, name)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, exam.NewStorageError(docID, "read "+name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, exam.NewStorageError(docID, "decode "+name, err)
	}
	return true, nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	buf := bufio.NewWriter(tmp)
	if err := write(buf); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.TrimLeft(name, ".")
}
