// Package pdf turns exam PDFs into page-marked text and page images.
package pdf

import (
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is the text of a PDF with page markers between pages
type Document struct {
	Path       string `json:"path"`
	Pages      int    `json:"pages"`
	Size       int64  `json:"size"`
	Text       string `json:"-"`
	ImageCount int    `json:"image_count"`
	Skipped    []int  `json:"skipped_pages,omitempty"`
}

// Reader handles PDF file reading operations
type Reader struct {
	maxFileSize int64
	maxTextSize int
}

// NewReader creates a new PDF reader with the specified constraints
func NewReader(maxFileSize int64) *Reader {
	return &Reader{
		maxFileSize: maxFileSize,
		maxTextSize: 10 * 1024 * 1024, // 10MB text limit
	}
}

// PageMarker returns the line that opens page n in extracted text
func PageMarker(n int) string {
	return fmt.Sprintf("=== PAGE %d ===", n)
}

// JoinPages concatenates page texts, each preceded by its page marker.
// pages[i] is page i+1.
func JoinPages(pages []string) string {
	var b strings.Builder
	for i, text := range pages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(PageMarker(i + 1))
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(text, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// ReadFile extracts the text of every page with page markers
func (r *Reader) ReadFile(path string) (*Document, error) {
	fileInfo, err := checkFile(path, r.maxFileSize)
	if err != nil {
		return nil, err
	}

	f, pdfReader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	pages, skipped := r.extractPages(pdfReader)
	text := JoinPages(pages)
	if strings.TrimSpace(strings.Join(pages, "")) == "" {
		return nil, fmt.Errorf("no text content could be extracted from PDF")
	}

	imageCount := 0
	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		imageCount += countImagesOnPage(pdfReader, pageNum)
	}

	return &Document{
		Path:       path,
		Pages:      pdfReader.NumPage(),
		Size:       fileInfo.Size(),
		Text:       text,
		ImageCount: imageCount,
		Skipped:    skipped,
	}, nil
}

// extractPages returns the plain text of every page. Pages that fail to
// decode are kept as empty strings so page numbers stay aligned.
func (r *Reader) extractPages(pdfReader *pdf.Reader) ([]string, []int) {
	pages := make([]string, 0, pdfReader.NumPage())
	var skipped []int
	totalLength := 0

	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			pages = append(pages, "")
			skipped = append(skipped, pageNum)
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			skipped = append(skipped, pageNum)
			continue
		}

		if totalLength+len(content) > r.maxTextSize {
			remaining := r.maxTextSize - totalLength
			if remaining > 0 {
				pages = append(pages, strings.ToValidUTF8(content[:remaining], ""))
			}
			break
		}
		pages = append(pages, content)
		totalLength += len(content)
	}
	return pages, skipped
}

// countImagesOnPage counts image XObjects on a page
func countImagesOnPage(pdfReader *pdf.Reader, pageNum int) (count int) {
	defer func() {
		if recover() != nil {
			count = 0
		}
	}()

	page := pdfReader.Page(pageNum)
	if page.V.IsNull() {
		return 0
	}
	resources := page.V.Key("Resources")
	if resources.IsNull() {
		return 0
	}
	xObjects := resources.Key("XObject")
	if xObjects.IsNull() || xObjects.Kind() != pdf.Dict {
		return 0
	}

	for _, key := range xObjects.Keys() {
		obj := xObjects.Key(key)
		if obj.IsNull() {
			continue
		}
		if subtype := obj.Key("Subtype"); !subtype.IsNull() && subtype.Name() == "Image" {
			count++
		}
	}
	return count
}

// checkFile performs the cheap checks shared by reading and validation
func checkFile(filePath string, maxFileSize int64) (os.FileInfo, error) {
	if filePath == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", filePath)
	}
	if !strings.HasSuffix(strings.ToLower(filePath), ".pdf") {
		return nil, fmt.Errorf("file is not a PDF: %s", filePath)
	}
	if fileInfo.Size() == 0 {
		return nil, fmt.Errorf("file is empty: %s", filePath)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), maxFileSize)
	}
	return fileInfo, nil
}
