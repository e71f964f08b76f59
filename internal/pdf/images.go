package pdf

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageImage is an image pulled out of a PDF page
type PageImage struct {
	Page     int
	Name     string
	FileType string
	Width    int
	Height   int
	Data     []byte
}

// FileName returns a stable file name for the image
func (img PageImage) FileName() string {
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, img.Name)
	return fmt.Sprintf("p%03d_%s.%s", img.Page, name, img.FileType)
}

// ImageExtractor pulls embedded images out of PDFs with pdfcpu
type ImageExtractor struct {
	maxFileSize int64
	minPixels   int
}

// NewImageExtractor creates an extractor that drops images whose width or
// height is below minPixels.
func NewImageExtractor(maxFileSize int64, minPixels int) *ImageExtractor {
	return &ImageExtractor{maxFileSize: maxFileSize, minPixels: minPixels}
}

// ExtractFile returns the images of every page ordered by page and name
func (e *ImageExtractor) ExtractFile(path string) ([]PageImage, error) {
	if _, err := checkFile(path, e.maxFileSize); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var images []PageImage
	digest := func(img model.Image, _ bool, _ int) error {
		if img.Width < e.minPixels || img.Height < e.minPixels {
			return nil
		}
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("read image %s on page %d: %w", img.Name, img.PageNr, err)
		}
		images = append(images, PageImage{
			Page:     img.PageNr,
			Name:     img.Name,
			FileType: img.FileType,
			Width:    img.Width,
			Height:   img.Height,
			Data:     data,
		})
		return nil
	}
	if err := api.ExtractImages(f, nil, digest, relaxedConfig()); err != nil {
		return nil, fmt.Errorf("failed to extract images: %w", err)
	}

	sort.SliceStable(images, func(i, j int) bool {
		if images[i].Page != images[j].Page {
			return images[i].Page < images[j].Page
		}
		return images[i].Name < images[j].Name
	})
	return images, nil
}
