package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"sort"
	"strings"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
	"github.com/a3tai/mcp-exam-extractor/internal/pdf"
)

// assignPageImages picks a question for each PDF image. An image on a page
// spanned by one question goes to that question. When several questions
// share the page, questions whose text mentions a figure are preferred,
// each taking one image in order before the last one takes the rest.
// Images with no candidate are returned as orphans.
func assignPageImages(images []pdf.PageImage, pages map[string][]int, keyword map[string]bool) (map[string][]int, []int) {
	qnos := make([]string, 0, len(pages))
	for qno := range pages {
		qnos = append(qnos, qno)
	}
	sort.Strings(qnos)

	assigned := make(map[string][]int)
	var orphans []int
	for i, img := range images {
		var onPage, withKeyword []string
		for _, qno := range qnos {
			if containsInt(pages[qno], img.Page) {
				onPage = append(onPage, qno)
				if keyword[qno] {
					withKeyword = append(withKeyword, qno)
				}
			}
		}

		switch {
		case len(onPage) == 1:
			assigned[onPage[0]] = append(assigned[onPage[0]], i)
		case len(withKeyword) > 0:
			target := withKeyword[len(withKeyword)-1]
			for _, qno := range withKeyword {
				if len(assigned[qno]) == 0 {
					target = qno
					break
				}
			}
			assigned[target] = append(assigned[target], i)
		default:
			orphans = append(orphans, i)
		}
	}
	return assigned, orphans
}

// storePageImages saves assigned PDF images and returns the image side-file
func (s *Service) storePageImages(docID string, images []pdf.PageImage, pages map[string][]int, keyword map[string]bool) (exam.ImageSideFile, []string, error) {
	side := make(exam.ImageSideFile)
	var warnings []string

	assigned, orphans := assignPageImages(images, pages, keyword)
	for qno, indexes := range assigned {
		for _, i := range indexes {
			img := images[i]
			rel, err := s.store.SaveImage(docID, img.FileName(), img.Data)
			if err != nil {
				return nil, nil, err
			}
			side[qno] = append(side[qno], exam.ImageRef{
				Path:   rel,
				Width:  img.Width,
				Height: img.Height,
				Page:   img.Page,
			})
		}
	}
	for _, i := range orphans {
		warnings = append(warnings, fmt.Sprintf("image %s on page %d: no question to attach to", images[i].Name, images[i].Page))
	}
	return side, warnings, nil
}

// downloadImages fetches remote image refs into the document's images
// directory. Refs that fail to download keep their source URL. Images whose
// decoded size is below the pixel threshold are dropped.
func (s *Service) downloadImages(ctx context.Context, docID string, side exam.ImageSideFile) (int, []string, error) {
	minPixels := s.rules.Thresholds.MinImagePixels
	downloaded := 0
	var warnings []string

	qnos := make([]string, 0, len(side))
	for qno := range side {
		qnos = append(qnos, qno)
	}
	sort.Strings(qnos)

	for _, qno := range qnos {
		kept := side[qno][:0]
		for i, ref := range side[qno] {
			if !strings.HasPrefix(ref.Src, "http://") && !strings.HasPrefix(ref.Src, "https://") {
				kept = append(kept, ref)
				continue
			}
			res, err := s.fetcher.Fetch(ctx, ref.Src)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: image %s not downloaded: %v", qno, ref.Src, err))
				kept = append(kept, ref)
				continue
			}
			cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Body))
			if err == nil {
				if cfg.Width < minPixels || cfg.Height < minPixels {
					warnings = append(warnings, fmt.Sprintf("%s: image %s dropped: %dx%d below %d pixels", qno, ref.Src, cfg.Width, cfg.Height, minPixels))
					continue
				}
				ref.Width, ref.Height = cfg.Width, cfg.Height
			} else {
				format = strings.TrimPrefix(path.Ext(ref.Src), ".")
			}

			rel, err := s.store.SaveImage(docID, imageName(qno, i, format), res.Body)
			if err != nil {
				return downloaded, warnings, err
			}
			ref.Path = rel
			kept = append(kept, ref)
			downloaded++
		}
		side[qno] = kept
	}
	return downloaded, warnings, nil
}

func imageName(qno string, index int, format string) string {
	format = strings.ToLower(format)
	if format == "" || len(format) > 5 || strings.ContainsAny(format, "/?&=") {
		format = "bin"
	}
	if format == "jpeg" {
		format = "jpg"
	}
	return fmt.Sprintf("%s_%02d.%s", strings.ToLower(qno), index+1, format)
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
