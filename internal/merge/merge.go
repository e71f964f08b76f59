// Package merge folds artifact side-files into base question records
package merge

import (
	"sort"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
)

// Stats describes one document merge
type Stats struct {
	Records   int                       `json:"records"`
	Updated   map[exam.ArtifactKind]int `json:"updated"`
	Retained  map[exam.ArtifactKind]int `json:"retained"`
	Orphans   map[exam.ArtifactKind]int `json:"orphans"`
	OrphanQNo []string                  `json:"orphan_q_nos,omitempty"`
}

func newStats() Stats {
	return Stats{
		Updated:  make(map[exam.ArtifactKind]int),
		Retained: make(map[exam.ArtifactKind]int),
		Orphans:  make(map[exam.ArtifactKind]int),
	}
}

// Merge applies side-files to one record. For each kind, a non-empty
// side-file entry for the record's q_no replaces the field; otherwise the
// field keeps its value, so a pass that found nothing never empties a
// populated field. Applying the same side-files twice gives the same record.
func Merge(record exam.Question, files exam.SideFiles) exam.Question {
	merged, _ := mergeOne(record, files)
	return merged
}

// outcome reports per kind whether a field was replaced (+1), retained
// over an empty entry (-1) or untouched (0).
type outcome map[exam.ArtifactKind]int

func mergeOne(record exam.Question, files exam.SideFiles) (exam.Question, outcome) {
	out := make(outcome)

	if files.Code != nil {
		if blocks, ok := files.Code[record.QNo]; ok {
			if len(blocks) > 0 {
				record.CodeBlocks = append([]exam.CodeBlock(nil), blocks...)
				out[exam.ArtifactCode] = 1
			} else if len(record.CodeBlocks) > 0 {
				out[exam.ArtifactCode] = -1
			}
		}
	}
	if files.Images != nil {
		if refs, ok := files.Images[record.QNo]; ok {
			if len(refs) > 0 {
				record.ImageRefs = append([]exam.ImageRef(nil), refs...)
				out[exam.ArtifactImage] = 1
			} else if len(record.ImageRefs) > 0 {
				out[exam.ArtifactImage] = -1
			}
		}
	}
	if files.Tables != nil {
		if tables, ok := files.Tables[record.QNo]; ok {
			if len(tables) > 0 {
				record.TableRefs = append([]exam.TableRef(nil), tables...)
				out[exam.ArtifactTable] = 1
			} else if len(record.TableRefs) > 0 {
				out[exam.ArtifactTable] = -1
			}
		}
	}

	record.Normalize()
	return record, out
}

// MergeDocument merges side-files into every record of a document. Side-file
// entries whose q_no has no record are counted as orphans and dropped.
func MergeDocument(records []exam.Question, files exam.SideFiles) ([]exam.Question, Stats) {
	stats := newStats()
	stats.Records = len(records)

	known := make(map[string]bool, len(records))
	merged := make([]exam.Question, 0, len(records))
	for _, r := range records {
		known[r.QNo] = true
		m, out := mergeOne(r, files)
		for kind, v := range out {
			switch v {
			case 1:
				stats.Updated[kind]++
			case -1:
				stats.Retained[kind]++
			}
		}
		merged = append(merged, m)
	}

	countOrphans := func(kind exam.ArtifactKind, qnos []string) {
		for _, qno := range qnos {
			if !known[qno] {
				stats.Orphans[kind]++
				stats.OrphanQNo = append(stats.OrphanQNo, qno)
			}
		}
	}
	countOrphans(exam.ArtifactCode, keys(files.Code))
	countOrphans(exam.ArtifactImage, keys(files.Images))
	countOrphans(exam.ArtifactTable, keys(files.Tables))

	return merged, stats
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
