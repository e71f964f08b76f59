package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-exam-extractor/internal/exam"
)

func baseRecord(qno string) exam.Question {
	q := exam.Question{
		DocID:        "doc",
		QNo:          qno,
		QuestionText: "다음 그림을 보고 답하시오",
		Answer:       exam.Answer{Keys: []string{"2"}, RawText: "②"},
		Meta:         exam.Meta{Confidence: 1},
	}
	q.Normalize()
	return q
}

func sampleFiles() exam.SideFiles {
	return exam.SideFiles{
		Code: exam.CodeSideFile{
			"Q001": {{Language: "c", Code: "int main() { return 0; }"}},
		},
		Images: exam.ImageSideFile{
			"Q001": {{Src: "https://example.com/a.png", Path: "images/a.png"}},
			"Q002": {},
		},
	}
}

func TestMerge_PopulatesFromSideFiles(t *testing.T) {
	merged := Merge(baseRecord("Q001"), sampleFiles())

	assert.Len(t, merged.CodeBlocks, 1)
	assert.Len(t, merged.ImageRefs, 1)
	assert.NotNil(t, merged.TableRefs)
	assert.Empty(t, merged.TableRefs)
}

func TestMerge_Idempotent(t *testing.T) {
	files := sampleFiles()
	for _, qno := range []string{"Q001", "Q002", "Q003"} {
		once := Merge(baseRecord(qno), files)
		twice := Merge(once, files)
		assert.Equal(t, once, twice, qno)
	}
}

func TestMerge_NeverRegressesToEmpty(t *testing.T) {
	r := baseRecord("Q002")
	r.ImageRefs = []exam.ImageRef{{Src: "https://example.com/kept.png"}}

	// image side-file has an empty entry for Q002
	merged := Merge(r, sampleFiles())
	assert.Equal(t, r.ImageRefs, merged.ImageRefs)

	// side-file absent entirely
	merged = Merge(r, exam.SideFiles{})
	assert.Equal(t, r.ImageRefs, merged.ImageRefs)
}

func TestMerge_LastWriteWins(t *testing.T) {
	r := Merge(baseRecord("Q001"), sampleFiles())

	later := exam.SideFiles{Images: exam.ImageSideFile{
		"Q001": {{Src: "https://example.com/b.png"}},
	}}
	merged := Merge(r, later)

	require.Len(t, merged.ImageRefs, 1)
	assert.Equal(t, "https://example.com/b.png", merged.ImageRefs[0].Src)
	// other kinds untouched
	assert.Equal(t, r.CodeBlocks, merged.CodeBlocks)
}

func TestMerge_OrderInsensitiveAcrossKinds(t *testing.T) {
	code := exam.SideFiles{Code: sampleFiles().Code}
	images := exam.SideFiles{Images: sampleFiles().Images}
	tables := exam.SideFiles{Tables: exam.TableSideFile{
		"Q001": {{Rows: [][]string{{"a", "b"}, {"1", "2"}}}},
	}}

	a := Merge(Merge(Merge(baseRecord("Q001"), code), images), tables)
	b := Merge(Merge(Merge(baseRecord("Q001"), tables), code), images)
	assert.Equal(t, a, b)
}

func TestMerge_DoesNotAliasSideFile(t *testing.T) {
	files := sampleFiles()
	merged := Merge(baseRecord("Q001"), files)
	merged.CodeBlocks[0].Code = "changed"
	assert.Equal(t, "int main() { return 0; }", files.Code["Q001"][0].Code)
}

func TestMergeDocument_Stats(t *testing.T) {
	records := []exam.Question{baseRecord("Q001"), baseRecord("Q002")}
	records[1].ImageRefs = []exam.ImageRef{{Src: "kept"}}

	files := sampleFiles()
	files.Tables = exam.TableSideFile{"Q009": {{Rows: [][]string{{"x"}, {"y"}}}}}

	merged, stats := MergeDocument(records, files)

	require.Len(t, merged, 2)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Updated[exam.ArtifactCode])
	assert.Equal(t, 1, stats.Updated[exam.ArtifactImage])
	assert.Equal(t, 1, stats.Retained[exam.ArtifactImage])
	assert.Equal(t, 1, stats.Orphans[exam.ArtifactTable])
	assert.Equal(t, []string{"Q009"}, stats.OrphanQNo)
	assert.Equal(t, "kept", merged[1].ImageRefs[0].Src)
}
