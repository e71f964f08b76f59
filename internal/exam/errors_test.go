package exam

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *PipelineError
		want string
	}{
		{
			name: "document scope",
			err:  NewFetchError("exam-2021-1", "https://example.com/a", errors.New("timeout")),
			want: "[FETCH_FAILURE] exam-2021-1: fetch https://example.com/a: timeout",
		},
		{
			name: "question scope",
			err:  NewPipelineError(ErrorTypeExtractionMiss, "doc", "no choices", nil).WithQuestion("Q004"),
			want: "[EXTRACTION_MISS] doc/Q004: no choices",
		},
		{
			name: "no scope",
			err:  &PipelineError{Type: ErrorTypeValidation, Message: "bad"},
			want: "[VALIDATION] bad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	fetchErr := fmt.Errorf("ingest: %w", NewFetchError("doc", "u", errors.New("boom")))
	storageErr := fmt.Errorf("merge: %w", NewStorageError("doc", "write records", errors.New("disk full")))

	assert.True(t, IsRecoverable(fetchErr))
	assert.False(t, IsRecoverable(storageErr))
	assert.True(t, IsRecoverable(errors.New("plain")))

	assert.Equal(t, ErrorTypeFetchFailure, TypeOf(fetchErr))
	assert.Equal(t, ErrorTypeStorage, TypeOf(storageErr))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
}

func TestErrorType_Severity(t *testing.T) {
	assert.Equal(t, SeverityWarning, ErrorTypeSegmentation.Severity())
	assert.Equal(t, SeverityWarning, ErrorTypeMergeConflict.Severity())
	assert.Equal(t, SeverityInfo, ErrorTypeValidation.Severity())
	assert.Equal(t, SeverityFatal, ErrorTypeStorage.Severity())
	assert.Equal(t, "UNKNOWN", ErrorTypeUnknown.String())
}

func TestFormatAndParseQNo(t *testing.T) {
	assert.Equal(t, "Q003", FormatQNo(3))
	assert.Equal(t, "Q120", FormatQNo(120))

	n, err := ParseQNo("Q042")
	assert.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = ParseQNo("42")
	assert.Error(t, err)
}

func TestQuestion_Normalize(t *testing.T) {
	q := Question{DocID: "d", QNo: "Q001"}
	q.Normalize()

	assert.NotNil(t, q.Choices)
	assert.NotNil(t, q.Answer.Keys)
	assert.NotNil(t, q.CodeBlocks)
	assert.NotNil(t, q.ImageRefs)
	assert.NotNil(t, q.TableRefs)
	assert.NotNil(t, q.Meta.Warnings)
}

func TestParseArtifactKind(t *testing.T) {
	kind, err := ParseArtifactKind("images")
	assert.NoError(t, err)
	assert.Equal(t, ArtifactImage, kind)

	_, err = ParseArtifactKind("video")
	assert.Error(t, err)
}
