package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPages(t *testing.T) {
	text := JoinPages([]string{"1. 첫 번째 문제입니다\n", "", "2. 두 번째 문제입니다"})

	assert.Equal(t,
		"=== PAGE 1 ===\n1. 첫 번째 문제입니다\n\n=== PAGE 2 ===\n\n\n=== PAGE 3 ===\n2. 두 번째 문제입니다\n",
		text)
	assert.Equal(t, "", JoinPages(nil))
}

func TestPageImage_FileName(t *testing.T) {
	img := PageImage{Page: 3, Name: "Im 1/a", FileType: "png"}
	assert.Equal(t, "p003_Im_1_a.png", img.FileName())
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	empty := filepath.Join(dir, "empty.pdf")
	large := filepath.Join(dir, "large.pdf")
	sub := filepath.Join(dir, "sub.pdf")
	require.NoError(t, os.WriteFile(txt, []byte("not a pdf"), 0o644))
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	require.NoError(t, os.WriteFile(large, make([]byte, 2048), 0o644))
	require.NoError(t, os.Mkdir(sub, 0o755))

	tests := []struct {
		name string
		path string
		want string
	}{
		{"empty path", "", "path cannot be empty"},
		{"missing", filepath.Join(dir, "missing.pdf"), "does not exist"},
		{"directory", sub, "is a directory"},
		{"extension", txt, "not a PDF"},
		{"empty file", empty, "file is empty"},
		{"too large", large, "file too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := checkFile(tt.path, 1024)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReader_RejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("not a pdf"), 0o644))

	_, err := NewReader(1024).ReadFile(txt)
	assert.Error(t, err)

	_, err = NewImageExtractor(1024, 50).ExtractFile(txt)
	assert.Error(t, err)
}

func TestValidator_ValidateFile(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("this is not really a pdf"), 0o644))

	v := NewValidator(1024 * 1024)
	result := v.ValidateFile(garbage)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Message, "invalid PDF file")
	assert.False(t, v.IsValidPDF(filepath.Join(dir, "missing.pdf")))
}
