package pdf

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ValidationResult reports whether a file can be ingested
type ValidationResult struct {
	Path    string `json:"path"`
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// Validator handles PDF file validation operations
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new PDF validator with the specified constraints
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// ValidateFile checks the file and its PDF structure. Validation failures
// are reported in the result, not as an error.
func (v *Validator) ValidateFile(path string) *ValidationResult {
	result := &ValidationResult{Path: path}
	if err := v.validate(path); err != nil {
		result.Message = err.Error()
		return result
	}
	result.Valid = true
	return result
}

// IsValidPDF performs a quick check to see if a file is a valid PDF
func (v *Validator) IsValidPDF(path string) bool {
	return v.validate(path) == nil
}

func (v *Validator) validate(path string) error {
	if _, err := checkFile(path, v.maxFileSize); err != nil {
		return err
	}
	if err := api.ValidateFile(path, relaxedConfig()); err != nil {
		return fmt.Errorf("invalid PDF file: %w", err)
	}
	return nil
}

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
