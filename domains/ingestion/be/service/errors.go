package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateBatch is returned when the exact same file bytes were already
// accepted for the tenant.
var ErrDuplicateBatch = errors.New("duplicate upload for tenant")

// ErrBatchNotFound is returned when a batch id does not exist for the tenant.
var ErrBatchNotFound = errors.New("upload batch not found")

// Detection failure reasons.
const (
	DetectNoMatch   = "no_match"
	DetectAmbiguous = "ambiguous"
)

// DetectionError reports that no single vendor config could be selected for
// an upload. The batch fails as a whole; nothing is partially ingested.
type DetectionError struct {
	Reason     string
	Candidates []string
}

func (e *DetectionError) Error() string {
	if e.Reason == DetectAmbiguous {
		return fmt.Sprintf("vendor detection ambiguous between %s", strings.Join(e.Candidates, ", "))
	}
	return "no vendor config matches the upload"
}

// Row error kinds recorded in the ledger.
const (
	ErrKindMissingField = "missing_field"
	ErrKindTypeCoercion = "type_coercion"
	ErrKindValidation   = "validation"
)

// RowError describes one rejected source row. RowIndex is the 1-based row
// number in the source sheet, so it matches what the uploader sees in their
// spreadsheet tool.
type RowError struct {
	RowIndex int    `json:"rowIndex"`
	Field    string `json:"field"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}
