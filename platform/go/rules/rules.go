// Package rules defines the declarative vendor-config payload: detection
// signature, field mappings, validation and transformation rules. One generic
// ingestion engine is parameterized by these records; adding a vendor means
// registering a new payload, not writing code.
package rules

import (
	"encoding/json"
	"fmt"
)

// Canonical field names a vendor column can be mapped onto.
const (
	FieldReseller    = "reseller"
	FieldProductEAN  = "product_ean"
	FieldPeriod      = "period"       // combined period column, parsed via Transform.PeriodLayout
	FieldPeriodYear  = "period_year"  // split period columns
	FieldPeriodMonth = "period_month" //
	FieldQuantity    = "quantity"
	FieldNetAmount   = "net_amount"
	FieldCurrency    = "currency" // per-row currency column; must equal the declared currency
)

// CanonicalFields lists every mappable target field.
var CanonicalFields = []string{
	FieldReseller, FieldProductEAN, FieldPeriod, FieldPeriodYear,
	FieldPeriodMonth, FieldQuantity, FieldNetAmount, FieldCurrency,
}

// HeaderCell is a detection discriminator: the cell at Cell (A1 notation) on
// Sheet (empty = first sheet) must equal Value after whitespace trimming.
type HeaderCell struct {
	Sheet string `json:"sheet,omitempty"`
	Cell  string `json:"cell"`
	Value string `json:"value"`
}

// Signature is the ordered set of detection rules for one vendor layout.
// Every populated rule must hold for the signature to match; the count of
// populated rules is the signature's specificity.
type Signature struct {
	FilenameGlob string       `json:"filename_glob,omitempty"`
	Extensions   []string     `json:"extensions,omitempty"`
	HeaderCells  []HeaderCell `json:"header_cells,omitempty"`
	MinSheets    int          `json:"min_sheets,omitempty"`
	MaxSheets    int          `json:"max_sheets,omitempty"`
}

// Specificity returns the number of populated signature rules. Used by the
// detector to rank competing matches within a scope tier.
func (s Signature) Specificity() int {
	n := 0
	if s.FilenameGlob != "" {
		n++
	}
	if len(s.Extensions) > 0 {
		n++
	}
	n += len(s.HeaderCells)
	if s.MinSheets > 0 {
		n++
	}
	if s.MaxSheets > 0 {
		n++
	}
	return n
}

// Mapping binds one source column (by header text) to a canonical field.
type Mapping struct {
	Source string `json:"source"`
	Field  string `json:"field"`
}

// Validation declares row-level expectations checked before transformation.
type Validation struct {
	// Required lists canonical fields whose source cell must be non-empty.
	Required []string `json:"required,omitempty"`
	// EANDigits enforces that product_ean is numeric with 8 or 13 digits.
	EANDigits bool `json:"ean_digits,omitempty"`
}

// Transform declares the normalization applied to validated rows.
type Transform struct {
	// Currency is the ISO 4217 code the vendor reports in. Required.
	// Amounts are never reinterpreted: a per-row currency column that
	// disagrees with this value fails the row.
	Currency string `json:"currency"`
	// AmountScale multiplies net_amount (e.g. "1000" for reports in
	// thousands). Decimal string; empty means 1.
	AmountScale string `json:"amount_scale,omitempty"`
	// UnitsPerPack multiplies quantity for vendors reporting packs.
	UnitsPerPack int `json:"units_per_pack,omitempty"`
	// PeriodLayout is the Go time layout for a combined period column
	// (e.g. "2006-01", "01/2006"). Required when FieldPeriod is mapped.
	PeriodLayout string `json:"period_layout,omitempty"`
	// DecimalComma marks vendors using "1.234,56" number formatting.
	DecimalComma bool `json:"decimal_comma,omitempty"`
	// DefaultReseller fills the reseller field for vendors whose reports
	// are implicitly single-store.
	DefaultReseller string `json:"default_reseller,omitempty"`
}

// Rules is the full declarative payload stored per vendor config version.
type Rules struct {
	Signature Signature `json:"signature"`
	// Priority breaks specificity ties deterministically (lower wins).
	Priority int `json:"priority,omitempty"`
	// Sheet names the data sheet; empty means the first sheet.
	Sheet string `json:"sheet,omitempty"`
	// HeaderRow is the 1-based row holding column headers; data starts on
	// the next row. Zero means row 1.
	HeaderRow int `json:"header_row,omitempty"`
	Mappings  []Mapping  `json:"mappings"`
	Validate  Validation `json:"validation,omitempty"`
	Transform Transform  `json:"transform"`
}

// DataHeaderRow returns the effective 1-based header row.
func (r Rules) DataHeaderRow() int {
	if r.HeaderRow < 1 {
		return 1
	}
	return r.HeaderRow
}

// MappingFor returns the mapping targeting the given canonical field.
func (r Rules) MappingFor(field string) (Mapping, bool) {
	for _, m := range r.Mappings {
		if m.Field == field {
			return m, true
		}
	}
	return Mapping{}, false
}

// Parse decodes and semantically checks a rules payload. It is used after the
// structural jsonschema validation and adds the cross-field checks a schema
// cannot express.
func Parse(raw json.RawMessage) (Rules, error) {
	var r Rules
	if err := json.Unmarshal(raw, &r); err != nil {
		return Rules{}, fmt.Errorf("decode rules payload: %w", err)
	}

	if r.Signature.Specificity() == 0 {
		return Rules{}, fmt.Errorf("signature needs at least one detection rule")
	}
	if len(r.Mappings) == 0 {
		return Rules{}, fmt.Errorf("at least one field mapping is required")
	}
	if r.Transform.Currency == "" {
		return Rules{}, fmt.Errorf("transform.currency is required")
	}

	seen := make(map[string]bool, len(r.Mappings))
	for _, m := range r.Mappings {
		if !isCanonical(m.Field) {
			return Rules{}, fmt.Errorf("mapping targets unknown field %q", m.Field)
		}
		if m.Source == "" {
			return Rules{}, fmt.Errorf("mapping for %q has empty source column", m.Field)
		}
		if seen[m.Field] {
			return Rules{}, fmt.Errorf("field %q mapped twice", m.Field)
		}
		seen[m.Field] = true
	}

	if seen[FieldPeriod] && (seen[FieldPeriodYear] || seen[FieldPeriodMonth]) {
		return Rules{}, fmt.Errorf("map either %q or the %q/%q pair, not both", FieldPeriod, FieldPeriodYear, FieldPeriodMonth)
	}
	if seen[FieldPeriod] && r.Transform.PeriodLayout == "" {
		return Rules{}, fmt.Errorf("transform.period_layout is required when %q is mapped", FieldPeriod)
	}
	if !seen[FieldPeriod] && (!seen[FieldPeriodYear] || !seen[FieldPeriodMonth]) {
		return Rules{}, fmt.Errorf("period mapping is required (%q or %q+%q)", FieldPeriod, FieldPeriodYear, FieldPeriodMonth)
	}
	for _, required := range []string{FieldProductEAN, FieldQuantity, FieldNetAmount} {
		if !seen[required] {
			return Rules{}, fmt.Errorf("mapping for %q is required", required)
		}
	}
	if !seen[FieldReseller] && r.Transform.DefaultReseller == "" {
		return Rules{}, fmt.Errorf("map %q or set transform.default_reseller", FieldReseller)
	}

	for _, f := range r.Validate.Required {
		if !isCanonical(f) {
			return Rules{}, fmt.Errorf("validation.required names unknown field %q", f)
		}
	}

	return r, nil
}

func isCanonical(field string) bool {
	for _, f := range CanonicalFields {
		if f == field {
			return true
		}
	}
	return false
}
