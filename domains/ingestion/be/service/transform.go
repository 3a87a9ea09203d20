package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/channelpulse/channelpulse-saas/platform/go/persistence"
	"github.com/channelpulse/channelpulse-saas/platform/go/rules"
)

// TransformResult separates the rows that normalized cleanly from the ones
// that were rejected. Rejection is always row-scoped: one bad row never
// blocks its neighbours.
type TransformResult struct {
	Records []persistence.SalesRecord
	Errors  []RowError
}

type rowTransformer struct {
	rules         rules.Rules
	tenantID      uuid.UUID
	batchID       uuid.UUID
	vendorKey     string
	configVersion int
	columns       map[string]int // canonical field -> column index
	amountScale   decimal.Decimal
}

// TransformRows maps, validates and normalizes every data row of the detected
// sheet into canonical sales records. A mapped source column that is absent
// from the header row fails the whole batch; everything after that is
// row-scoped.
func TransformRows(det Detection, tenantID, batchID uuid.UUID, src *Source) (TransformResult, error) {
	grid, ok := src.Rows(det.Rules.Sheet)
	if !ok {
		return TransformResult{}, fmt.Errorf("sheet %q not found in upload", det.Rules.Sheet)
	}

	headerRow := det.Rules.DataHeaderRow()
	if len(grid) < headerRow {
		return TransformResult{}, fmt.Errorf("upload has no header row (expected row %d)", headerRow)
	}

	headerIndex := make(map[string]int, len(grid[headerRow-1]))
	for i, cell := range grid[headerRow-1] {
		headerIndex[strings.TrimSpace(cell)] = i
	}

	columns := make(map[string]int, len(det.Rules.Mappings))
	for _, m := range det.Rules.Mappings {
		idx, ok := headerIndex[m.Source]
		if !ok {
			return TransformResult{}, fmt.Errorf("mapped column %q not found in header row", m.Source)
		}
		columns[m.Field] = idx
	}

	scale := decimal.NewFromInt(1)
	if det.Rules.Transform.AmountScale != "" {
		parsed, err := decimal.NewFromString(det.Rules.Transform.AmountScale)
		if err != nil {
			return TransformResult{}, fmt.Errorf("invalid amount_scale %q: %w", det.Rules.Transform.AmountScale, err)
		}
		scale = parsed
	}

	tr := &rowTransformer{
		rules:         det.Rules,
		tenantID:      tenantID,
		batchID:       batchID,
		vendorKey:     det.VendorKey,
		configVersion: det.Version,
		columns:       columns,
		amountScale:   scale,
	}

	var result TransformResult
	for i := headerRow; i < len(grid); i++ {
		sourceRow := i + 1 // 1-based, matches what a spreadsheet shows
		if isBlankRow(grid[i]) {
			continue
		}
		rec, rowErr := tr.transform(sourceRow, grid[i])
		if rowErr != nil {
			result.Errors = append(result.Errors, *rowErr)
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

func (t *rowTransformer) transform(rowIndex int, cells []string) (persistence.SalesRecord, *RowError) {
	fail := func(field, kind, detail string) (persistence.SalesRecord, *RowError) {
		return persistence.SalesRecord{}, &RowError{RowIndex: rowIndex, Field: field, Kind: kind, Detail: detail}
	}

	for _, field := range t.rules.Validate.Required {
		if t.value(cells, field) == "" {
			return fail(field, ErrKindMissingField, "required value is empty")
		}
	}

	ean := t.value(cells, rules.FieldProductEAN)
	if ean == "" {
		return fail(rules.FieldProductEAN, ErrKindMissingField, "required value is empty")
	}
	if t.rules.Validate.EANDigits && !validEAN(ean) {
		return fail(rules.FieldProductEAN, ErrKindValidation, fmt.Sprintf("%q is not an 8- or 13-digit EAN", ean))
	}

	reseller := t.value(cells, rules.FieldReseller)
	if reseller == "" {
		reseller = t.rules.Transform.DefaultReseller
	}
	if reseller == "" {
		return fail(rules.FieldReseller, ErrKindMissingField, "reseller is empty and no default is configured")
	}

	year, month, rowErr := t.period(rowIndex, cells)
	if rowErr != nil {
		return persistence.SalesRecord{}, rowErr
	}

	quantity, rowErr := t.quantity(rowIndex, cells)
	if rowErr != nil {
		return persistence.SalesRecord{}, rowErr
	}

	amount, rowErr := t.netAmount(rowIndex, cells)
	if rowErr != nil {
		return persistence.SalesRecord{}, rowErr
	}

	currency := strings.ToUpper(t.rules.Transform.Currency)
	if raw := t.value(cells, rules.FieldCurrency); raw != "" && !strings.EqualFold(raw, currency) {
		return fail(rules.FieldCurrency, ErrKindValidation,
			fmt.Sprintf("row reports currency %q but the config declares %q", raw, currency))
	}

	return persistence.SalesRecord{
		TenantID:      t.tenantID,
		VendorKey:     t.vendorKey,
		BatchID:       t.batchID,
		ConfigVersion: t.configVersion,
		Reseller:      reseller,
		ProductEAN:    ean,
		PeriodYear:    year,
		PeriodMonth:   month,
		Quantity:      quantity,
		NetAmount:     amount,
		Currency:      currency,
	}, nil
}

func (t *rowTransformer) period(rowIndex int, cells []string) (int, int, *RowError) {
	if _, ok := t.columns[rules.FieldPeriod]; ok {
		raw := t.value(cells, rules.FieldPeriod)
		if raw == "" {
			return 0, 0, &RowError{RowIndex: rowIndex, Field: rules.FieldPeriod, Kind: ErrKindMissingField, Detail: "required value is empty"}
		}
		parsed, err := time.Parse(t.rules.Transform.PeriodLayout, raw)
		if err != nil {
			return 0, 0, &RowError{RowIndex: rowIndex, Field: rules.FieldPeriod, Kind: ErrKindTypeCoercion,
				Detail: fmt.Sprintf("%q does not match period layout %q", raw, t.rules.Transform.PeriodLayout)}
		}
		return parsed.Year(), int(parsed.Month()), nil
	}

	rawYear := t.value(cells, rules.FieldPeriodYear)
	rawMonth := t.value(cells, rules.FieldPeriodMonth)
	if rawYear == "" || rawMonth == "" {
		field := rules.FieldPeriodYear
		if rawYear != "" {
			field = rules.FieldPeriodMonth
		}
		return 0, 0, &RowError{RowIndex: rowIndex, Field: field, Kind: ErrKindMissingField, Detail: "required value is empty"}
	}

	year, err := strconv.Atoi(rawYear)
	if err != nil {
		return 0, 0, &RowError{RowIndex: rowIndex, Field: rules.FieldPeriodYear, Kind: ErrKindTypeCoercion,
			Detail: fmt.Sprintf("%q is not a year", rawYear)}
	}
	month, err := strconv.Atoi(rawMonth)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, &RowError{RowIndex: rowIndex, Field: rules.FieldPeriodMonth, Kind: ErrKindTypeCoercion,
			Detail: fmt.Sprintf("%q is not a month between 1 and 12", rawMonth)}
	}
	if year < 1990 || year > 2100 {
		return 0, 0, &RowError{RowIndex: rowIndex, Field: rules.FieldPeriodYear, Kind: ErrKindValidation,
			Detail: fmt.Sprintf("year %d is out of range", year)}
	}
	return year, month, nil
}

func (t *rowTransformer) quantity(rowIndex int, cells []string) (int64, *RowError) {
	raw := t.value(cells, rules.FieldQuantity)
	if raw == "" {
		return 0, &RowError{RowIndex: rowIndex, Field: rules.FieldQuantity, Kind: ErrKindMissingField, Detail: "required value is empty"}
	}

	d, err := parseDecimal(raw, t.rules.Transform.DecimalComma)
	if err != nil {
		return 0, &RowError{RowIndex: rowIndex, Field: rules.FieldQuantity, Kind: ErrKindTypeCoercion,
			Detail: fmt.Sprintf("%q is not a number", raw)}
	}
	if !d.IsInteger() {
		return 0, &RowError{RowIndex: rowIndex, Field: rules.FieldQuantity, Kind: ErrKindTypeCoercion,
			Detail: fmt.Sprintf("quantity %q is not a whole number", raw)}
	}

	qty := d.IntPart()
	if t.rules.Transform.UnitsPerPack > 0 {
		qty *= int64(t.rules.Transform.UnitsPerPack)
	}
	return qty, nil
}

func (t *rowTransformer) netAmount(rowIndex int, cells []string) (decimal.Decimal, *RowError) {
	raw := t.value(cells, rules.FieldNetAmount)
	if raw == "" {
		return decimal.Zero, &RowError{RowIndex: rowIndex, Field: rules.FieldNetAmount, Kind: ErrKindMissingField, Detail: "required value is empty"}
	}

	d, err := parseDecimal(raw, t.rules.Transform.DecimalComma)
	if err != nil {
		return decimal.Zero, &RowError{RowIndex: rowIndex, Field: rules.FieldNetAmount, Kind: ErrKindTypeCoercion,
			Detail: fmt.Sprintf("%q is not an amount", raw)}
	}
	return d.Mul(t.amountScale), nil
}

func (t *rowTransformer) value(cells []string, field string) string {
	idx, ok := t.columns[field]
	if !ok || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

// parseDecimal normalizes vendor number formatting before decimal parsing.
// With decimalComma set, "1.234,56" reads as 1234.56; otherwise thousands
// commas are stripped from "1,234.56".
func parseDecimal(raw string, decimalComma bool) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if decimalComma {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	return decimal.NewFromString(s)
}

func validEAN(s string) bool {
	if len(s) != 8 && len(s) != 13 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
