package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure all JSONB column types implement both sql.Scanner and
// driver.Valuer, catching any method signature drift at compile time rather
// than at runtime. Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*BulkRowList)(nil)
	_ driver.Valuer = BulkRowList(nil)
	_ sql.Scanner   = (*RowErrorList)(nil)
	_ driver.Valuer = RowErrorList(nil)
	_ sql.Scanner   = (*BusinessProfile)(nil)
	_ driver.Valuer = BusinessProfile{}
	_ sql.Scanner   = (*NarrativeInputs)(nil)
	_ driver.Valuer = NarrativeInputs{}
	_ sql.Scanner   = (*SlideList)(nil)
	_ driver.Valuer = SlideList(nil)
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// valueJSONB is a generic helper that converts a Go value to a JSONB-compatible driver.Value.
// Returns nil for nil interface values; otherwise marshals to JSON bytes.
func valueJSONB(v interface{}) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// ---------------------------------------------------------------------------
// BulkRowList
// ---------------------------------------------------------------------------

// BulkRowList is the JSONB column type for a bulk job's validated rows.
type BulkRowList []BulkRow

func (l *BulkRowList) Scan(value interface{}) error {
	return scanJSONB(l, value)
}

func (l BulkRowList) Value() (driver.Value, error) {
	if l == nil {
		return valueJSONB([]BulkRow{})
	}
	return valueJSONB([]BulkRow(l))
}

// ---------------------------------------------------------------------------
// RowErrorList
// ---------------------------------------------------------------------------

// RowErrorList is the JSONB column type for a bulk job's accumulated errors.
type RowErrorList []RowError

func (l *RowErrorList) Scan(value interface{}) error {
	return scanJSONB(l, value)
}

func (l RowErrorList) Value() (driver.Value, error) {
	if l == nil {
		return valueJSONB([]RowError{})
	}
	return valueJSONB([]RowError(l))
}

// ---------------------------------------------------------------------------
// BusinessProfile / NarrativeInputs
// ---------------------------------------------------------------------------

func (p *BusinessProfile) Scan(value interface{}) error {
	return scanJSONB(p, value)
}

func (p BusinessProfile) Value() (driver.Value, error) {
	return valueJSONB(p)
}

func (n *NarrativeInputs) Scan(value interface{}) error {
	return scanJSONB(n, value)
}

func (n NarrativeInputs) Value() (driver.Value, error) {
	return valueJSONB(n)
}

// ---------------------------------------------------------------------------
// SlideList
// ---------------------------------------------------------------------------

// SlideList is the JSONB column type for a slide deck's slides.
type SlideList []Slide

func (l *SlideList) Scan(value interface{}) error {
	return scanJSONB(l, value)
}

func (l SlideList) Value() (driver.Value, error) {
	if l == nil {
		return valueJSONB([]Slide{})
	}
	return valueJSONB([]Slide(l))
}
