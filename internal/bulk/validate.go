// Package bulk implements CSV intake and batch pitch generation: parsing and
// validating uploads, and the worker-side processor that drives a claimed
// job through its rows.
package bulk

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"pathsynch/internal/types"
)

// TemplateHeader is the exact CSV header, order and spelling included.
// Uploads whose header differs are rejected before any row is read.
const TemplateHeader = "businessName,segment,subIndustry,state,city,ownerName,email,phone,customMessage,websiteUrl,googleRating,numReviews"

// TemplateCSV is the downloadable starter template: the header plus one
// illustrative row.
const TemplateCSV = TemplateHeader + "\n" +
	`Bluebird Coffee,Coffee Shop,Specialty Roaster,OR,Portland,Dana Reyes,dana@bluebird.example,503-555-0142,Thanks for stopping by last week!,https://bluebird.example,4.6,212` + "\n"

var templateColumns = strings.Split(TemplateHeader, ",")

var (
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	nonDigitRe = regexp.MustCompile(`[^0-9]`)
)

// ParseResult is the outcome of validating one upload: the rows that can be
// processed and the violations for the ones that cannot. A row appears in
// exactly one of the two lists.
type ParseResult struct {
	TotalRows int
	Valid     []types.BulkRow
	Errors    []types.RowError
}

// Parse reads a CSV upload, checks its header against the template, and
// validates every data row. Row numbers in errors are 1-based data-row
// indices; the header is row 0 and never reported. All violations for a
// row are collected, not just the first.
func Parse(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(templateColumns)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, types.NewAppError(types.ErrCodeValidationCSVEmpty, "uploaded file is empty", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationCSVHeader, "failed to read CSV header", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	result := &ParseResult{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		result.TotalRows++
		rowNum := result.TotalRows

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			result.Errors = append(result.Errors, types.RowError{
				Row:   rowNum,
				Error: fmt.Sprintf("malformed CSV row: %v", parseErr.Err),
			})
			continue
		}
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationFailed, "failed to read CSV row", err)
		}

		profile, rowErrors := validateRow(rowNum, record)
		if len(rowErrors) > 0 {
			result.Errors = append(result.Errors, rowErrors...)
			continue
		}
		result.Valid = append(result.Valid, types.BulkRow{Row: rowNum, Profile: profile})
	}

	if result.TotalRows == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationCSVEmpty, "uploaded file has no data rows", nil)
	}
	return result, nil
}

func checkHeader(header []string) error {
	if len(header) != len(templateColumns) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationCSVHeader,
			"CSV header does not match the template", nil,
			map[string]any{"expected": TemplateHeader, "got": strings.Join(header, ",")})
	}
	for i, col := range header {
		if strings.TrimSpace(col) != templateColumns[i] {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationCSVHeader,
				fmt.Sprintf("CSV header column %d is %q, expected %q", i+1, strings.TrimSpace(col), templateColumns[i]), nil,
				map[string]any{"expected": TemplateHeader, "got": strings.Join(header, ",")})
		}
	}
	return nil
}

// validateRow checks one data row, collecting every violation. The returned
// profile is only meaningful when the error list is empty.
func validateRow(rowNum int, record []string) (types.BusinessProfile, []types.RowError) {
	get := func(col string) string {
		for i, name := range templateColumns {
			if name == col {
				return strings.TrimSpace(record[i])
			}
		}
		return ""
	}

	var errs []types.RowError
	fail := func(field, msg string) {
		errs = append(errs, types.RowError{Row: rowNum, Field: field, Error: msg})
	}

	profile := types.BusinessProfile{
		BusinessName:  get("businessName"),
		Segment:       get("segment"),
		SubIndustry:   get("subIndustry"),
		State:         get("state"),
		City:          get("city"),
		OwnerName:     get("ownerName"),
		Email:         get("email"),
		Phone:         get("phone"),
		CustomMessage: get("customMessage"),
		WebsiteURL:    get("websiteUrl"),
	}

	for _, required := range []struct{ field, value string }{
		{"businessName", profile.BusinessName},
		{"segment", profile.Segment},
		{"state", profile.State},
		{"city", profile.City},
		{"ownerName", profile.OwnerName},
		{"email", profile.Email},
	} {
		if required.value == "" {
			fail(required.field, "is required")
		}
	}

	if profile.Email != "" && !emailRe.MatchString(profile.Email) {
		fail("email", "is not a valid email address")
	}

	if profile.Phone != "" {
		if digits := nonDigitRe.ReplaceAllString(profile.Phone, ""); len(digits) < 10 {
			fail("phone", "must contain at least 10 digits")
		}
	}

	if profile.WebsiteURL != "" {
		u, err := url.Parse(profile.WebsiteURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fail("websiteUrl", "must be an http or https URL")
		}
	}

	if raw := get("googleRating"); raw != "" {
		rating, err := strconv.ParseFloat(raw, 64)
		if err != nil || rating < 0 || rating > 5 {
			fail("googleRating", "must be a number between 0 and 5")
		} else {
			profile.GoogleRating = rating
		}
	}

	if raw := get("numReviews"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail("numReviews", "must be a non-negative integer")
		} else {
			profile.NumReviews = n
		}
	}

	return profile, errs
}
