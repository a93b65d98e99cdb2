// Package celex parses and normalizes CELEX case-law identifiers and extracts
// them from index pages.
package celex

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ID is a canonical CELEX identifier such as 62020CJ0123.
type ID string

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// ErrMalformed is returned for values that cannot be turned into a canonical ID.
var ErrMalformed = errors.New("malformed celex identifier")

var (
	canonicalPattern  = regexp.MustCompile(`^6\d{4}[A-Z]{1,2}\d{4}(?:\(\d{2}\))?$`)
	caseNumberPattern = regexp.MustCompile(`^(?:[A-Z]-)?(\d{1,4})/(\d{2}|\d{4})$`)
	digitsPattern     = regexp.MustCompile(`^\d{4,7}$`)
)

// numdoc values carry a three digit document sub-number after the case serial.
const numdocSuffixLen = 3

// Parse normalizes a raw CELEX value. Case is folded, whitespace is stripped
// and an optional "CELEX:" prefix is removed.
func Parse(raw string) (ID, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)
	cleaned = strings.TrimPrefix(cleaned, "CELEX:")
	if !canonicalPattern.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	return ID(cleaned), nil
}

// Context carries the per-index-page convention used to expand numdoc values.
type Context struct {
	// Sector is the court letter of the index page (C, T or F).
	Sector string
	// Year applies to numdoc values that do not carry their own year.
	Year int
	// DocType is the CELEX document type letter; defaults to J (judgment).
	DocType string
}

// FromNumdoc converts a raw numdoc value into a canonical ID.
//
// Two shapes are understood. A bare digit run such as 123456 holds the case
// serial followed by a three digit sub-number, and takes its year from ctx.
// A case number such as C-123/20 or 123/2020 carries its own year. A value
// that is already a canonical identifier is returned as is.
func FromNumdoc(raw string, ctx Context) (ID, error) {
	if id, err := Parse(raw); err == nil {
		return id, nil
	}
	value := strings.ToUpper(strings.TrimSpace(raw))
	sector := strings.ToUpper(strings.TrimSpace(ctx.Sector))
	if len(sector) != 1 || sector[0] < 'A' || sector[0] > 'Z' {
		return "", fmt.Errorf("%w: sector %q", ErrMalformed, ctx.Sector)
	}
	docType := strings.ToUpper(strings.TrimSpace(ctx.DocType))
	if docType == "" {
		docType = "J"
	}

	var (
		serial int
		year   = ctx.Year
		err    error
	)
	switch {
	case digitsPattern.MatchString(value):
		serial, err = strconv.Atoi(value[:len(value)-numdocSuffixLen])
		if err != nil {
			return "", fmt.Errorf("%w: numdoc %q", ErrMalformed, raw)
		}
	case caseNumberPattern.MatchString(value):
		m := caseNumberPattern.FindStringSubmatch(value)
		serial, err = strconv.Atoi(m[1])
		if err != nil {
			return "", fmt.Errorf("%w: numdoc %q", ErrMalformed, raw)
		}
		year, err = expandYear(m[2])
		if err != nil {
			return "", fmt.Errorf("%w: numdoc %q", ErrMalformed, raw)
		}
	default:
		return "", fmt.Errorf("%w: numdoc %q", ErrMalformed, raw)
	}
	if serial <= 0 {
		return "", fmt.Errorf("%w: numdoc %q has no serial", ErrMalformed, raw)
	}
	if year < 1953 || year > 9999 {
		return "", fmt.Errorf("%w: year %d out of range", ErrMalformed, year)
	}
	return Parse(fmt.Sprintf("6%04d%s%s%04d", year, sector, docType, serial))
}

// expandYear maps two digit years onto the lifetime of the Court (1953 onward).
func expandYear(raw string) (int, error) {
	y, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse year: %w", err)
	}
	if len(raw) == 4 {
		return y, nil
	}
	if y >= 53 {
		return 1900 + y, nil
	}
	return 2000 + y, nil
}
