// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Page is a validated 1-based page request.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page and page_size query values. Missing or malformed values
// fall back to page 1 and defSize; the size is clamped to [1, maxSize].
func ParsePage(page, size string, defSize, maxSize int) Page {
	p := Page{
		Number: AtoiDefault(page, 1),
		Size:   AtoiDefault(size, defSize),
	}
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = 1
	}
	if maxSize > 0 && p.Size > maxSize {
		p.Size = maxSize
	}
	return p
}

// Offset is the number of rows preceding this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages returns how many pages of p.Size cover total rows.
func (p Page) TotalPages(total int64) int {
	if total <= 0 || p.Size <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}
