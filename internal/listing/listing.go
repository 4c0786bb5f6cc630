// Package listing holds the client-side list engine shared by every admin screen:
// free-text filtering, fixed-size pagination and page-bounds correction.
package listing

import (
	"strings"

	"drivingschool-console/internal/domain"
)

// Haystack returns the searchable texts of a record.
type Haystack func(domain.Record) []string

// Fields builds a Haystack over the named record fields.
func Fields(names ...string) Haystack {
	return func(r domain.Record) []string {
		out := make([]string, 0, len(names))
		for _, name := range names {
			out = append(out, r.String(name))
		}
		return out
	}
}

// Filter keeps the records whose searchable texts contain query, ignoring case.
// An empty query keeps everything. The input slice is never modified and order is preserved.
func Filter(records []domain.Record, query string, haystack Haystack) []domain.Record {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Record, 0, len(records))
	if query == "" {
		return append(out, records...)
	}
	for _, r := range records {
		for _, text := range haystack(r) {
			if strings.Contains(strings.ToLower(text), query) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// TotalPages is max(1, ceil(count/size)).
func TotalPages(count, size int) int {
	if size < 1 {
		size = 1
	}
	if count <= 0 {
		return 1
	}
	return (count + size - 1) / size
}

// ClampPage brings page back into [1, totalPages].
func ClampPage(page, totalPages int) int {
	if totalPages > 0 && page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Paginate returns the 1-based page of records. Out-of-range pages yield an empty slice.
func Paginate(records []domain.Record, page, size int) []domain.Record {
	if size < 1 {
		size = 1
	}
	if page < 1 {
		return []domain.Record{}
	}
	start := (page - 1) * size
	if start >= len(records) {
		return []domain.Record{}
	}
	end := start + size
	if end > len(records) {
		end = len(records)
	}
	out := make([]domain.Record, end-start)
	copy(out, records[start:end])
	return out
}

// Page is the derived pagination state of a screen.
type Page struct {
	CurrentPage int
	PageSize    int
	TotalPages  int
	TotalItems  int
}

// Window filters, clamps and slices in one pass. It returns the visible records and the
// corrected page state.
func Window(records []domain.Record, query string, haystack Haystack, page, size int) ([]domain.Record, Page) {
	filtered := Filter(records, query, haystack)
	total := TotalPages(len(filtered), size)
	page = ClampPage(page, total)
	return Paginate(filtered, page, size), Page{
		CurrentPage: page,
		PageSize:    size,
		TotalPages:  total,
		TotalItems:  len(filtered),
	}
}
