// Package listutil parses page requests for list endpoints.
package listutil

import (
	"net/url"
	"strconv"
)

// DefaultPerPage is used when per_page is missing or not one of PerPageOptions.
const DefaultPerPage = 50

// PerPageOptions are the accepted per_page values.
var PerPageOptions = []int{10, 20, 50, 100, 200}

// Page is a request for one page of a list.
type Page struct {
	Number  int // 1-indexed
	PerPage int
}

// Info is the pagination block returned alongside a page of results.
type Info struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ParsePage reads page and per_page from q.
// PRE: none
// POST: Number >= 1; PerPage is one of PerPageOptions
func ParsePage(q url.Values) Page {
	n, _ := strconv.Atoi(q.Get("page"))
	if n < 1 {
		n = 1
	}
	per, _ := strconv.Atoi(q.Get("per_page"))
	if !validPerPage(per) {
		per = DefaultPerPage
	}
	return Page{Number: n, PerPage: per}
}

// Offset returns the number of rows before this page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.PerPage
}

// NewInfo describes page p of a list holding total rows.
// PRE: p came from ParsePage; total >= 0
// POST: TotalPages >= 1
func NewInfo(p Page, total int) Info {
	pages := (total + p.PerPage - 1) / p.PerPage
	if pages < 1 {
		pages = 1
	}
	return Info{Page: p.Number, PerPage: p.PerPage, Total: total, TotalPages: pages}
}

func validPerPage(n int) bool {
	for _, opt := range PerPageOptions {
		if n == opt {
			return true
		}
	}
	return false
}
