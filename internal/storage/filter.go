package storage

import (
	"strings"
	"time"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

const dateLayout = "2006-01-02"

// Filter narrows the log listing. Dates are YYYY-MM-DD and inclusive;
// malformed values are ignored.
type Filter struct {
	Search   string
	Status   Status
	DateFrom string
	DateTo   string
	Page     int
	PerPage  int
}

// Normalized returns f with page >= 1 and per-page clamped to 1..100.
func (f Filter) Normalized() Filter {
	if f.PerPage == 0 {
		f.PerPage = DefaultPerPage
	}
	f.PerPage = min(max(f.PerPage, 1), MaxPerPage)
	f.Page = max(f.Page, 1)
	f.Search = strings.TrimSpace(f.Search)
	if !f.Status.Valid() {
		f.Status = ""
	}
	return f
}

// Offset is the row offset of the filter's page.
func (f Filter) Offset() int {
	n := f.Normalized()
	return (n.Page - 1) * n.PerPage
}

// Page is one page of log entries.
type Page struct {
	Entries []Entry `json:"data"`
	Total   int64   `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}

// TotalPages is the number of pages for Total rows.
func (p *Page) TotalPages() int {
	if p.PerPage <= 0 {
		return 0
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

// where renders the WHERE clause for f, numbering placeholders from 1.
func (f Filter) where(d dialect) (string, []any) {
	f = f.Normalized()
	var (
		clauses []string
		args    []any
	)
	next := func(v any) string {
		args = append(args, v)
		return d.placeholder(len(args))
	}

	if f.Search != "" {
		like := "%" + escapeLike(f.Search) + "%"
		clauses = append(clauses, "(to_email LIKE "+next(like)+" ESCAPE '\\' OR subject LIKE "+next(like)+" ESCAPE '\\')")
	}
	if f.Status != "" {
		clauses = append(clauses, "status = "+next(string(f.Status)))
	}
	if from, err := time.ParseInLocation(dateLayout, f.DateFrom, time.UTC); err == nil {
		clauses = append(clauses, "timestamp >= "+next(from))
	}
	if to, err := time.ParseInLocation(dateLayout, f.DateTo, time.UTC); err == nil {
		clauses = append(clauses, "timestamp <= "+next(to.Add(23*time.Hour+59*time.Minute+59*time.Second)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
