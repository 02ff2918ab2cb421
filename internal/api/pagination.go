package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// Meta describes the page returned in an envelope.
type Meta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_items"`
}

// Links points at the current, next and previous pages.
type Links struct {
	Self string  `json:"self"`
	Next *string `json:"next"`
	Prev *string `json:"prev"`
}

// Envelope is the paginated collection response.
type Envelope[T any] struct {
	Items []T   `json:"items"`
	Meta  Meta  `json:"_meta"`
	Links Links `json:"_links"`
}

type pageRequest struct {
	page    int
	perPage int
}

func parsePage(r *http.Request) (pageRequest, error) {
	p := pageRequest{page: 1, perPage: defaultPerPage}
	q := r.URL.Query()
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, errors.Newf("invalid page %q", raw)
		}
		p.page = n
	}
	if raw := q.Get("per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, errors.Newf("invalid per_page %q", raw)
		}
		p.perPage = min(n, maxPerPage)
	}
	return p, nil
}

// paginate slices items into the requested page and builds links that repeat
// the request's other query parameters.
func paginate[T any](r *http.Request, p pageRequest, items []T) Envelope[T] {
	total := len(items)
	pages := (total + p.perPage - 1) / p.perPage

	start := total
	if p.page-1 <= total/p.perPage {
		start = min((p.page-1)*p.perPage, total)
	}
	end := min(start+p.perPage, total)
	pageItems := items[start:end]
	if pageItems == nil {
		pageItems = []T{}
	}

	link := func(page int) string {
		u := url.URL{Path: r.URL.Path}
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(p.perPage))
		u.RawQuery = q.Encode()
		return u.String()
	}

	env := Envelope[T]{
		Items: pageItems,
		Meta:  Meta{Page: p.page, PerPage: p.perPage, TotalPages: pages, TotalItems: total},
		Links: Links{Self: link(p.page)},
	}
	if p.page < pages {
		next := link(p.page + 1)
		env.Links.Next = &next
	}
	if p.page > 1 {
		prev := link(p.page - 1)
		env.Links.Prev = &prev
	}
	return env
}
