// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// DefaultLimit is the page size used when a request does not name one.
const DefaultLimit = 50

// MaxLimit caps the page size a caller can ask for.
const MaxLimit = 200

// Window is a limit/offset slice of a list.
type Window struct {
	Limit  int
	Offset int
}

// Clamp bounds limit to [1, max] (defaulting to def when not positive) and
// offset to >= 0.
func Clamp(limit, offset, def, max int) Window {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return Window{Limit: limit, Offset: offset}
}

// Parse reads the "limit" and "offset" query parameters. Missing or invalid
// values fall back to DefaultLimit and 0.
func Parse(r *http.Request) Window {
	return Clamp(atoi(query.Get(r, "limit")), atoi(query.Get(r, "offset")), DefaultLimit, MaxLimit)
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// Next returns the offset of the following page, or -1 when w reaches total.
func (w Window) Next(total int64) int {
	next := w.Offset + w.Limit
	if int64(next) >= total {
		return -1
	}
	return next
}
