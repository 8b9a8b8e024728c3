// Package pagination slices ordered result sets into pages. It is stateless
// and never errors: out-of-range inputs are clamped so a page past the end
// simply yields an empty slice.
package pagination

const (
	// DefaultPage is used when the requested page is absent or non-positive.
	DefaultPage = 1
	// DefaultPageSize is used when the requested size is absent or non-positive.
	DefaultPageSize = 10
)

// Page describes the slice of an ordered result set to return.
type Page struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	Offset    int `json:"-"`
	Limit     int `json:"-"`
	Total     int `json:"total"`
	PageCount int `json:"pageCount"`
}

// Paginate computes offset, limit and page count for a page request over
// total items. Non-positive page or pageSize fall back to the defaults.
func Paginate(total, page, pageSize int) Page {
	if page <= 0 {
		page = DefaultPage
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if total < 0 {
		total = 0
	}
	pageCount := (total + pageSize - 1) / pageSize
	return Page{
		Page:      page,
		PageSize:  pageSize,
		Offset:    (page - 1) * pageSize,
		Limit:     pageSize,
		Total:     total,
		PageCount: pageCount,
	}
}

// Bounds clamps the page window to [0, total) slice indexes.
func (p Page) Bounds(total int) (int, int) {
	start := p.Offset
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return start, end
}
