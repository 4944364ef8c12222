package layout

import "sync"

// GridShape is the rows x columns arrangement of a gallery page.
type GridShape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// ShapeFor returns the gallery grid shape for the number of tiles actually
// displayed on the current page (after pagination):
//
//	1     -> 1x1 (enlarged, centered)
//	2     -> 1x2
//	3-4   -> 2x2
//	5-9   -> 3x3
//	10-16 -> 4x4
//	17-25 -> 5x5
func ShapeFor(displayedCount int) GridShape {
	switch {
	case displayedCount <= 1:
		return GridShape{Rows: 1, Cols: 1}
	case displayedCount == 2:
		return GridShape{Rows: 1, Cols: 2}
	case displayedCount <= 4:
		return GridShape{Rows: 2, Cols: 2}
	case displayedCount <= 9:
		return GridShape{Rows: 3, Cols: 3}
	case displayedCount <= 16:
		return GridShape{Rows: 4, Cols: 4}
	default:
		return GridShape{Rows: 5, Cols: 5}
	}
}

// Paginator windows the gallery when the roster exceeds the page size. The
// current page only moves on explicit Next/Prev; roster changes never yank
// the view, they only clamp the index when the page count shrinks below it.
type Paginator struct {
	mu       sync.Mutex
	pageSize int
	page     int
	total    int
}

// NewPaginator builds a paginator with the given page size. Sizes below one
// fall back to the default of 16.
func NewPaginator(pageSize int) *Paginator {
	if pageSize < 1 {
		pageSize = 16
	}
	return &Paginator{pageSize: pageSize}
}

// SetPageSize updates the page size and re-clamps the current page.
func (p *Paginator) SetPageSize(size int) {
	if size < 1 {
		return
	}
	p.mu.Lock()
	p.pageSize = size
	p.clampLocked()
	p.mu.Unlock()
}

// SetTotal records the displayed-eligible participant count and clamps the
// current page into [0, totalPages-1].
func (p *Paginator) SetTotal(total int) {
	if total < 0 {
		total = 0
	}
	p.mu.Lock()
	p.total = total
	p.clampLocked()
	p.mu.Unlock()
}

// Next advances one page. On the last page it is a no-op.
func (p *Paginator) Next() {
	p.mu.Lock()
	if p.page < p.totalPagesLocked()-1 {
		p.page++
	}
	p.mu.Unlock()
}

// Prev goes back one page. On the first page it is a no-op.
func (p *Paginator) Prev() {
	p.mu.Lock()
	if p.page > 0 {
		p.page--
	}
	p.mu.Unlock()
}

// Page returns the current zero-based page index.
func (p *Paginator) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}

// TotalPages returns ceil(total/pageSize), never less than 1.
func (p *Paginator) TotalPages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalPagesLocked()
}

// HasNext reports whether a next page exists.
func (p *Paginator) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page < p.totalPagesLocked()-1
}

// HasPrev reports whether a previous page exists.
func (p *Paginator) HasPrev() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page > 0
}

// Window returns the half-open index range [start, end) of the current page.
func (p *Paginator) Window() (start, end int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	start = p.page * p.pageSize
	end = start + p.pageSize
	if end > p.total {
		end = p.total
	}
	if start > p.total {
		start = p.total
	}
	return start, end
}

func (p *Paginator) totalPagesLocked() int {
	if p.total == 0 {
		return 1
	}
	return (p.total + p.pageSize - 1) / p.pageSize
}

func (p *Paginator) clampLocked() {
	if max := p.totalPagesLocked() - 1; p.page > max {
		p.page = max
	}
	if p.page < 0 {
		p.page = 0
	}
}
