package ledger

// =============================================================================
// PAGINATED PROJECTION - Offset/limit views for display collaborators
// =============================================================================

// Page is one offset/limit slice of an ordered result.
type Page[T any] struct {
	Items  []T
	Total  int
	Offset int
	Limit  int
}

// HasMore reports whether items exist past this page.
func (p Page[T]) HasMore() bool {
	return p.Offset+len(p.Items) < p.Total
}

// PageLimits bounds the limit callers may ask for.
type PageLimits struct {
	Default int
	Max     int
}

var DefaultPageLimits = PageLimits{Default: 15, Max: 100}

// Normalize clamps offset and limit into range.
func (l PageLimits) Normalize(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = l.Default
	}
	if l.Max > 0 && limit > l.Max {
		limit = l.Max
	}
	return offset, limit
}

// PeriodPage derives only the periods on the requested page, newest first.
func PeriodPage(c *Chain, offset, limit int) Page[Period] {
	offset = max(offset, 0)
	cursor := Periods(c, NewestFirst)
	page := Page[Period]{Items: []Period{}, Total: cursor.Len(), Offset: offset, Limit: limit}

	cursor.Skip(offset)
	for len(page.Items) < limit {
		p, ok := cursor.Next()
		if !ok {
			break
		}
		page.Items = append(page.Items, p)
	}
	return page
}

// PurchasePage slices the chain newest first.
func PurchasePage(c *Chain, offset, limit int) Page[Purchase] {
	offset, limit = max(offset, 0), max(limit, 0)
	all := c.NewestFirst()
	page := Page[Purchase]{Items: []Purchase{}, Total: len(all), Offset: offset, Limit: limit}
	if offset >= len(all) {
		return page
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page.Items = append(page.Items, all[offset:end]...)
	return page
}
