package models

const DefaultPaginationLimit = 30

// Pagination selects one page of a list operation's results.
type Pagination struct {
	// Limit is the maximum number of results to return.
	Limit int `json:"limit"`
	// Cursor is an opaque marker identifying where the page starts; nil
	// requests the first page.
	Cursor *DirectionalCursor `json:"cursor"`
}

func NewPagination(limit int, cursor *DirectionalCursor) Pagination {
	return Pagination{
		Limit:  limit,
		Cursor: cursor,
	}
}
