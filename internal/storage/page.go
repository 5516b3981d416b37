package storage

import "time"

// Page is one page of a cursor-paginated query. HasMore is true iff the page
// came back full, so a final page of exactly Limit items costs one extra
// empty fetch.
type Page[T any] struct {
	Items   []T     `json:"items"`
	HasMore bool    `json:"hasMore"`
	Cursor  *string `json:"cursor,omitempty"`
}

// NewPage wraps items fetched with limit. key extracts the ordering key of
// an item for the next cursor.
func NewPage[T any](items []T, limit int, key func(T) (time.Time, string)) Page[T] {
	page := Page[T]{Items: items, HasMore: limit > 0 && len(items) == limit}
	if page.Items == nil {
		page.Items = []T{}
	}
	if len(items) > 0 {
		createdAt, id := key(items[len(items)-1])
		c := EncodeCursor(createdAt, id)
		page.Cursor = &c
	}
	return page
}
