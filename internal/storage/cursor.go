package storage

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/UkralStul/crewfeed-service/internal/apperr"
)

// Cursor is the position of the last item of a page: its creation time and
// id, which together give a total order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func EncodeCursor(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, apperr.InvalidInput("malformed cursor", err)
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return Cursor{}, apperr.InvalidInput(fmt.Sprintf("malformed cursor %q", s), nil)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Cursor{}, apperr.InvalidInput("malformed cursor", err)
	}
	return Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// After reports whether (createdAt, id) sorts strictly after the cursor in
// ascending order.
func (c Cursor) After(createdAt time.Time, id string) bool {
	if createdAt.Equal(c.CreatedAt) {
		return id > c.ID
	}
	return createdAt.After(c.CreatedAt)
}

// Before reports whether (createdAt, id) sorts strictly before the cursor in
// ascending order.
func (c Cursor) Before(createdAt time.Time, id string) bool {
	if createdAt.Equal(c.CreatedAt) {
		return id < c.ID
	}
	return createdAt.Before(c.CreatedAt)
}

// DecodeArgs decodes args.Cursor, returning nil when there is none.
func DecodeArgs(args PaginationArgs) (*Cursor, error) {
	if args.Cursor == nil || *args.Cursor == "" {
		return nil, nil
	}
	c, err := DecodeCursor(*args.Cursor)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
