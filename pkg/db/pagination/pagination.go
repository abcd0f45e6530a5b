package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Pagination binds the cursor query parameters shared by the balance
// history and withdrawal listing endpoints.
type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=10" validate:"gte=1,lte=250"` // Min 1, Max 250
}

// Cursor marks the last visible row of a page under newest-first ordering.
type Cursor struct {
	CreatedAt string `json:"created_at,omitempty"`
	ID        string `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor     string `json:"next_cursor"`
	PreviousCursor string `json:"previous_cursor"`
	HasMore        bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// Page trims rows that were fetched with limit+1 to detect a further page,
// and points the next cursor at the last row kept.
func Page[T any](rows []*T, limit int, cursorOf func(*T) Cursor) ([]*T, *PageInfo) {
	info := &PageInfo{}
	if len(rows) > limit {
		rows = rows[:limit]
		next, _ := EncodeCursor(cursorOf(rows[len(rows)-1]))
		info.NextCursor = next
		info.HasMore = true
	}
	return rows, info
}

// At builds the cursor for a row created at ts with the given snowflake ID.
func At(ts time.Time, id string) Cursor {
	return Cursor{CreatedAt: ts.UTC().Format(time.RFC3339Nano), ID: id}
}
