package remote

import "encoding/json"

// ListPage is the common list-response shape of the marketplace API. Some
// endpoints report `content`/`totalElements`, others `items`/`hasMore`.
type ListPage struct {
	Content       []json.RawMessage `json:"content"`
	Items         []json.RawMessage `json:"items"`
	TotalElements int64             `json:"totalElements"`
	HasMore       *bool             `json:"hasMore"`
}

// Records returns whichever list field the remote populated.
func (p ListPage) Records() []json.RawMessage {
	if len(p.Content) > 0 {
		return p.Content
	}
	return p.Items
}

// More reports whether another page should be fetched after page (1-based)
// of the given size. Callers still enforce a page ceiling: a misbehaving
// remote reporting constant totals must not produce an unbounded loop.
func (p ListPage) More(page, size int) bool {
	if p.HasMore != nil {
		return *p.HasMore
	}
	return int64(page*size) < p.TotalElements
}

func DecodeList(body []byte) (ListPage, error) {
	var page ListPage
	if err := json.Unmarshal(body, &page); err != nil {
		return ListPage{}, err
	}
	return page, nil
}
