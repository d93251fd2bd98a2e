package platform

import (
	"encoding/json"
	"errors"
	"strings"
)

// Status tags the outcome of a decoder.
type Status int

const (
	NotFound Status = iota
	Found
	Malformed
)

func (s Status) String() string {
	switch s {
	case Found:
		return "found"
	case Malformed:
		return "malformed"
	default:
		return "not_found"
	}
}

// Node is one item of a paginated connection.
type Node struct {
	ID          string
	Title       string
	Price       string
	Status      string
	URL         string
	Renewable   bool
	Relistable  bool
	Violating   bool
	MemberCount int
	Latitude    float64
	Longitude   float64
}

// Page is a decoded connection page.
type Page struct {
	Nodes     []Node
	EndCursor string
	HasNext   bool
}

// Result is what a connection decoder returns.
type Result struct {
	Status Status
	Page   Page
	Err    error
}

// flexID accepts ids encoded as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// Shape describes one remote connection: the object key that holds it and
// how a single node is decoded.
type Shape struct {
	Name string
	Key  string
	node func(raw json.RawMessage) (Node, error)
}

var (
	SellingShape  = Shape{Name: "selling", Key: "marketplace_listing_sets", node: decodeSellingNode}
	SearchShape   = Shape{Name: "search", Key: "marketplace_search", node: decodeSearchNode}
	LocationShape = Shape{Name: "locations", Key: "city_street_search", node: decodeLocationNode}
	GroupShape    = Shape{Name: "groups", Key: "groups_tab", node: decodeGroupNode}
)

// Decode reads the connection from a cleaned response body.
func (sh Shape) Decode(body []byte) Result {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return Result{Status: Malformed, Err: err}
	}
	conn, ok := findKey(root, sh.Key)
	if !ok {
		return Result{Status: NotFound}
	}
	return sh.decodeConnection(conn)
}

// DecodeMarkup bracket-matches the JSON value embedded after the shape key in
// rendered markup. The first occurrence that yields nodes wins.
func (sh Shape) DecodeMarkup(markup string) Result {
	marker := `"` + sh.Key + `":`
	res := Result{Status: NotFound}
	for from := 0; ; {
		i := strings.Index(markup[from:], marker)
		if i < 0 {
			return res
		}
		start := from + i + len(marker)
		from = start
		segment, ok := ExtractJSON(markup, start)
		if !ok {
			res = Result{Status: Malformed, Err: errors.New("unbalanced embedded payload")}
			continue
		}
		var conn any
		if err := json.Unmarshal([]byte(segment), &conn); err != nil {
			res = Result{Status: Malformed, Err: err}
			continue
		}
		if r := sh.decodeConnection(conn); r.Status == Found {
			return r
		} else if r.Status == Malformed {
			res = r
		}
	}
}

func (sh Shape) decodeConnection(conn any) Result {
	var page Page
	if info, ok := findKey(conn, "page_info"); ok {
		if m, ok := info.(map[string]any); ok {
			page.EndCursor, _ = m["end_cursor"].(string)
			page.HasNext, _ = m["has_next_page"].(bool)
		}
	}
	items, ok := findArray(conn, "edges")
	if !ok {
		if items, ok = findArray(conn, "nodes"); !ok {
			return Result{Status: Malformed, Page: page, Err: errors.New(sh.Name + ": connection without edges")}
		}
	}
	for _, item := range items {
		obj, isObj := item.(map[string]any)
		if !isObj {
			continue
		}
		var node any = obj
		if inner, ok := obj["node"]; ok {
			node = inner
		}
		raw, err := json.Marshal(node)
		if err != nil {
			continue
		}
		n, err := sh.node(raw)
		if err != nil || n.ID == "" {
			continue
		}
		page.Nodes = append(page.Nodes, n)
	}
	if len(page.Nodes) == 0 {
		return Result{Status: NotFound, Page: page}
	}
	return Result{Status: Found, Page: page}
}

// findKey returns a non-null value stored under key, checking each object's own
// keys before descending into its children.
func findKey(v any, key string) (any, bool) {
	switch x := v.(type) {
	case map[string]any:
		if val, ok := x[key]; ok && val != nil {
			return val, true
		}
		for _, child := range x {
			if val, ok := findKey(child, key); ok {
				return val, true
			}
		}
	case []any:
		for _, child := range x {
			if val, ok := findKey(child, key); ok {
				return val, true
			}
		}
	}
	return nil, false
}

func findArray(v any, key string) ([]any, bool) {
	val, ok := findKey(v, key)
	if !ok {
		return nil, false
	}
	arr, ok := val.([]any)
	return arr, ok
}

type sellingJSON struct {
	ID             flexID `json:"id"`
	ListingTitle   string `json:"marketplace_listing_title"`
	Title          string `json:"title"`
	FormattedPrice struct {
		Text string `json:"text"`
	} `json:"formatted_price"`
	Status string `json:"listing_status"`
	Story  struct {
		URL string `json:"url"`
	} `json:"story"`
	CanRenew  bool `json:"can_renew"`
	CanRelist bool `json:"can_relist"`
	Violating bool `json:"is_violating_policy"`
}

func decodeSellingNode(raw json.RawMessage) (Node, error) {
	var j sellingJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return Node{}, err
	}
	title := j.ListingTitle
	if title == "" {
		title = j.Title
	}
	return Node{
		ID:         string(j.ID),
		Title:      title,
		Price:      j.FormattedPrice.Text,
		Status:     j.Status,
		URL:        j.Story.URL,
		Renewable:  j.CanRenew,
		Relistable: j.CanRelist,
		Violating:  j.Violating,
	}, nil
}

type searchJSON struct {
	Listing *struct {
		ID           flexID `json:"id"`
		ListingTitle string `json:"marketplace_listing_title"`
		Price        struct {
			Amount string `json:"formatted_amount"`
		} `json:"listing_price"`
	} `json:"listing"`
}

func decodeSearchNode(raw json.RawMessage) (Node, error) {
	var j searchJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return Node{}, err
	}
	if j.Listing == nil {
		return Node{}, errors.New("search node without listing")
	}
	return Node{ID: string(j.Listing.ID), Title: j.Listing.ListingTitle, Price: j.Listing.Price.Amount}, nil
}

type locationJSON struct {
	Address string `json:"single_line_address"`
	Name    string `json:"name"`
	Page    struct {
		ID flexID `json:"id"`
	} `json:"page"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

func decodeLocationNode(raw json.RawMessage) (Node, error) {
	var j locationJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return Node{}, err
	}
	name := j.Address
	if name == "" {
		name = j.Name
	}
	id := string(j.Page.ID)
	if id == "" {
		id = name
	}
	return Node{ID: id, Title: name, Latitude: j.Location.Latitude, Longitude: j.Location.Longitude}, nil
}

type groupJSON struct {
	ID          flexID `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	MemberCount *int   `json:"member_count"`
	Members     struct {
		Count int `json:"count"`
	} `json:"group_member_profiles"`
}

func decodeGroupNode(raw json.RawMessage) (Node, error) {
	var j groupJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return Node{}, err
	}
	count := j.Members.Count
	if j.MemberCount != nil {
		count = *j.MemberCount
	}
	return Node{ID: string(j.ID), Title: j.Name, URL: j.URL, MemberCount: count}, nil
}

// ExtractJSON returns the balanced JSON object or array starting at the first
// '{' or '[' at or after from. String literals and escapes are respected.
func ExtractJSON(text string, from int) (string, bool) {
	start := -1
	for i := from; i < len(text); i++ {
		if c := text[i]; c == '{' || c == '[' {
			start = i
			break
		} else if c != ' ' && c != '\n' && c != '\t' && c != '\r' {
			return "", false
		}
	}
	if start < 0 {
		return "", false
	}
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ListingRef is what a create or edit mutation resolves to.
type ListingRef struct {
	ID       string
	URL      string
	PhotoIDs []string
}

// Resolved reports whether the mutation produced a usable reference.
func (r ListingRef) Resolved() bool { return r.ID != "" || r.URL != "" }

type listingJSON struct {
	ID    flexID `json:"id"`
	Story *struct {
		URL string `json:"url"`
	} `json:"story"`
	Item *struct {
		ID flexID `json:"id"`
	} `json:"marketplace_listing_item"`
	Photos []struct {
		ID flexID `json:"id"`
	} `json:"listing_photos"`
}

type mutationJSON struct {
	Data map[string]*struct {
		Listing *listingJSON `json:"listing"`
	} `json:"data"`
}

// DecodeListingMutation reads the listing reference under data.<field>.listing.
func DecodeListingMutation(body []byte, field string) (ListingRef, Status) {
	var j mutationJSON
	if err := json.Unmarshal(body, &j); err != nil {
		return ListingRef{}, Malformed
	}
	payload := j.Data[field]
	if payload == nil || payload.Listing == nil {
		return ListingRef{}, NotFound
	}
	l := payload.Listing
	ref := ListingRef{ID: string(l.ID)}
	if ref.ID == "" && l.Item != nil {
		ref.ID = string(l.Item.ID)
	}
	if l.Story != nil {
		ref.URL = l.Story.URL
	}
	for _, p := range l.Photos {
		if p.ID != "" {
			ref.PhotoIDs = append(ref.PhotoIDs, string(p.ID))
		}
	}
	if !ref.Resolved() {
		return ref, NotFound
	}
	return ref, Found
}

// Mutation response fields.
const (
	FieldCreate = "marketplace_listing_create"
	FieldEdit   = "marketplace_listing_edit"
)

// FieldStoryCreate is the response field of a group post.
const FieldStoryCreate = "story_create"

type storyJSON struct {
	Data map[string]*struct {
		Story *struct {
			ID     flexID `json:"id"`
			PostID flexID `json:"post_id"`
			URL    string `json:"url"`
		} `json:"story"`
	} `json:"data"`
}

// DecodeGroupPost reads the created post under data.<field>.story.
func DecodeGroupPost(body []byte, field string) (ListingRef, Status) {
	var j storyJSON
	if err := json.Unmarshal(body, &j); err != nil {
		return ListingRef{}, Malformed
	}
	payload := j.Data[field]
	if payload == nil || payload.Story == nil {
		return ListingRef{}, NotFound
	}
	ref := ListingRef{ID: string(payload.Story.PostID), URL: payload.Story.URL}
	if ref.ID == "" {
		ref.ID = string(payload.Story.ID)
	}
	if !ref.Resolved() {
		return ref, NotFound
	}
	return ref, Found
}

// GroupPostURL builds the public URL of a post in a group.
func GroupPostURL(baseURL, groupID, postID string) string {
	if postID == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/groups/" + groupID + "/posts/" + postID
}

type uploadJSON struct {
	Payload *struct {
		FBID     flexID `json:"fbid"`
		PhotoID  flexID `json:"photoID"`
		PhotoID2 flexID `json:"photo_id"`
	} `json:"payload"`
}

// DecodeUpload returns the uploaded photo id.
func DecodeUpload(body []byte) (string, Status) {
	var j uploadJSON
	if err := json.Unmarshal(body, &j); err != nil {
		return "", Malformed
	}
	if j.Payload == nil {
		return "", NotFound
	}
	for _, id := range []flexID{j.Payload.FBID, j.Payload.PhotoID, j.Payload.PhotoID2} {
		if id != "" {
			return string(id), Found
		}
	}
	return "", NotFound
}

// ListingURL builds the public URL of a listing id.
func ListingURL(baseURL, id string) string {
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "http") {
		return id
	}
	return strings.TrimRight(baseURL, "/") + "/marketplace/item/" + id
}
