package nextcloud

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"sort"
)

// DefaultPageSize is the page size used when a ListRequest does not set one.
const DefaultPageSize = 50

// ListRequest carries the paging window for a paged endpoint. The engine
// never mutates a request it was given; each page gets its own copy.
type ListRequest struct {
	// Search is an optional server-side filter, omitted when empty.
	Search string `json:"search,omitempty"`

	// Limit is the page size. HasMore is defined as a full page, so a
	// final page of exactly Limit items costs one extra empty fetch.
	Limit int `json:"limit"`

	// Offset is the index of the first item of the page.
	Offset int `json:"offset"`

	// PostParameters switches the page fetch to a POST carrying them as
	// the JSON body, for endpoints whose filters do not fit a query
	// string.
	PostParameters map[string]any `json:"-"`
}

// NewListRequest returns a request for the first page at the default size.
func NewListRequest() *ListRequest {
	return &ListRequest{Limit: DefaultPageSize}
}

// Validate rejects windows the server would misinterpret.
func (r *ListRequest) Validate() error {
	if r.Limit <= 0 {
		return &ValidationError{Message: fmt.Sprintf("list limit must be positive, got %d", r.Limit)}
	}
	if r.Offset < 0 {
		return &ValidationError{Message: fmt.Sprintf("list offset must not be negative, got %d", r.Offset)}
	}
	return nil
}

// List is one fetched page of T plus enough state to fetch the next.
type List[T any] struct {
	MetaData MetaData
	Request  ListRequest
	Path     string
	Items    []T

	collection bool
}

// Count returns the number of items on this page.
func (l *List[T]) Count() int { return len(l.Items) }

// HasMore reports whether another page may exist: the server filled this
// one completely.
func (l *List[T]) HasMore() bool {
	return l.Request.Limit > 0 && len(l.Items) == l.Request.Limit
}

// GetNext fetches the following page. The receiver is left untouched; the
// returned list has its offset advanced by one page size. Calling GetNext
// on a page that was not full returns ErrExhausted.
func (l *List[T]) GetNext(ctx context.Context, c *Client) (*List[T], error) {
	if !l.HasMore() {
		return nil, ErrExhausted
	}
	req := l.Request
	req.Offset += req.Limit
	return fetchList[T](ctx, c, l.MetaData.URI, l.Path, &req, l.collection)
}

// All returns a lazy iterator over every item from this page onward,
// fetching further pages as iteration crosses page boundaries. A fetch
// error is yielded once and iteration stops.
func (l *List[T]) All(ctx context.Context, c *Client) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		page := l
		for {
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
			if !page.HasMore() {
				return
			}
			next, err := page.GetNext(ctx, c)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			page = next
		}
	}
}

// GetList fetches the first page of a paged endpoint whose payload is a
// JSON array at jsonPath (dotted, e.g. "ocs.data.users").
func GetList[T any](ctx context.Context, c *Client, path, jsonPath string, req *ListRequest) (*List[T], error) {
	return getPaged[T](ctx, c, path, jsonPath, req, false)
}

// GetCollection is GetList for endpoints whose payload is a JSON object
// at jsonPath with one property per item, as the group-folders app
// returns. The property names are dropped; items carry their own ids.
func GetCollection[T any](ctx context.Context, c *Client, path, jsonPath string, req *ListRequest) (*List[T], error) {
	return getPaged[T](ctx, c, path, jsonPath, req, true)
}

func getPaged[T any](ctx context.Context, c *Client, path, jsonPath string, req *ListRequest, collection bool) (*List[T], error) {
	if req == nil {
		req = NewListRequest()
	}
	if req.Limit == 0 {
		req.Limit = DefaultPageSize
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return fetchList[T](ctx, c, c.settings.MakeURI(path), jsonPath, req, collection)
}

// fetchList performs one page fetch. uri may already carry paging
// parameters from a previous page; AddGetParams replaces them.
func fetchList[T any](ctx context.Context, c *Client, uri, jsonPath string, req *ListRequest, collection bool) (*List[T], error) {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}
	full, err := AddGetParams(uri, req)
	if err != nil {
		return nil, err
	}
	method := http.MethodGet
	var body any
	if req.PostParameters != nil {
		method = http.MethodPost
		body = req.PostParameters
	}
	resp, err := c.Send(ctx, method, full, body, nil)
	if err != nil {
		return nil, err
	}
	env, err := c.parseEnvelope(full, resp)
	if err != nil {
		return nil, err
	}
	items, err := extractItems[T](env, jsonPath, collection)
	if err != nil {
		return nil, err
	}
	return &List[T]{
		MetaData:   env.Meta(),
		Request:    *req,
		Path:       jsonPath,
		Items:      items,
		collection: collection,
	}, nil
}

func extractItems[T any](env Envelope, jsonPath string, collection bool) ([]T, error) {
	raw := env.Lookup(jsonPath)
	if raw == nil {
		return []T{}, nil
	}
	if collection {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("nextcloud: expected object collection at %q, got %T", jsonPath, raw)
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]any, 0, len(obj))
		for _, k := range keys {
			items = append(items, obj[k])
		}
		return DecodeSlice[T](items)
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("nextcloud: expected array at %q, got %T", jsonPath, raw)
	}
	return DecodeSlice[T](arr)
}

// GetPlainList fetches an unpaged array endpoint in one shot.
func GetPlainList[T any](ctx context.Context, c *Client, path, jsonPath string, query any) ([]T, error) {
	env, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return extractItems[T](env, jsonPath, false)
}

// GetPlainCollection fetches an unpaged object-collection endpoint.
func GetPlainCollection[T any](ctx context.Context, c *Client, path, jsonPath string, query any) ([]T, error) {
	env, err := c.Get(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return extractItems[T](env, jsonPath, true)
}
