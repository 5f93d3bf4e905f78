package dav

import (
	"context"
	"fmt"
	"iter"
	"time"

	nextcloud "github.com/custodia-labs/nextcloud-go"
)

const commentsRoot = "remote.php/dav/comments/files"

// Comment is one comment on a file.
type Comment struct {
	ID              string    `json:"id"`
	ParentID        string    `json:"parentId"`
	TopmostParentID string    `json:"topmostParentId"`
	ChildrenCount   int       `json:"childrenCount"`
	Verb            string    `json:"verb"`
	ActorType       string    `json:"actorType"`
	ActorID         string    `json:"actorId"`
	ActorName       string    `json:"actorDisplayName"`
	Created         time.Time `json:"creationDateTime"`
	LatestChild     time.Time `json:"latestChildDateTime"`
	ObjectType      string    `json:"objectType"`
	ObjectID        string    `json:"objectId"`
	IsUnread        bool      `json:"isUnread"`
	Message         string    `json:"message"`
}

// CreateComment adds a comment to a file, addressed by its file id (the
// oc:fileid property, not the path).
func CreateComment(ctx context.Context, c *nextcloud.Client, fileID, message string) error {
	_, err := c.Post(ctx, nextcloud.Combine(commentsRoot, fileID), nil, map[string]any{
		"actorType":  "users",
		"message":    message,
		"objectType": "files",
		"verb":       "comment",
	})
	return err
}

// CommentPage is one page of comments. The comments endpoint pages through
// an XML report body instead of query parameters, so it carries its own
// page walker with the same stepping rules as the JSON lists.
type CommentPage struct {
	URI     string
	Request nextcloud.ListRequest
	Items   []Comment
}

// Comments fetches the first page of a file's comments.
func Comments(ctx context.Context, c *nextcloud.Client, fileID string, req *nextcloud.ListRequest) (*CommentPage, error) {
	if req == nil {
		req = nextcloud.NewListRequest()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return fetchComments(ctx, c, nextcloud.Combine(commentsRoot, fileID), *req)
}

func fetchComments(ctx context.Context, c *nextcloud.Client, uri string, req nextcloud.ListRequest) (*CommentPage, error) {
	body := nextcloud.RawXML(fmt.Sprintf(
		`<?xml version="1.0"?><oc:filter-comments xmlns:oc="http://owncloud.org/ns"><oc:limit>%d</oc:limit><oc:offset>%d</oc:offset></oc:filter-comments>`,
		req.Limit, req.Offset))
	root, err := c.DAV(ctx, nextcloud.MethodReport, uri, body, nil)
	if err != nil {
		return nil, err
	}
	responses := root.Children("response")
	items := make([]Comment, 0, len(responses))
	for _, r := range responses {
		flat := r.Flatten()
		delete(flat, "status")
		comment, err := nextcloud.Decode[Comment](flat)
		if err != nil {
			return nil, err
		}
		items = append(items, comment)
	}
	return &CommentPage{URI: uri, Request: req, Items: items}, nil
}

// Count returns the number of comments on this page.
func (p *CommentPage) Count() int { return len(p.Items) }

// HasMore reports whether another page may exist.
func (p *CommentPage) HasMore() bool {
	return p.Request.Limit > 0 && len(p.Items) == p.Request.Limit
}

// GetNext fetches the following page, or ErrExhausted when this page was
// not full.
func (p *CommentPage) GetNext(ctx context.Context, c *nextcloud.Client) (*CommentPage, error) {
	if !p.HasMore() {
		return nil, nextcloud.ErrExhausted
	}
	req := p.Request
	req.Offset += req.Limit
	return fetchComments(ctx, c, p.URI, req)
}

// All iterates every comment from this page onward, fetching further pages
// lazily.
func (p *CommentPage) All(ctx context.Context, c *nextcloud.Client) iter.Seq2[Comment, error] {
	return func(yield func(Comment, error) bool) {
		page := p
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
				yield(Comment{}, err)
				return
			}
			page = next
		}
	}
}
