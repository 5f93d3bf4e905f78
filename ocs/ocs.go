// Package ocs wraps the server's JSON/OCS REST surface: users, groups,
// shares and group folders. Every payload arrives wrapped in an "ocs"
// envelope whose meta block carries the protocol-level status.
package ocs

import (
	"context"

	nextcloud "github.com/custodia-labs/nextcloud-go"
)

// Meta is the status block of an OCS response.
type Meta struct {
	Status       string `json:"status"`
	StatusCode   int    `json:"statuscode"`
	Message      string `json:"message"`
	TotalItems   string `json:"totalitems"`
	ItemsPerPage string `json:"itemsperpage"`
}

// Entry is a full OCS response with an object payload.
type Entry struct {
	Meta Meta           `json:"meta"`
	Data map[string]any `json:"data"`
}

// getData fetches path and returns the ocs.data object.
func getData(ctx context.Context, c *nextcloud.Client, path string) (map[string]any, error) {
	env, err := c.Get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	entry, err := nextcloud.Decode[Entry](env.Lookup("ocs"))
	if err != nil {
		return nil, err
	}
	return entry.Data, nil
}

// postData posts body to path and returns the ocs.data object.
func postData(ctx context.Context, c *nextcloud.Client, path string, body any) (map[string]any, error) {
	env, err := c.Post(ctx, path, nil, body)
	if err != nil {
		return nil, err
	}
	entry, err := nextcloud.Decode[Entry](env.Lookup("ocs"))
	if err != nil {
		return nil, err
	}
	return entry.Data, nil
}
