package ocs

import (
	"context"

	nextcloud "github.com/custodia-labs/nextcloud-go"
)

const groupsPath = "ocs/v1.php/cloud/groups"

// ListGroups returns a page of group ids.
func ListGroups(ctx context.Context, c *nextcloud.Client, req *nextcloud.ListRequest) (*nextcloud.List[string], error) {
	return nextcloud.GetList[string](ctx, c, groupsPath, "ocs.data.groups", req)
}

// CreateGroup creates a group.
func CreateGroup(ctx context.Context, c *nextcloud.Client, groupID string) error {
	_, err := c.Post(ctx, groupsPath, nil, map[string]any{"groupid": groupID})
	return err
}

// GroupMembers returns a page of the account ids in a group.
func GroupMembers(ctx context.Context, c *nextcloud.Client, groupID string, req *nextcloud.ListRequest) (*nextcloud.List[string], error) {
	return nextcloud.GetList[string](ctx, c, nextcloud.Combine(groupsPath, groupID), "ocs.data.users", req)
}

// GroupSubadmins returns a page of the subadmin account ids of a group.
func GroupSubadmins(ctx context.Context, c *nextcloud.Client, groupID string, req *nextcloud.ListRequest) (*nextcloud.List[string], error) {
	return nextcloud.GetList[string](ctx, c, nextcloud.Combine(groupsPath, groupID, "subadmins"), "ocs.data", req)
}

// DeleteGroup removes a group.
func DeleteGroup(ctx context.Context, c *nextcloud.Client, groupID string) error {
	_, err := c.Delete(ctx, nextcloud.Combine(groupsPath, groupID), nil)
	return err
}
