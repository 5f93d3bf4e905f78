package ocs

import (
	"context"
	"strconv"

	nextcloud "github.com/custodia-labs/nextcloud-go"
)

const groupFoldersPath = "index.php/apps/groupfolders/folders"

// GroupFolder permission bits, the same scheme as share permissions.
const (
	FolderPermissionRead   = 1
	FolderPermissionUpdate = 2
	FolderPermissionCreate = 4
	FolderPermissionDelete = 8
	FolderPermissionShare  = 16
	FolderPermissionAll    = 31
)

// GroupFolder is a team folder managed by the groupfolders app.
type GroupFolder struct {
	ID         int            `json:"id"`
	MountPoint string         `json:"mount_point"`
	Groups     map[string]any `json:"groups"`
	Quota      int64          `json:"quota"`
	Size       int64          `json:"size"`
	ACL        bool           `json:"acl"`
}

// ListGroupFolders returns every group folder. The endpoint answers with
// an object keyed by folder id rather than an array.
func ListGroupFolders(ctx context.Context, c *nextcloud.Client) ([]GroupFolder, error) {
	return nextcloud.GetPlainCollection[GroupFolder](ctx, c, groupFoldersPath, "ocs.data", nil)
}

// CreateGroupFolder creates a folder mounted at the given name and returns
// its id.
func CreateGroupFolder(ctx context.Context, c *nextcloud.Client, mountPoint string) (int, error) {
	data, err := postData(ctx, c, groupFoldersPath, map[string]any{"mountpoint": mountPoint})
	if err != nil {
		return 0, err
	}
	if data["id"] == nil {
		return 0, &nextcloud.APIError{Message: "group folder response carries no id"}
	}
	id, err := nextcloud.Decode[int](data["id"])
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetGroupFolder fetches one group folder.
func GetGroupFolder(ctx context.Context, c *nextcloud.Client, folderID int) (*GroupFolder, error) {
	data, err := getData(ctx, c, nextcloud.Combine(groupFoldersPath, strconv.Itoa(folderID)))
	if err != nil {
		return nil, err
	}
	folder, err := nextcloud.Decode[GroupFolder](data)
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

// DeleteGroupFolder removes a group folder.
func DeleteGroupFolder(ctx context.Context, c *nextcloud.Client, folderID int) error {
	_, err := c.Delete(ctx, nextcloud.Combine(groupFoldersPath, strconv.Itoa(folderID)), nil)
	return err
}

// AddGroupToFolder grants a group access to a folder.
func AddGroupToFolder(ctx context.Context, c *nextcloud.Client, folderID int, group string) error {
	_, err := c.Post(ctx, nextcloud.Combine(groupFoldersPath, strconv.Itoa(folderID), "groups"), nil, map[string]any{"group": group})
	return err
}

// RemoveGroupFromFolder revokes a group's access to a folder.
func RemoveGroupFromFolder(ctx context.Context, c *nextcloud.Client, folderID int, group string) error {
	_, err := c.Delete(ctx, nextcloud.Combine(groupFoldersPath, strconv.Itoa(folderID), "groups", group), nil)
	return err
}

// SetGroupFolderPermissions sets a group's permission bits on a folder.
func SetGroupFolderPermissions(ctx context.Context, c *nextcloud.Client, folderID int, group string, permissions int) error {
	_, err := c.Post(ctx, nextcloud.Combine(groupFoldersPath, strconv.Itoa(folderID), "groups", group), nil, map[string]any{"permissions": permissions})
	return err
}

// SetGroupFolderQuota sets a folder's quota in bytes; -3 means unlimited.
func SetGroupFolderQuota(ctx context.Context, c *nextcloud.Client, folderID int, quota int64) error {
	_, err := c.Post(ctx, nextcloud.Combine(groupFoldersPath, strconv.Itoa(folderID), "quota"), nil, map[string]any{"quota": quota})
	return err
}

// RenameGroupFolder changes a folder's mount point.
func RenameGroupFolder(ctx context.Context, c *nextcloud.Client, folderID int, mountPoint string) error {
	_, err := c.Post(ctx, nextcloud.Combine(groupFoldersPath, strconv.Itoa(folderID), "mountpoint"), nil, map[string]any{"mountpoint": mountPoint})
	return err
}
