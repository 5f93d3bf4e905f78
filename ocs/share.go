package ocs

import (
	"context"
	"strconv"

	nextcloud "github.com/custodia-labs/nextcloud-go"
)

const sharesPath = "ocs/v2.php/apps/files_sharing/api/v1/shares"

// Share types.
const (
	ShareTypeUser      = 0
	ShareTypeGroup     = 1
	ShareTypeLink      = 3
	ShareTypeEmail     = 4
	ShareTypeFederated = 6
	ShareTypeCircle    = 7
	ShareTypeTalk      = 10
)

// Share permission bits.
const (
	PermissionRead   = 1
	PermissionUpdate = 2
	PermissionCreate = 4
	PermissionDelete = 8
	PermissionShare  = 16
	PermissionAll    = 31
)

// Share is one share of a file or folder.
type Share struct {
	ID                   string `json:"id"`
	ShareType            int    `json:"share_type"`
	UIDOwner             string `json:"uid_owner"`
	DisplayNameOwner     string `json:"displayname_owner"`
	Permissions          int    `json:"permissions"`
	CanEdit              bool   `json:"can_edit"`
	CanDelete            bool   `json:"can_delete"`
	STime                int64  `json:"stime"`
	Expiration           string `json:"expiration"`
	UIDFileOwner         string `json:"uid_file_owner"`
	Note                 string `json:"note"`
	Label                string `json:"label"`
	DisplayNameFileOwner string `json:"displayname_file_owner"`
	Path                 string `json:"path"`
	ItemType             string `json:"item_type"`
	MimeType             string `json:"mimetype"`
	HasPreview           bool   `json:"has_preview"`
	StorageID            string `json:"storage_id"`
	Storage              int64  `json:"storage"`
	ItemSource           int64  `json:"item_source"`
	FileSource           int64  `json:"file_source"`
	FileParent           int64  `json:"file_parent"`
	FileTarget           string `json:"file_target"`
	ShareWith            string `json:"share_with"`
	ShareWithDisplayName string `json:"share_with_displayname"`
	Password             string `json:"password"`
	SendPasswordByTalk   bool   `json:"send_password_by_talk"`
	URL                  string `json:"url"`
	MailSend             bool   `json:"mail_send"`
	HideDownload         bool   `json:"hide_download"`
}

// ShareCreateInfo is the payload for creating a share.
type ShareCreateInfo struct {
	// Path to the file or folder being shared.
	Path string `json:"path"`

	// ShareType is one of the ShareType constants.
	ShareType int `json:"shareType"`

	// ShareWith is required for user and group shares.
	ShareWith string `json:"shareWith,omitempty"`

	PublicUpload string `json:"publicUpload,omitempty"`
	Password     string `json:"password,omitempty"`

	// ExpireDate in YYYY-MM-DD form.
	ExpireDate string `json:"expireDate,omitempty"`

	// Permissions defaults to read-only for link shares and to all
	// permissions otherwise.
	Permissions int `json:"permissions,omitempty"`
}

// ShareUpdateInfo is the payload for updating a share.
type ShareUpdateInfo struct {
	Permissions  int    `json:"permissions,omitempty"`
	Password     string `json:"password,omitempty"`
	PublicUpload string `json:"publicUpload,omitempty"`
	ExpireDate   string `json:"expireDate,omitempty"`
	Note         string `json:"note,omitempty"`
	HideDownload string `json:"hideDownload,omitempty"`
}

// GetShare fetches one share. The server answers with a one-element array.
func GetShare(ctx context.Context, c *nextcloud.Client, shareID string) (*Share, error) {
	shares, err := nextcloud.GetPlainList[Share](ctx, c, nextcloud.Combine(sharesPath, shareID), "ocs.data", nil)
	if err != nil {
		return nil, err
	}
	if len(shares) == 0 {
		return nil, &nextcloud.APIError{StatusCode: 404, Message: "share " + shareID + " not found"}
	}
	return &shares[0], nil
}

// ListShares returns every share visible to the authenticated user.
func ListShares(ctx context.Context, c *nextcloud.Client) ([]Share, error) {
	return nextcloud.GetPlainList[Share](ctx, c, sharesPath, "ocs.data", nil)
}

// CreateShare creates a share and returns its id.
func CreateShare(ctx context.Context, c *nextcloud.Client, info ShareCreateInfo) (string, error) {
	if info.Permissions == 0 {
		if info.ShareType == ShareTypeLink {
			info.Permissions = PermissionRead
		} else {
			info.Permissions = PermissionAll
		}
	}
	data, err := postData(ctx, c, sharesPath, info)
	if err != nil {
		return "", err
	}
	switch id := data["id"].(type) {
	case string:
		return id, nil
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	default:
		return "", &nextcloud.APIError{Message: "share response carries no id"}
	}
}

// UpdateShare changes share fields.
func UpdateShare(ctx context.Context, c *nextcloud.Client, shareID string, info ShareUpdateInfo) error {
	_, err := c.Put(ctx, nextcloud.Combine(sharesPath, shareID), nil, info)
	return err
}

// DeleteShare removes a share.
func DeleteShare(ctx context.Context, c *nextcloud.Client, shareID string) error {
	_, err := c.Delete(ctx, nextcloud.Combine(sharesPath, shareID), nil)
	return err
}
