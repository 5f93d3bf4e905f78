package ocs

import (
	"context"
	"time"

	nextcloud "github.com/custodia-labs/nextcloud-go"
)

const usersPath = "ocs/v1.php/cloud/users"

// Quota is a user's storage quota as reported by the server.
type Quota struct {
	Free     int64   `json:"free"`
	Used     int64   `json:"used"`
	Total    int64   `json:"total"`
	Relative float64 `json:"relative"`
	Quota    int64   `json:"quota"`
}

// User is a server account.
type User struct {
	Enabled         bool      `json:"enabled"`
	StorageLocation string    `json:"storageLocation"`
	ID              string    `json:"id"`
	LastLogin       time.Time `json:"lastLogin"`
	Backend         string    `json:"backend"`
	Groups          []string  `json:"groups"`
	Subadmin        []string  `json:"subadmin"`
	Quota           Quota     `json:"quota"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"displayname"`
	Phone           string    `json:"phone"`
	Address         string    `json:"address"`
	Website         string    `json:"website"`
	Twitter         string    `json:"twitter"`
	Language        string    `json:"language"`
	Locale          string    `json:"locale"`
}

// UserInfo is the payload for creating an account.
type UserInfo struct {
	UserID      string   `json:"userid"`
	Password    string   `json:"password,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
	Email       string   `json:"email,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	Subadmin    []string `json:"subadmin,omitempty"`
	Quota       string   `json:"quota,omitempty"`
	Language    string   `json:"language,omitempty"`
}

// UserUpdate carries the mutable account fields for UpdateUser. Empty
// fields are left unchanged on the server.
type UserUpdate struct {
	Email       string `json:"email,omitempty"`
	Quota       string `json:"quota,omitempty"`
	DisplayName string `json:"displayname,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Website     string `json:"website,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
	Password    string `json:"password,omitempty"`
}

// ListUsers returns a page of account ids.
func ListUsers(ctx context.Context, c *nextcloud.Client, req *nextcloud.ListRequest) (*nextcloud.List[string], error) {
	return nextcloud.GetList[string](ctx, c, usersPath, "ocs.data.users", req)
}

// GetUser fetches one account. An empty userID means the authenticated
// user.
func GetUser(ctx context.Context, c *nextcloud.Client, userID string) (*User, error) {
	if userID == "" {
		userID = c.Settings().User
	}
	if userID == "" {
		userID = c.Settings().Username
	}
	data, err := getData(ctx, c, nextcloud.Combine(usersPath, userID))
	if err != nil {
		return nil, err
	}
	user, err := nextcloud.Decode[User](data)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates an account.
func CreateUser(ctx context.Context, c *nextcloud.Client, info UserInfo) error {
	_, err := c.Post(ctx, usersPath, nil, info)
	return err
}

// UpdateUser changes account fields.
func UpdateUser(ctx context.Context, c *nextcloud.Client, userID string, update UserUpdate) error {
	_, err := c.Put(ctx, nextcloud.Combine(usersPath, userID), nil, update)
	return err
}

// EnableUser re-enables a disabled account.
func EnableUser(ctx context.Context, c *nextcloud.Client, userID string) error {
	_, err := c.Put(ctx, nextcloud.Combine(usersPath, userID, "enable"), nil, nil)
	return err
}

// DisableUser disables an account.
func DisableUser(ctx context.Context, c *nextcloud.Client, userID string) error {
	_, err := c.Put(ctx, nextcloud.Combine(usersPath, userID, "disable"), nil, nil)
	return err
}

// DeleteUser removes an account.
func DeleteUser(ctx context.Context, c *nextcloud.Client, userID string) error {
	_, err := c.Delete(ctx, nextcloud.Combine(usersPath, userID), nil)
	return err
}

// UserGroups returns a page of the groups an account belongs to.
func UserGroups(ctx context.Context, c *nextcloud.Client, userID string, req *nextcloud.ListRequest) (*nextcloud.List[string], error) {
	return nextcloud.GetList[string](ctx, c, nextcloud.Combine(usersPath, userID, "groups"), "ocs.data.groups", req)
}

// AddUserToGroup puts an account into a group.
func AddUserToGroup(ctx context.Context, c *nextcloud.Client, userID, groupID string) error {
	_, err := c.Post(ctx, nextcloud.Combine(usersPath, userID, "groups"), nil, map[string]any{"groupid": groupID})
	return err
}

// RemoveUserFromGroup takes an account out of a group.
func RemoveUserFromGroup(ctx context.Context, c *nextcloud.Client, userID, groupID string) error {
	_, err := c.Delete(ctx, nextcloud.Combine(usersPath, userID, "groups"), map[string]any{"groupid": groupID})
	return err
}

// PromoteSubadmin makes an account a subadmin of a group.
func PromoteSubadmin(ctx context.Context, c *nextcloud.Client, userID, groupID string) error {
	_, err := c.Post(ctx, nextcloud.Combine(usersPath, userID, "subadmins"), nil, map[string]any{"groupid": groupID})
	return err
}

// DemoteSubadmin removes an account's subadmin role for a group.
func DemoteSubadmin(ctx context.Context, c *nextcloud.Client, userID, groupID string) error {
	_, err := c.Delete(ctx, nextcloud.Combine(usersPath, userID, "subadmins"), map[string]any{"groupid": groupID})
	return err
}

// SubadminGroups returns a page of the groups an account administers.
func SubadminGroups(ctx context.Context, c *nextcloud.Client, userID string, req *nextcloud.ListRequest) (*nextcloud.List[string], error) {
	return nextcloud.GetList[string](ctx, c, nextcloud.Combine(usersPath, userID, "subadmins"), "ocs.data", req)
}

// ResendWelcomeEmail resends the onboarding email.
func ResendWelcomeEmail(ctx context.Context, c *nextcloud.Client, userID string) error {
	_, err := c.Post(ctx, nextcloud.Combine(usersPath, userID, "welcome"), nil, nil)
	return err
}
