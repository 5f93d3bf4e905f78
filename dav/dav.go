// Package dav wraps the server's WebDAV surface: file and folder
// properties, uploads and downloads, favorites and comments. Responses are
// multistatus XML documents; their property blocks are flattened by local
// name and decoded into the same typed model the JSON surface uses.
package dav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	nextcloud "github.com/custodia-labs/nextcloud-go"
)

const filesRoot = "remote.php/dav/files"

// Props selects which properties a PROPFIND or REPORT asks for.
type Props int

const (
	PropLastModified Props = 1 << iota
	PropTag
	PropType
	PropLength
	PropID
	PropFileID
	PropFavorite
	PropCommentsHref
	PropCommentsCount
	PropCommentsUnread
	PropOwnerID
	PropOwnerDisplayName
	PropShareTypes
	PropChecksums
	PropHasPreview
	PropSize
	PropQuotaUsed
	PropQuotaAvailable

	// PropsBasic is what the server reports when asked for nothing in
	// particular.
	PropsBasic = PropLastModified | PropTag | PropType | PropLength | PropQuotaUsed | PropQuotaAvailable

	PropsAll = PropQuotaAvailable<<1 - 1
)

// davProp maps a Props bit to its element name and namespace prefix.
type davProp struct {
	flag  Props
	space string
	local string
}

var davProps = []davProp{
	{PropLastModified, "d", "getlastmodified"},
	{PropTag, "d", "getetag"},
	{PropType, "d", "getcontenttype"},
	{PropLength, "d", "getcontentlength"},
	{PropID, "oc", "id"},
	{PropFileID, "oc", "fileid"},
	{PropFavorite, "oc", "favorite"},
	{PropCommentsHref, "oc", "comments-href"},
	{PropCommentsCount, "oc", "comments-count"},
	{PropCommentsUnread, "oc", "comments-unread"},
	{PropOwnerID, "oc", "owner-id"},
	{PropOwnerDisplayName, "oc", "owner-display-name"},
	{PropShareTypes, "oc", "share-types"},
	{PropChecksums, "oc", "checksums"},
	{PropHasPreview, "oc", "has-preview"},
	{PropSize, "oc", "size"},
	{PropQuotaUsed, "d", "quota-used-bytes"},
	{PropQuotaAvailable, "d", "quota-available-bytes"},
}

// propElements renders the requested property elements. resourcetype is
// always included; it is how a folder is told apart from a file.
func (p Props) propElements() string {
	var sb strings.Builder
	sb.WriteString("<d:resourcetype/>")
	for _, dp := range davProps {
		if p&dp.flag != 0 {
			fmt.Fprintf(&sb, "<%s:%s/>", dp.space, dp.local)
		}
	}
	return sb.String()
}

// propfindBody renders a full propfind document, or nil for PropsBasic so
// the server applies its default property set.
func propfindBody(p Props) nextcloud.RawXML {
	if p == PropsBasic {
		return nil
	}
	doc := fmt.Sprintf(
		`<?xml version="1.0"?><d:propfind xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns"><d:prop>%s</d:prop></d:propfind>`,
		p.propElements())
	return nextcloud.RawXML(doc)
}

// FilePath converts a cloud file path (starting with the owner's user id)
// into the DAV URI path. Backslashes are normalized; dot segments and
// empty segments are rejected so a path can never escape the files root.
func FilePath(path string) (string, error) {
	path = strings.ReplaceAll(path, `\`, "/")
	path = strings.TrimLeft(path, "/")
	for _, seg := range strings.Split(strings.TrimSuffix(path, "/"), "/") {
		if seg == "" || strings.Trim(seg, ".") == "" {
			return "", &nextcloud.ValidationError{Message: fmt.Sprintf("invalid path %q", path)}
		}
	}
	return filesRoot + "/" + path, nil
}

// Info holds the flattened DAV properties of one file or folder.
type Info struct {
	Path           string    `json:"href"`
	LastModified   time.Time `json:"getlastmodified"`
	Tag            string    `json:"getetag"`
	Type           string    `json:"getcontenttype"`
	Length         int64     `json:"getcontentlength"`
	ID             string    `json:"id"`
	FileID         string    `json:"fileid"`
	Favorite       int       `json:"favorite"`
	CommentsHref   string    `json:"comments-href"`
	CommentsCount  int       `json:"comments-count"`
	CommentsUnread int       `json:"comments-unread"`
	OwnerID        string    `json:"owner-id"`
	OwnerName      string    `json:"owner-display-name"`
	HasPreview     bool      `json:"has-preview"`
	Size           int64     `json:"size"`
	QuotaUsed      int64     `json:"quota-used-bytes"`
	QuotaAvailable int64     `json:"quota-available-bytes"`

	// Folder is true when the resource type contains a collection marker.
	Folder bool `json:"-"`
}

// infoFromNode flattens one multistatus response element into an Info.
func infoFromNode(n *nextcloud.XMLNode) (Info, error) {
	flat := n.Flatten()
	_, isFolder := flat["collection"]
	delete(flat, "collection")
	delete(flat, "status")
	info, err := nextcloud.Decode[Info](flat)
	if err != nil {
		return Info{}, err
	}
	info.Folder = isFolder
	return info, nil
}

func infosFromMultistatus(root *nextcloud.XMLNode) ([]Info, error) {
	responses := root.Children("response")
	out := make([]Info, 0, len(responses))
	for _, r := range responses {
		info, err := infoFromNode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// GetProperties fetches the properties of one file or folder.
func GetProperties(ctx context.Context, c *nextcloud.Client, path string, props Props) (*Info, error) {
	uri, err := FilePath(path)
	if err != nil {
		return nil, err
	}
	root, err := c.DAV(ctx, nextcloud.MethodPropfind, uri, propfindBody(props), map[string]string{"Depth": "0"})
	if err != nil {
		return nil, err
	}
	infos, err := infosFromMultistatus(root)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, &nextcloud.APIError{StatusCode: 404, Message: "no properties returned for " + path}
	}
	return &infos[0], nil
}

// ListFolder lists a folder's entries, the folder itself first. maxDepth
// below zero leaves the Depth header to the server default.
func ListFolder(ctx context.Context, c *nextcloud.Client, path string, props Props, maxDepth int) ([]Info, error) {
	uri, err := FilePath(path)
	if err != nil {
		return nil, err
	}
	var headers map[string]string
	if maxDepth >= 0 {
		headers = map[string]string{"Depth": strconv.Itoa(maxDepth)}
	}
	root, err := c.DAV(ctx, nextcloud.MethodPropfind, uri, propfindBody(props), headers)
	if err != nil {
		return nil, err
	}
	return infosFromMultistatus(root)
}

// Mkdir creates a folder.
func Mkdir(ctx context.Context, c *nextcloud.Client, path string) error {
	uri, err := FilePath(path)
	if err != nil {
		return err
	}
	_, err = c.DAV(ctx, nextcloud.MethodMkcol, uri, nil, nil)
	return err
}

// Delete removes a file or folder.
func Delete(ctx context.Context, c *nextcloud.Client, path string) error {
	uri, err := FilePath(path)
	if err != nil {
		return err
	}
	_, err = c.DAV(ctx, http.MethodDelete, uri, nil, nil)
	return err
}

// Move renames or moves a file or folder.
func Move(ctx context.Context, c *nextcloud.Client, source, dest string) error {
	return relocate(ctx, c, nextcloud.MethodMove, source, dest)
}

// Copy duplicates a file or folder.
func Copy(ctx context.Context, c *nextcloud.Client, source, dest string) error {
	return relocate(ctx, c, nextcloud.MethodCopy, source, dest)
}

func relocate(ctx context.Context, c *nextcloud.Client, method, source, dest string) error {
	srcURI, err := FilePath(source)
	if err != nil {
		return err
	}
	dstURI, err := FilePath(dest)
	if err != nil {
		return err
	}
	headers := map[string]string{"Destination": c.Settings().MakeURI(dstURI)}
	_, err = c.DAV(ctx, method, srcURI, nil, headers)
	return err
}

// Upload streams content to a file path and returns the server-assigned
// file id. The id travels back in the OC-FileId response header.
func Upload(ctx context.Context, c *nextcloud.Client, path string, content io.Reader) (string, error) {
	uri, err := FilePath(path)
	if err != nil {
		return "", err
	}
	root, err := c.DAV(ctx, http.MethodPut, uri, content, nil)
	if err != nil {
		return "", err
	}
	flat := root.Flatten()
	for k, v := range flat {
		if strings.EqualFold(k, "oc-fileid") {
			if s, ok := v.(string); ok {
				return s, nil
			}
		}
	}
	return "", nil
}

// Download opens a file's content stream. The caller closes it.
func Download(ctx context.Context, c *nextcloud.Client, path string) (io.ReadCloser, error) {
	uri, err := FilePath(path)
	if err != nil {
		return nil, err
	}
	return c.Download(ctx, uri)
}

// SetFavorite marks or unmarks a file or folder as favorite.
func SetFavorite(ctx context.Context, c *nextcloud.Client, path string, favorite bool) error {
	uri, err := FilePath(path)
	if err != nil {
		return err
	}
	value := "0"
	if favorite {
		value = "1"
	}
	body := nextcloud.RawXML(fmt.Sprintf(
		`<?xml version="1.0"?><d:propertyupdate xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns"><d:set><d:prop><oc:favorite>%s</oc:favorite></d:prop></d:set></d:propertyupdate>`,
		value))
	_, err = c.DAV(ctx, nextcloud.MethodProppatch, uri, body, nil)
	return err
}

// Favorites lists the favorites under a path via the filter-files report.
func Favorites(ctx context.Context, c *nextcloud.Client, path string, props Props) ([]Info, error) {
	uri, err := FilePath(path)
	if err != nil {
		return nil, err
	}
	var prop string
	if props != PropsBasic {
		prop = "<d:prop>" + props.propElements() + "</d:prop>"
	}
	body := nextcloud.RawXML(fmt.Sprintf(
		`<?xml version="1.0"?><oc:filter-files xmlns:d="DAV:" xmlns:oc="http://owncloud.org/ns"><oc:filter-rules><oc:favorite>1</oc:favorite></oc:filter-rules>%s</oc:filter-files>`,
		prop))
	root, err := c.DAV(ctx, nextcloud.MethodReport, uri, body, nil)
	if err != nil {
		return nil, err
	}
	return infosFromMultistatus(root)
}

// Search runs a caller-built search report against the DAV root.
func Search(ctx context.Context, c *nextcloud.Client, query nextcloud.RawXML) ([]Info, error) {
	root, err := c.DAV(ctx, nextcloud.MethodReport, "remote.php/dav", query, nil)
	if err != nil {
		return nil, err
	}
	return infosFromMultistatus(root)
}
