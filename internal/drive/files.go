package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// CreateFolder creates a folder under parentID, or at the Drive root when parentID is empty.
func (c *Client) CreateFolder(ctx context.Context, userID, name, parentID string) Result[*File] {
	name = strings.TrimSpace(name)
	if name == "" {
		return fail[*File](fmt.Errorf("%w: folder name is required", ErrInvalidArgument))
	}

	meta := map[string]any{"name": name, "mimeType": FolderMimeType}
	if parentID != "" {
		meta["parents"] = []string{parentID}
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return fail[*File](err)
	}

	var folder File
	err = c.do(ctx, userID, request{
		method:      http.MethodPost,
		url:         c.fileURL("", url.Values{"fields": {fileFields}}),
		endpoint:    "files.create",
		body:        body,
		contentType: "application/json",
	}, &folder)
	if err != nil {
		return fail[*File](err)
	}
	return ok(&folder)
}

// ListFiles lists non-trashed files, inside folderID when given.
func (c *Client) ListFiles(ctx context.Context, userID, folderID string, pageSize int, pageToken string) Result[*FileList] {
	q := "trashed = false"
	if folderID != "" {
		q = fmt.Sprintf("'%s' in parents and %s", escapeQuery(folderID), q)
	}
	return c.list(ctx, userID, q, pageSize, pageToken)
}

// SearchFiles finds non-trashed files whose name contains query.
func (c *Client) SearchFiles(ctx context.Context, userID, query string, pageSize int, pageToken string) Result[*FileList] {
	query = strings.TrimSpace(query)
	if query == "" {
		return fail[*FileList](fmt.Errorf("%w: search query is required", ErrInvalidArgument))
	}
	q := fmt.Sprintf("name contains '%s' and trashed = false", escapeQuery(query))
	return c.list(ctx, userID, q, pageSize, pageToken)
}

func (c *Client) list(ctx context.Context, userID, q string, pageSize int, pageToken string) Result[*FileList] {
	var page FileList
	err := c.do(ctx, userID, request{
		method:   http.MethodGet,
		url:      c.fileURL("", pageQuery(q, pageSize, pageToken)),
		endpoint: "files.list",
	}, &page)
	if err != nil {
		return fail[*FileList](err)
	}
	if page.Files == nil {
		page.Files = []File{}
	}
	return ok(&page)
}

// escapeQuery escapes a literal for a Drive query string.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// GetFileInfo returns a file's metadata.
func (c *Client) GetFileInfo(ctx context.Context, userID, fileID string) Result[*File] {
	if fileID == "" {
		return fail[*File](fmt.Errorf("%w: file id is required", ErrInvalidArgument))
	}
	var f File
	err := c.do(ctx, userID, request{
		method:   http.MethodGet,
		url:      c.fileURL(fileID, url.Values{"fields": {fileFields}}),
		endpoint: "files.get",
	}, &f)
	if err != nil {
		return fail[*File](err)
	}
	return ok(&f)
}

// DeleteFile permanently deletes a file or folder.
func (c *Client) DeleteFile(ctx context.Context, userID, fileID string) Result[Empty] {
	if fileID == "" {
		return fail[Empty](fmt.Errorf("%w: file id is required", ErrInvalidArgument))
	}
	err := c.do(ctx, userID, request{
		method:   http.MethodDelete,
		url:      c.fileURL(fileID, nil),
		endpoint: "files.delete",
	}, nil)
	if err != nil {
		return fail[Empty](err)
	}
	return ok(Empty{})
}

// ShareFolder grants role to anyone with the link and returns that link.
func (c *Client) ShareFolder(ctx context.Context, userID, folderID, role string) Result[*ShareLink] {
	if folderID == "" {
		return fail[*ShareLink](fmt.Errorf("%w: folder id is required", ErrInvalidArgument))
	}
	if role == "" {
		role = RoleReader
	}
	if !validRole(role) {
		return fail[*ShareLink](fmt.Errorf("%w: unsupported role %q", ErrInvalidArgument, role))
	}

	body, err := json.Marshal(map[string]string{"role": role, "type": "anyone"})
	if err != nil {
		return fail[*ShareLink](err)
	}
	err = c.do(ctx, userID, request{
		method:      http.MethodPost,
		url:         c.baseURL + "/files/" + url.PathEscape(folderID) + "/permissions",
		endpoint:    "permissions.create",
		body:        body,
		contentType: "application/json",
	}, nil)
	if err != nil {
		return fail[*ShareLink](err)
	}

	var f File
	err = c.do(ctx, userID, request{
		method:   http.MethodGet,
		url:      c.fileURL(folderID, url.Values{"fields": {"id,webViewLink"}}),
		endpoint: "files.get",
	}, &f)
	if err != nil {
		return fail[*ShareLink](err)
	}
	return ok(&ShareLink{FileID: folderID, Role: role, URL: f.WebViewLink})
}

// FolderRequest names one folder to create. Key is echoed back so callers can
// map outcomes to their own records.
type FolderRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// FolderOutcome is the per-request result of BulkCreateFolders.
type FolderOutcome struct {
	Key    string        `json:"key"`
	Name   string        `json:"name"`
	Result Result[*File] `json:"result"`
}

// BulkCreateFolders creates the folders one after another. A failure is
// recorded for that request and the loop continues.
func (c *Client) BulkCreateFolders(ctx context.Context, userID, parentID string, reqs []FolderRequest) []FolderOutcome {
	out := make([]FolderOutcome, 0, len(reqs))
	for _, req := range reqs {
		o := FolderOutcome{Key: req.Key, Name: req.Name}
		if err := ctx.Err(); err != nil {
			o.Result = fail[*File](err)
		} else {
			o.Result = c.CreateFolder(ctx, userID, req.Name, parentID)
		}
		out = append(out, o)
	}
	return out
}
