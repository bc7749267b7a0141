package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// Upload is a file to send in a single multipart request.
type Upload struct {
	Name     string
	MimeType string
	Content  io.Reader
}

// UploadFile uploads f under parentID. onProgress, when set, receives 0 before
// the request, increasing percentages while the body is sent and 100 once Drive
// has accepted the file.
func (c *Client) UploadFile(ctx context.Context, userID string, f Upload, parentID string, onProgress func(int)) Result[*File] {
	if strings.TrimSpace(f.Name) == "" {
		return fail[*File](fmt.Errorf("%w: file name is required", ErrInvalidArgument))
	}
	if f.Content == nil {
		return fail[*File](fmt.Errorf("%w: file content is required", ErrInvalidArgument))
	}
	if f.MimeType == "" {
		f.MimeType = "application/octet-stream"
	}

	body, contentType, err := multipartBody(f, parentID)
	if err != nil {
		return fail[*File](err)
	}

	report := func(int) {}
	if onProgress != nil {
		last := -1
		report = func(p int) {
			// Percentages only move forward, even across the retry after a 401.
			if p > last {
				last = p
				onProgress(p)
			}
		}
	}
	report(0)

	var uploaded File
	err = c.do(ctx, userID, request{
		method:      http.MethodPost,
		url:         c.uploadURL + "/files?" + url.Values{"uploadType": {"multipart"}, "fields": {fileFields}}.Encode(),
		endpoint:    "files.upload",
		body:        body,
		contentType: contentType,
		progress: func(p int) {
			// 100 is reserved for the provider's acknowledgement.
			if p > 99 {
				p = 99
			}
			report(p)
		},
	}, &uploaded)
	if err != nil {
		return fail[*File](err)
	}
	report(100)
	return ok(&uploaded)
}

// multipartBody builds a multipart/related body: JSON metadata, then the content.
func multipartBody(f Upload, parentID string) ([]byte, string, error) {
	meta := map[string]any{"name": f.Name, "mimeType": f.MimeType}
	if parentID != "" {
		meta["parents"] = []string{parentID}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(metaJSON); err != nil {
		return nil, "", err
	}

	part, err = w.CreatePart(textproto.MIMEHeader{"Content-Type": {f.MimeType}})
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f.Content); err != nil {
		return nil, "", fmt.Errorf("failed to read upload content: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/related; boundary=" + w.Boundary(), nil
}

// progressReader reports how much of the body has been read as a percentage.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		p.report(int(p.read * 100 / p.total))
	}
	return n, err
}

