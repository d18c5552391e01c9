// Package webdav implements the small slice of WebDAV that the compute
// service's file store speaks: collection creation, binary upload and
// download, recursive listing, and deletion.
//
// All methods take full URLs. The file store is authoritative; nothing is
// cached and no request is retried.
package webdav

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"cwlclient/pkg/apperrors"
)

// Client issues WebDAV requests against a file store.
type Client struct {
	http *http.Client
}

// NewClient creates a WebDAV client. A nil httpClient uses
// http.DefaultClient.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient}
}

// Entry is one member of a listed collection.
type Entry struct {
	URL          string // Full URL of the entry
	IsCollection bool
}

// Mkcol creates a collection. A 405 or 409 response means the collection
// already exists and maps to the conflict class.
func (c *Client) Mkcol(ctx context.Context, dirURL string) error {
	resp, err := c.do(ctx, "MKCOL", dirURL, nil, nil)
	if err != nil {
		return apperrors.Communication("webdav.Mkcol", dirURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.FromStatus("webdav.Mkcol", "collection", dirURL, resp.StatusCode)
	}
	return nil
}

// Put uploads the contents of r to fileURL, overwriting any existing file.
func (c *Client) Put(ctx context.Context, fileURL string, r io.Reader) error {
	headers := map[string]string{"Content-Type": "application/octet-stream"}
	resp, err := c.do(ctx, http.MethodPut, fileURL, r, headers)
	if err != nil {
		return apperrors.Communication("webdav.Put", fileURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.Communication("webdav.Put", fileURL, resp.StatusCode, nil)
	}
	slog.Debug("Uploaded file", "url", fileURL)
	return nil
}

// Get downloads fileURL and returns its raw bytes plus the declared
// Content-Type. A 404 maps to the not-found class.
func (c *Client) Get(ctx context.Context, fileURL string) ([]byte, string, error) {
	resp, err := c.do(ctx, http.MethodGet, fileURL, nil, nil)
	if err != nil {
		return nil, "", apperrors.Communication("webdav.Get", fileURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", apperrors.FromStatus("webdav.Get", "file", fileURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperrors.Communication("webdav.Get", fileURL, 0, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// GetText downloads fileURL and decodes it using the charset the server
// declares in Content-Type. UTF-8 is assumed when no charset is declared.
func (c *Client) GetText(ctx context.Context, fileURL string) (string, error) {
	data, contentType, err := c.Get(ctx, fileURL)
	if err != nil {
		return "", err
	}
	return DecodeText(data, contentType), nil
}

// DecodeText converts raw bytes to a string honoring the charset parameter
// of a Content-Type header. Latin-1 is mapped byte-for-byte to code points;
// everything else is treated as UTF-8.
func DecodeText(data []byte, contentType string) string {
	charset := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			charset = strings.ToLower(params["charset"])
		}
	}

	switch charset {
	case "iso-8859-1", "latin-1", "latin1":
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		return string(runes)
	default:
		return string(data)
	}
}

// Delete removes a single file or empty collection.
func (c *Client) Delete(ctx context.Context, entryURL string) error {
	resp, err := c.do(ctx, http.MethodDelete, entryURL, nil, nil)
	if err != nil {
		return apperrors.Communication("webdav.Delete", entryURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.FromStatus("webdav.Delete", "file", entryURL, resp.StatusCode)
	}
	return nil
}

// List returns all entries below dirURL, at any depth. The collection itself
// is not included.
func (c *Client) List(ctx context.Context, dirURL string) ([]Entry, error) {
	body := strings.NewReader(
		`<?xml version="1.0" encoding="utf-8"?><propfind xmlns="DAV:"><prop><resourcetype/></prop></propfind>`)
	headers := map[string]string{
		"Depth":        "infinity",
		"Content-Type": "application/xml",
	}
	resp, err := c.do(ctx, "PROPFIND", dirURL, body, headers)
	if err != nil {
		return nil, apperrors.Communication("webdav.List", dirURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, apperrors.FromStatus("webdav.List", "collection", dirURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Communication("webdav.List", dirURL, 0, err)
	}
	return parseMultistatus(raw, dirURL)
}

// RemoveTree deletes a collection and everything below it. Children are
// removed before parents (deepest paths first) because the file store
// refuses to delete non-empty collections.
func (c *Client) RemoveTree(ctx context.Context, dirURL string) error {
	entries, err := c.List(ctx, dirURL)
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool {
		di := strings.Count(entries[i].URL, "/")
		dj := strings.Count(entries[j].URL, "/")
		if di != dj {
			return di > dj
		}
		return len(entries[i].URL) > len(entries[j].URL)
	})

	for _, entry := range entries {
		if err := c.Delete(ctx, entry.URL); err != nil {
			return err
		}
	}
	return c.Delete(ctx, dirURL)
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.http.Do(req)
}

// multistatus mirrors the DAV:multistatus response document.
type multistatus struct {
	XMLName   xml.Name   `xml:"DAV: multistatus"`
	Responses []response `xml:"response"`
}

type response struct {
	Href     string     `xml:"href"`
	Propstat []propstat `xml:"propstat"`
}

type propstat struct {
	Prop prop `xml:"prop"`
}

type prop struct {
	ResourceType resourceType `xml:"resourcetype"`
}

type resourceType struct {
	Collection *struct{} `xml:"collection"`
}

func parseMultistatus(raw []byte, dirURL string) ([]Entry, error) {
	var ms multistatus
	if err := xml.Unmarshal(raw, &ms); err != nil {
		return nil, apperrors.Communication("webdav.List", dirURL, 0, fmt.Errorf("parsing multistatus: %w", err))
	}

	base, err := url.Parse(dirURL)
	if err != nil {
		return nil, apperrors.Communication("webdav.List", dirURL, 0, err)
	}

	var entries []Entry
	for _, r := range ms.Responses {
		href, err := url.Parse(strings.TrimSpace(r.Href))
		if err != nil {
			continue
		}
		abs := base.ResolveReference(href)

		// Skip the listed collection itself.
		if strings.TrimSuffix(abs.Path, "/") == strings.TrimSuffix(base.Path, "/") {
			continue
		}

		isCollection := false
		for _, ps := range r.Propstat {
			if ps.Prop.ResourceType.Collection != nil {
				isCollection = true
			}
		}
		entries = append(entries, Entry{URL: abs.String(), IsCollection: isCollection})
	}
	return entries, nil
}
