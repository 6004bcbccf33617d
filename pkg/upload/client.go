// Package upload implements the image-field upload pipeline: a multipart
// transport client and the per-field record manager that tracks every file's
// lifecycle from selection to a server-assigned path.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/CalistaF0X/basetable/pkg/dom"
)

// Discriminator identifies toolkit uploads to the endpoint, sent as a fixed
// form field alongside the file and category.
const (
	discriminatorField = "source"
	discriminatorValue = "basetable"
)

// pathKeys are probed in order in the endpoint's JSON response for the
// stored location.
var pathKeys = []string{"path", "url", "filePath", "filename", "file"}

// Transport sends one file and resolves its server-assigned path. The
// production implementation is Client; tests substitute their own.
type Transport interface {
	Upload(ctx context.Context, file dom.File, category string) (string, error)
}

// Client posts multipart payloads to a host-supplied endpoint.
type Client struct {
	Endpoint string
	HTTP     *http.Client
}

// NewClient constructs a transport client for the endpoint. A nil httpClient
// falls back to http.DefaultClient.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{Endpoint: endpoint, HTTP: httpClient}
}

// Upload sends the file and returns the stored path from the response. A
// non-2xx status, a malformed body or a response without a recognised path
// key is an upload failure.
func (c *Client) Upload(ctx context.Context, file dom.File, category string) (string, error) {
	if strings.TrimSpace(c.Endpoint) == "" {
		return "", fmt.Errorf("upload: endpoint not configured")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return "", fmt.Errorf("upload: build payload: %w", err)
	}
	if _, err := part.Write(file.Content); err != nil {
		return "", fmt.Errorf("upload: build payload: %w", err)
	}
	if err := writer.WriteField("category", category); err != nil {
		return "", fmt.Errorf("upload: build payload: %w", err)
	}
	if err := writer.WriteField(discriminatorField, discriminatorValue); err != nil {
		return "", fmt.Errorf("upload: build payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("upload: build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("upload: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload: endpoint returned %s", resp.Status)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("upload: read response: %w", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("upload: decode response: %w", err)
	}
	for _, key := range pathKeys {
		if v, ok := decoded[key]; ok {
			if path, isString := v.(string); isString && strings.TrimSpace(path) != "" {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("upload: response has no stored path")
}
