package common

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DownloadTimeout is the timeout for downloading content from a URL
const DownloadTimeout = 10 * time.Second

// MaxDownloadSize caps the size of a downloaded configuration document
const MaxDownloadSize = 1 << 20

// SupportedContentTypes lists the content types accepted for remote configuration
var SupportedContentTypes = []string{
	"text/",              // All text/* types
	"application/yaml",   // YAML
	"application/x-yaml", // Alternative YAML
	"application/json",   // JSON is valid YAML
	"application/octet-stream",
}

// IsURL reports whether location is an http or https URL
func IsURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// FetchURLText downloads a text document, such as a configuration file.
//
// Parameters:
//   - url: The http or https URL to fetch
//
// Returns:
//   - The document body
//   - An error if the request fails, the status is not 2xx, the content type
//     is not text-like, or the body exceeds MaxDownloadSize
func FetchURLText(url string) ([]byte, error) {
	client := &http.Client{
		Timeout: DownloadTimeout,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP request returned non-success status: %s", resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isTextContentType(contentType) {
		return nil, fmt.Errorf("unsupported content type: %s - only text formats are supported", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxDownloadSize {
		return nil, fmt.Errorf("document at %s is larger than %d bytes", url, MaxDownloadSize)
	}

	return body, nil
}

// isTextContentType checks if a Content-Type header represents a text format
func isTextContentType(contentType string) bool {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" {
		return true
	}

	for _, supported := range SupportedContentTypes {
		if supported == contentType || (strings.HasSuffix(supported, "/") && strings.HasPrefix(contentType, supported)) {
			return true
		}
	}

	return false
}
