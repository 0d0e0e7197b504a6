package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	// Signing scheme identifier
	algorithm = "DK1-HMAC-SHA256"

	// Query parameter names
	paramAlgorithm = "X-Dk-Algorithm"
	paramDate      = "X-Dk-Date"
	paramExpires   = "X-Dk-Expires"
	paramSignature = "X-Dk-Signature"

	timeFormat = "20060102T150405Z"

	// Maximum expiration time (7 days)
	maxExpiration = 604800
)

// SignParams contains parameters for generating a signed URL
type SignParams struct {
	Endpoint   string // Base URL (e.g., "http://localhost:8080")
	Path       string // URL path to sign (e.g., "/d/user-1/report.pdf")
	SigningKey string // Shared HMAC key
	ExpiresIn  int64  // Expiration time in seconds (max 604800)
}

// SignURL generates a time-limited HMAC-signed URL for the given path.
func SignURL(params SignParams) (string, error) {
	if params.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	if params.SigningKey == "" {
		return "", fmt.Errorf("signing key is required")
	}
	if params.ExpiresIn <= 0 {
		params.ExpiresIn = 3600 // Default: 1 hour
	}
	if params.ExpiresIn > maxExpiration {
		return "", fmt.Errorf("expiration time cannot exceed %d seconds (7 days)", maxExpiration)
	}

	if !strings.HasPrefix(params.Path, "/") {
		params.Path = "/" + params.Path
	}

	now := time.Now().UTC()
	dkDate := now.Format(timeFormat)

	queryParams := map[string]string{
		paramAlgorithm: algorithm,
		paramDate:      dkDate,
		paramExpires:   fmt.Sprintf("%d", params.ExpiresIn),
	}

	canonicalQuery := buildCanonicalQueryString(queryParams)
	stringToSign := buildStringToSign("GET", params.Path, canonicalQuery, dkDate)
	signature := hex.EncodeToString(hmacSHA256([]byte(params.SigningKey), []byte(stringToSign)))

	queryParams[paramSignature] = signature
	finalQuery := buildCanonicalQueryString(queryParams)

	endpoint := strings.TrimSuffix(params.Endpoint, "/")
	return fmt.Sprintf("%s%s?%s", endpoint, encodePath(params.Path), finalQuery), nil
}

func buildStringToSign(method, path, canonicalQuery, date string) string {
	return fmt.Sprintf("%s\n%s\n%s\n%s", method, path, canonicalQuery, date)
}

// buildCanonicalQueryString builds a canonical query string from parameters
func buildCanonicalQueryString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", url.QueryEscape(k), url.QueryEscape(params[k])))
	}

	return strings.Join(parts, "&")
}

// encodePath escapes each path segment while preserving separators
func encodePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// hmacSHA256 calculates HMAC-SHA256
func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
