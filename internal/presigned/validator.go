package presigned

import (
	"crypto/hmac"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// ValidateRequest validates a signed URL from an HTTP request.
// Returns true if the signature is intact and the URL has not expired.
func ValidateRequest(r *http.Request, signingKey string) (bool, error) {
	query := r.URL.Query()

	if !IsSignedRequest(r) {
		return false, fmt.Errorf("not a signed URL request")
	}

	if query.Get(paramAlgorithm) != algorithm {
		return false, fmt.Errorf("invalid algorithm: %s", query.Get(paramAlgorithm))
	}

	dkDate := query.Get(paramDate)
	requestTime, err := time.Parse(timeFormat, dkDate)
	if err != nil {
		return false, fmt.Errorf("invalid %s format: %w", paramDate, err)
	}

	expiresIn, err := strconv.ParseInt(query.Get(paramExpires), 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", paramExpires, err)
	}

	expirationTime := requestTime.Add(time.Duration(expiresIn) * time.Second)
	if time.Now().UTC().After(expirationTime) {
		logrus.WithFields(logrus.Fields{
			"request_time": requestTime,
			"expires_in":   expiresIn,
			"path":         r.URL.Path,
		}).Debug("Signed URL has expired")
		return false, fmt.Errorf("signed URL has expired")
	}

	canonicalQuery := buildCanonicalQueryStringForValidation(query)
	stringToSign := buildStringToSign(r.Method, r.URL.Path, canonicalQuery, dkDate)
	expectedSignature := hmacSHA256([]byte(signingKey), []byte(stringToSign))

	providedSignature, err := hex.DecodeString(query.Get(paramSignature))
	if err != nil {
		return false, fmt.Errorf("invalid %s encoding: %w", paramSignature, err)
	}

	if !hmac.Equal(providedSignature, expectedSignature) {
		logrus.WithField("path", r.URL.Path).Debug("Signature mismatch")
		return false, fmt.Errorf("signature does not match")
	}

	return true, nil
}

// IsSignedRequest checks if a request carries signed URL parameters
func IsSignedRequest(r *http.Request) bool {
	query := r.URL.Query()
	return query.Get(paramAlgorithm) != "" &&
		query.Get(paramDate) != "" &&
		query.Get(paramExpires) != "" &&
		query.Get(paramSignature) != ""
}

// buildCanonicalQueryStringForValidation builds the canonical query string
// excluding the signature itself
func buildCanonicalQueryStringForValidation(query url.Values) string {
	params := make(map[string]string)
	for k, v := range query {
		if k != paramSignature && len(v) > 0 {
			params[k] = v[0]
		}
	}

	return buildCanonicalQueryString(params)
}
