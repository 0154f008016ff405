// Aliyun OSS V4 request signing.
//
// Reference: Alibaba Cloud OSS "Include signatures in the Authorization
// header (V4)". The payload is never hashed; every request is signed
// with x-oss-content-sha256: UNSIGNED-PAYLOAD.
package oss

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const unsignedPayload = "UNSIGNED-PAYLOAD"

// signer computes the V4 Authorization header. All inputs beyond the
// credentials arrive per request; the signature is deterministic for a
// fixed x-oss-date.
type signer struct {
	accessKeyID     string
	accessKeySecret string
	bucket          string
	region          string
}

// authorize builds the Authorization header value. The headers must
// already carry x-oss-date and x-oss-content-sha256; additional lists
// the lowercased caller-provided header names to include in signing.
func (s *signer) authorize(key, method string, query map[string]string, headers http.Header, additional []string) (string, error) {
	datetime := headers.Get("x-oss-date")
	if datetime == "" {
		return "", fmt.Errorf("missing request header 'x-oss-date'")
	}
	date, _, ok := strings.Cut(datetime, "T")
	if !ok {
		return "", fmt.Errorf("invalid x-oss-date '%s'", datetime)
	}

	auth := fmt.Sprintf("OSS4-HMAC-SHA256 Credential=%s/%s/%s/oss/aliyun_v4_request",
		s.accessKeyID, date, s.region)
	if len(additional) > 0 {
		auth += ", AdditionalHeaders=" + strings.Join(additional, ";")
	}

	signature, err := s.sign(key, method, query, headers, additional, datetime, date)
	if err != nil {
		return "", err
	}
	return auth + ", Signature=" + signature, nil
}

func (s *signer) sign(key, method string, query map[string]string, headers http.Header, additional []string, datetime, date string) (string, error) {
	contentSHA256 := headers.Get("x-oss-content-sha256")
	if contentSHA256 == "" {
		return "", fmt.Errorf("missing request header 'x-oss-content-sha256'")
	}

	canonicalRequest := strings.Join([]string{
		method,
		s.canonicalURI(key),
		canonicalQuery(query),
		canonicalHeaders(headers, additional, contentSHA256),
		"",
		strings.Join(additional, ";"),
		contentSHA256,
	}, "\n")

	scope := date + "/" + s.region + "/oss/aliyun_v4_request"
	requestHash := sha256.Sum256([]byte(canonicalRequest))
	stringToSign := strings.Join([]string{
		"OSS4-HMAC-SHA256",
		datetime,
		scope,
		hex.EncodeToString(requestHash[:]),
	}, "\n")

	signingKey := hmacSHA256([]byte("aliyun_v4"+s.accessKeySecret), date)
	signingKey = hmacSHA256(signingKey, s.region)
	signingKey = hmacSHA256(signingKey, "oss")
	signingKey = hmacSHA256(signingKey, "aliyun_v4_request")
	return hex.EncodeToString(hmacSHA256(signingKey, stringToSign)), nil
}

// canonicalURI percent-encodes /<bucket><key>, keeping path slashes.
func (s *signer) canonicalURI(key string) string {
	return percentEncode("/"+s.bucket+key, true)
}

// canonicalQuery renders sorted query parameters; a parameter with an
// empty value contributes just its name.
func canonicalQuery(query map[string]string) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := query[k]; v == "" {
			pairs = append(pairs, percentEncode(k, false))
		} else {
			pairs = append(pairs, percentEncode(k, false)+"="+percentEncode(v, false))
		}
	}
	return strings.Join(pairs, "&")
}

// canonicalHeaders renders the signed header lines: always
// x-oss-content-sha256, content-type/content-md5 when present, every
// x-oss-* header and every additional header, sorted by name.
func canonicalHeaders(headers http.Header, additional []string, contentSHA256 string) string {
	signed := map[string]string{
		"x-oss-content-sha256": contentSHA256,
	}
	additionalSet := make(map[string]bool, len(additional))
	for _, name := range additional {
		additionalSet[name] = true
	}
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		lower := strings.ToLower(name)
		if lower == "content-type" || lower == "content-md5" ||
			strings.HasPrefix(lower, "x-oss-") || additionalSet[lower] {
			signed[lower] = strings.TrimSpace(values[0])
		}
	}

	names := make([]string, 0, len(signed))
	for name := range signed {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, name+":"+signed[name])
	}
	return strings.Join(lines, "\n")
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// percentEncode escapes everything outside the unreserved set
// (ALPHA / DIGIT / "-" / "_" / "." / "~"). With keepSlash, path
// separators pass through unescaped.
func percentEncode(s string, keepSlash bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/' && keepSlash:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
