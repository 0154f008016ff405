package oss

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureSigner() *signer {
	return &signer{
		accessKeyID:     "AK",
		accessKeySecret: "SK",
		bucket:          "b",
		region:          "cn-hangzhou",
	}
}

func fixtureHeaders() http.Header {
	h := http.Header{}
	h.Set("x-oss-date", "20240115T103045Z")
	h.Set("x-oss-content-sha256", unsignedPayload)
	return h
}

// The expected values below were computed independently from the V4
// algorithm definition for GET /b/k with query {uploads:""}.
func TestSignerCanonicalRequestFixture(t *testing.T) {
	canonicalRequest := strings.Join([]string{
		"GET",
		fixtureSigner().canonicalURI("/k"),
		canonicalQuery(map[string]string{"uploads": ""}),
		canonicalHeaders(fixtureHeaders(), nil, unsignedPayload),
		"",
		"",
		unsignedPayload,
	}, "\n")

	assert.Equal(t,
		"GET\n/b/k\nuploads\n"+
			"x-oss-content-sha256:UNSIGNED-PAYLOAD\nx-oss-date:20240115T103045Z\n"+
			"\n\nUNSIGNED-PAYLOAD",
		canonicalRequest)

	sum := sha256.Sum256([]byte(canonicalRequest))
	assert.Equal(t, "ca1101b6cccea615393219c038c02f3227e61a952781c81011f4a26f5421c1b0",
		hex.EncodeToString(sum[:]))
}

func TestSignerSignatureFixture(t *testing.T) {
	s := fixtureSigner()
	signature, err := s.sign("/k", "GET", map[string]string{"uploads": ""},
		fixtureHeaders(), nil, "20240115T103045Z", "20240115")
	require.NoError(t, err)
	assert.Equal(t, "f3e83738e62586d3f7e644a45b24b6544c159be91d4e7b79e5fb7968097c1156", signature)
}

func TestSignerAuthorizationHeader(t *testing.T) {
	s := fixtureSigner()
	auth, err := s.authorize("/k", "GET", map[string]string{"uploads": ""}, fixtureHeaders(), nil)
	require.NoError(t, err)
	assert.Equal(t,
		"OSS4-HMAC-SHA256 Credential=AK/20240115/cn-hangzhou/oss/aliyun_v4_request, "+
			"Signature=f3e83738e62586d3f7e644a45b24b6544c159be91d4e7b79e5fb7968097c1156",
		auth)
}

func TestSignerDeterminism(t *testing.T) {
	s := fixtureSigner()
	first, err := s.authorize("/k", "GET", map[string]string{"uploads": ""}, fixtureHeaders(), nil)
	require.NoError(t, err)
	second, err := s.authorize("/k", "GET", map[string]string{"uploads": ""}, fixtureHeaders(), nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSignerAdditionalHeadersClause(t *testing.T) {
	s := fixtureSigner()
	headers := fixtureHeaders()
	headers.Set("Content-Disposition", `attachment; filename="a.pdf"`)

	auth, err := s.authorize("/k", "PUT", nil, headers, []string{"content-disposition"})
	require.NoError(t, err)
	assert.Contains(t, auth, ", AdditionalHeaders=content-disposition, Signature=")
}

func TestSignerMissingDate(t *testing.T) {
	s := fixtureSigner()
	_, err := s.authorize("/k", "GET", nil, http.Header{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x-oss-date")
}

func TestCanonicalQuery(t *testing.T) {
	assert.Empty(t, canonicalQuery(nil))
	assert.Equal(t, "uploads", canonicalQuery(map[string]string{"uploads": ""}))
	assert.Equal(t, "partNumber=2&uploadId=abc%2F1",
		canonicalQuery(map[string]string{"uploadId": "abc/1", "partNumber": "2"}))
}

func TestCanonicalHeadersSelection(t *testing.T) {
	h := http.Header{}
	h.Set("x-oss-date", "20240115T103045Z")
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", "attachment")
	h.Set("User-Agent", "infergate") // neither conditional nor additional

	got := canonicalHeaders(h, []string{"content-disposition"}, unsignedPayload)
	assert.Equal(t,
		"content-disposition:attachment\n"+
			"content-type:application/pdf\n"+
			"x-oss-content-sha256:UNSIGNED-PAYLOAD\n"+
			"x-oss-date:20240115T103045Z",
		got)
}

func TestPercentEncode(t *testing.T) {
	assert.Equal(t, "/b/a%20b.pdf", percentEncode("/b/a b.pdf", true))
	assert.Equal(t, "%2Fa%2Fb", percentEncode("/a/b", false))
	assert.Equal(t, "a-b_c.d~e", percentEncode("a-b_c.d~e", false))
	assert.Equal(t, "%E6%96%87%E6%A1%A3", percentEncode("文档", false))
}
