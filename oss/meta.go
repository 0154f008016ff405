package oss

import (
	"encoding/xml"
	"fmt"
	"mime"

	"github.com/itsneelabh/infergate/core"
)

// ObjectMeta describes a stored object. Both fields come straight from
// the upload request headers, and back out of the download response.
type ObjectMeta struct {
	ContentType   string
	ContentLength uint64
}

// extensionByType maps the media types the gateway accepts to the file
// extension used in generated object names. A fixed table keeps names
// deterministic across hosts, unlike the OS mime database.
var extensionByType = map[string]string{
	"application/json":   "json",
	"application/pdf":    "pdf",
	"application/zip":    "zip",
	"audio/mpeg":         "mp3",
	"audio/wav":          "wav",
	"image/gif":          "gif",
	"image/jpeg":         "jpg",
	"image/png":          "png",
	"image/webp":         "webp",
	"text/csv":           "csv",
	"text/html":          "html",
	"text/markdown":      "md",
	"text/plain":         "txt",
	"video/mp4":          "mp4",
	"video/mpeg":         "mpeg",
	"video/webm":         "webm",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.ms-excel": "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": "xlsx",
}

// Extension derives the object name extension from the content type.
// Parameters (e.g. "; charset=utf-8") are ignored. Unknown types are an
// input error since the name would be meaningless.
func (m ObjectMeta) Extension() (string, error) {
	mediaType, _, err := mime.ParseMediaType(m.ContentType)
	if err != nil {
		return "", &core.GatewayError{
			Op:      "ObjectMeta.Extension",
			Kind:    "oss",
			Message: fmt.Sprintf("Invalid value 'Content-Type: %s': %v", m.ContentType, err),
			Err:     core.ErrInvalidInput,
		}
	}
	ext, ok := extensionByType[mediaType]
	if !ok {
		return "", &core.GatewayError{
			Op:      "ObjectMeta.Extension",
			Kind:    "oss",
			Message: fmt.Sprintf("Unknown extension from 'Content-Type: %s'", m.ContentType),
			Err:     core.ErrInvalidInput,
		}
	}
	return ext, nil
}

// MultipartUploadPart is one completed part, as echoed back to the
// service in the CompleteMultipartUpload document.
type MultipartUploadPart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

type completeMultipartUpload struct {
	XMLName xml.Name              `xml:"CompleteMultipartUpload"`
	Parts   []MultipartUploadPart `xml:"Part"`
}

type initiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	UploadID string   `xml:"UploadId"`
}
