package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itsneelabh/infergate/core"
	"github.com/itsneelabh/infergate/oss"
)

// fileUpload handles POST /file/upload. The body is streamed to object
// storage as-is; Content-Type and Content-Length are mandatory since
// the object name and the upload strategy are derived from them.
func (s *Server) fileUpload(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")
	if contentType == "" {
		c.String(http.StatusBadRequest, "Missing request header 'Content-Type'")
		return
	}
	if c.Request.ContentLength < 0 {
		c.String(http.StatusBadRequest, "Missing request header 'Content-Length'")
		return
	}

	name, err := s.store.PutObject(c.Request.Context(), c.Request.Body, oss.ObjectMeta{
		ContentType:   contentType,
		ContentLength: uint64(c.Request.ContentLength),
	})
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "Upload failed", map[string]interface{}{
			"operation": "file_upload",
			"error":     err.Error(),
		})
		c.JSON(http.StatusOK, Error(err))
		return
	}
	c.JSON(http.StatusOK, OK(name))
}

// fileDownload handles GET /file/download/:name, streaming the object
// back with its original content type and length.
func (s *Server) fileDownload(c *gin.Context) {
	name := c.Param("name")

	reader, meta, err := s.store.GetObject(c.Request.Context(), name)
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "Download failed", map[string]interface{}{
			"operation": "file_download",
			"name":      name,
			"error":     err.Error(),
		})
		if core.IsInvalidInput(err) {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, int64(meta.ContentLength), meta.ContentType, reader, nil)
}
