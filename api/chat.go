package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/itsneelabh/infergate/core"
)

// resolveModel applies the shared routing rule: an explicit ?model=
// overrides payload-based routing.
func (s *Server) resolveModel(name string, message *core.Message) (core.ChatModel, error) {
	if name != "" {
		return s.models.Resolve(name)
	}
	return s.models.ForMessage(message), nil
}

// chatCompletion handles POST /chat/completion?model= synchronously.
func (s *Server) chatCompletion(c *gin.Context) {
	var message core.Message
	if err := c.ShouldBindJSON(&message); err != nil {
		c.JSON(http.StatusOK, Error(err))
		return
	}

	model, err := s.resolveModel(c.Query("model"), &message)
	if err != nil {
		c.JSON(http.StatusOK, Error(err))
		return
	}

	completion, err := model.Complete(c.Request.Context(), &message)
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "Completion failed", map[string]interface{}{
			"operation": "chat_completion",
			"error":     err.Error(),
		})
		c.JSON(http.StatusOK, Error(err))
		return
	}
	c.JSON(http.StatusOK, OK(completion))
}

// chatStream handles POST /chat/stream?model=, writing the token text
// as a chunked text/plain body. Errors before the first byte become a
// 500 with the error text; once streaming has begun the body simply
// ends where the stream broke.
func (s *Server) chatStream(c *gin.Context) {
	var message core.Message
	if err := c.ShouldBindJSON(&message); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	model, err := s.resolveModel(c.Query("model"), &message)
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	started := false
	err = model.Stream(c.Request.Context(), &message, func(chunk core.Completion) error {
		text := chunk.ReasoningContent + chunk.Content
		if text == "" {
			return nil
		}
		if !started {
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.Status(http.StatusOK)
			started = true
		}
		if _, err := c.Writer.WriteString(text); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "Streaming chat failed", map[string]interface{}{
			"operation": "chat_stream",
			"error":     err.Error(),
		})
		if !started {
			c.String(http.StatusInternalServerError, err.Error())
		}
	}
}
