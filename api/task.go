package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/itsneelabh/infergate/core"
)

// taskCreate handles POST /task/create?model=. The response carries the
// pending task; execution happens asynchronously.
func (s *Server) taskCreate(c *gin.Context) {
	var message core.Message
	if err := c.ShouldBindJSON(&message); err != nil {
		c.JSON(http.StatusOK, Error(err))
		return
	}

	task, err := s.tasks.Submit(c.Request.Context(), c.Query("model"), &message)
	if err != nil {
		c.JSON(http.StatusOK, Error(err))
		return
	}
	c.JSON(http.StatusOK, OK(task))
}

// taskQuery handles GET /task/query?id=. An unknown id is not an error:
// data is simply null.
func (s *Server) taskQuery(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusOK, Error(fmt.Errorf("missing query parameter 'id'")))
		return
	}

	task, err := s.tasks.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusOK, Error(err))
		return
	}
	c.JSON(http.StatusOK, OK(task))
}

// taskResult handles GET /task/result?id=&timeout=, long-polling up to
// timeout seconds for a terminal state.
func (s *Server) taskResult(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusOK, Error(fmt.Errorf("missing query parameter 'id'")))
		return
	}

	var timeout time.Duration
	if raw := c.Query("timeout"); raw != "" {
		seconds, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusOK, Error(fmt.Errorf("invalid query parameter 'timeout': %s", raw)))
			return
		}
		timeout = time.Duration(seconds) * time.Second
	}

	task, err := s.tasks.Result(c.Request.Context(), id, timeout)
	if err != nil {
		c.JSON(http.StatusOK, Error(err))
		return
	}
	c.JSON(http.StatusOK, OK(task))
}
