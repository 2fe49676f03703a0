// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shopcompliance/engine/internal/compliance"
	"github.com/shopcompliance/engine/internal/observability"
)

// streamKeepAliveInterval is the period of the stream handler's own
// keep-alive ticker for idle SSE connections.
const streamKeepAliveInterval = 15 * time.Second

type handlers struct {
	engine *compliance.Engine
}

func (h *handlers) submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Kind: string(compliance.ErrValidation), Message: err.Error()})
		return
	}
	res, err := h.engine.Submit(c.Request.Context(), req.toInput())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Kind: string(compliance.ErrServerError), Message: err.Error()})
		return
	}
	if observability.Default != nil {
		observability.Default.JobsSubmittedTotal.WithLabelValues("submit").Inc()
	}
	if res.FromCache {
		c.JSON(http.StatusOK, newSubmitResponse(res))
		return
	}
	c.JSON(http.StatusAccepted, newSubmitResponse(res))
}

func (h *handlers) forceNew(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Kind: string(compliance.ErrValidation), Message: err.Error()})
		return
	}
	res, err := h.engine.ForceNew(c.Request.Context(), req.toInput())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Kind: string(compliance.ErrServerError), Message: err.Error()})
		return
	}
	if observability.Default != nil {
		observability.Default.JobsSubmittedTotal.WithLabelValues("force_new").Inc()
	}
	c.JSON(http.StatusAccepted, newSubmitResponse(res))
}

func (h *handlers) status(c *gin.Context) {
	jobID := c.Param("task_id")
	job, err := h.engine.Status(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Kind: string(compliance.ErrServerError), Message: err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Kind: "not_found", Message: "no task with that id"})
		return
	}
	c.JSON(http.StatusOK, newStatusResponse(job))
}

func (h *handlers) cancel(c *gin.Context) {
	jobID := c.Param("task_id")
	h.engine.Cancel(jobID)
	c.Status(http.StatusNoContent)
}

func (h *handlers) health(c *gin.Context) {
	status := h.engine.Health(c.Request.Context())
	code := http.StatusOK
	if status == compliance.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{Status: status})
}

// stream implements the "stream task" operation over Server-Sent Events.
// It replays the job's buffered events first, then follows live until the
// job reaches a terminal state or the client disconnects.
func (h *handlers) stream(c *gin.Context) {
	jobID := c.Param("task_id")

	sw, err := newSSEWriter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Kind: string(compliance.ErrServerError), Message: err.Error()})
		return
	}
	setSSEHeaders(c.Writer)
	c.Writer.WriteHeader(http.StatusOK)

	ch, cancel := h.engine.Subscribe(jobID)
	defer cancel()

	if observability.Default != nil {
		observability.Default.ActiveStreamSubscribers.Inc()
		defer observability.Default.ActiveStreamSubscribers.Dec()
	}

	ctx := c.Request.Context()
	ticker := time.NewTicker(streamKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sw.writeKeepAlive(); err != nil {
				return
			}
		case box, ok := <-ch:
			if !ok {
				return
			}
			if err := sw.writeJSON(string(box.Event.Kind), box.Event); err != nil {
				return
			}
		}
	}
}
