package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"faimport/pkg/models"
)

// JSON API actions.
const (
	APIProcessEmails = "process_emails"
	APIGetPending    = "get_pending"
	APIGetStatistics = "get_statistics"
	APIMarkProcessed = "mark_processed"
)

type apiRequest struct {
	Action string `json:"action" validate:"required,oneof=process_emails get_pending get_statistics mark_processed"`
	Limit  int    `json:"limit" validate:"gte=0,lte=500"`
}

// api is the scripting endpoint. Errors are JSON too, never HTML.
func (ctl *Controller) api(c *gin.Context) {
	// The body is bound twice (action, then the action's payload), so it is cached by gin.
	var req apiRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if err := ctl.validate.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("unknown or missing action %q", req.Action))
		return
	}

	ctx := c.Request.Context()
	switch req.Action {
	case APIProcessEmails:
		src, err := ctl.sources.Gmail()
		if err != nil {
			fail(c, statusFor(err), err)
			return
		}
		ctl.runImport(c, src)

	case APIGetPending:
		limit := req.Limit
		if limit == 0 {
			limit = defaultPageSize
		}
		pending, err := ctl.invoices.FindByStatus(ctx, models.StatusPending, limit)
		if err != nil {
			fail(c, http.StatusInternalServerError, err)
			return
		}
		ok(c, gin.H{"invoices": views(pending), "count": len(pending)})

	case APIGetStatistics:
		ctl.statistics(c)

	case APIMarkProcessed:
		var mp markProcessedRequest
		if err := c.ShouldBindBodyWith(&mp, binding.JSON); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		if err := ctl.validate.Struct(mp); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		if err := ctl.doMarkProcessed(ctx, ctl.actor(c), mp); err != nil {
			fail(c, statusFor(err), err)
			return
		}
		ok(c, gin.H{"invoice_id": mp.ID, "status": models.StatusCompleted})

	default:
		fail(c, http.StatusBadRequest, errors.New("unknown action"))
	}
}
