package modelspec

import (
	"encoding/json"
	"runtime/debug"

	"github.com/bitechdev/ModelSpec/pkg/apierror"
	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/logger"
)

type collectionEnvelope struct {
	Data      []map[string]interface{} `json:"data"`
	Count     int                      `json:"count"`
	Page      int                      `json:"page"`
	PageSize  int                      `json:"page_size"`
	PageCount int                      `json:"page_count"`
	Links     *common.LinkSet          `json:"links"`
}

type objectEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Links *common.LinkSet        `json:"links"`
}

type errorEnvelope struct {
	Errors []common.ErrorEntry `json:"errors"`
	Links  *common.LinkSet     `json:"links"`
}

func (h *Handler) sendJSON(ex *exchange, status int, body interface{}) {
	if ex.status != 0 {
		logger.Warn("Response for %s already written with status %d, dropping %d", ex.r.URL(), ex.status, status)
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		logger.Error("Failed to encode response: %v", err)
		status = apierror.KindInternalError.HTTPStatus()
		ex.result = common.StatusInternalError
		data = []byte(`{"errors":[{"error":"Internal error","message":"Response could not be encoded"}]}`)
	}

	for k, v := range h.opts.Headers {
		ex.w.SetHeader(k, v)
	}
	ex.w.SetHeader("Content-Type", "application/json")
	ex.w.WriteHeader(status)
	ex.status = status
	if ex.result == "" {
		ex.result = common.StatusOK
	}
	if _, err := ex.w.Write(data); err != nil {
		logger.Warn("Failed to write response: %v", err)
	}
}

// sendError renders classified errors with their own status. Anything else
// is an unhandled fault: logged, reported and rendered as an internal error.
func (h *Handler) sendError(ex *exchange, err error) {
	e := apierror.Classify(err)
	if e == nil {
		logger.Error("Unhandled error serving %s %s: %v", ex.r.Method(), ex.r.URL(), err)
		logger.CaptureError(ex.ctx, err, map[string]interface{}{
			"method": ex.r.Method(),
			"url":    ex.r.URL(),
		})
		h.sendInternal(ex, err, string(debug.Stack()))
		return
	}
	logger.Debug("%s %s failed: %v", ex.r.Method(), ex.r.URL(), e)
	h.sendFailure(ex, e)
}

// sendInternal renders a fault, with message and stack unless in production.
func (h *Handler) sendInternal(ex *exchange, err error, stack string) {
	h.sendFailure(ex, apierror.Internal(err, !h.opts.Production, stack))
}

func (h *Handler) sendFailure(ex *exchange, e *apierror.Error) {
	ex.result = e.Kind.Status()
	h.sendJSON(ex, e.Kind.HTTPStatus(), errorEnvelope{
		Errors: e.Entries,
		Links:  h.links.Links(ex.rc, nil),
	})
}
