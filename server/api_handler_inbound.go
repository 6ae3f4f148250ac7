package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/grassrootza/grassroot-platform-sub003/server/api"
	apierrors "github.com/grassrootza/grassroot-platform-sub003/server/api/errors"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
)

// query parameters of the SMS provider callbacks
const (
	paramFrom       = "fn"
	paramTo         = "tn"
	paramSuccess    = "sc"
	paramReference  = "rf"
	paramStatus     = "st"
	paramTimestamp  = "ts"
	paramMessage    = "ms"
	receiptAccepted = "ok"
)

func badRequest(format string, args ...interface{}) error {
	return apierrors.NewAPIError(http.StatusBadRequest, apierrors.ErrCodeInvalidRequest, fmt.Sprintf(format, args...), nil)
}

func forbidden() error {
	return apierrors.NewAPIError(http.StatusForbidden, apierrors.ErrCodeForbidden, "invalid inbound secret", nil)
}

// handleReceipt queues a delivery report. Whether the report matches a notification is
// decided later by the receipt workers and is never reported back to the provider.
func (al *APIListener) handleReceipt(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		al.jsonError(w, apierrors.NewAPIError(http.StatusBadRequest, apierrors.ErrCodeInvalidRequest, "invalid request", err))
		return
	}

	from := strings.TrimSpace(req.Form.Get(paramFrom))
	if from == "" {
		al.jsonError(w, badRequest("missing parameter %q", paramFrom))
		return
	}
	reference := strings.TrimSpace(req.Form.Get(paramReference))
	if reference == "" {
		al.jsonError(w, badRequest("missing parameter %q", paramReference))
		return
	}
	rawStatus := strings.TrimSpace(req.Form.Get(paramStatus))
	if rawStatus == "" {
		al.jsonError(w, badRequest("missing parameter %q", paramStatus))
		return
	}
	status, err := strconv.Atoi(rawStatus)
	if err != nil {
		al.jsonError(w, badRequest("invalid parameter %q: %q is not a number", paramStatus, rawStatus))
		return
	}

	receipt := notifications.Receipt{
		SendingKey:   reference,
		StatusCode:   notifications.ProviderStatus(status),
		RawTimestamp: strings.TrimSpace(req.Form.Get(paramTimestamp)),
		From:         from,
		To:           req.Form.Get(paramTo),
		Success:      req.Form.Get(paramSuccess),
	}

	ctx, cancel := requestContext(req)
	defer cancel()
	if err := al.Receipts.Enqueue(ctx, receipt); err != nil {
		al.Infof("receipt %s not accepted: %v", reference, err)
		if errors.Is(err, notifications.ErrQueueFull) || errors.Is(err, notifications.ErrQueueClosed) ||
			errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			al.jsonError(w, apierrors.NewAPIError(http.StatusServiceUnavailable, apierrors.ErrCodeQueueFull, "receipt not accepted, try again later", err))
			return
		}
		al.jsonError(w, err)
		return
	}

	al.writeJSONResponse(w, http.StatusOK, api.NewSuccessPayload(receiptAccepted))
}

func (al *APIListener) handleReply(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		al.jsonError(w, apierrors.NewAPIError(http.StatusBadRequest, apierrors.ErrCodeInvalidRequest, "invalid request", err))
		return
	}

	phone := strings.TrimSpace(req.Form.Get(paramFrom))
	if phone == "" {
		al.jsonError(w, badRequest("missing parameter %q", paramFrom))
		return
	}
	message := req.Form.Get(paramMessage)
	if strings.TrimSpace(message) == "" {
		al.jsonError(w, badRequest("missing parameter %q", paramMessage))
		return
	}

	outcome, err := al.Correlator.Correlate(req.Context(), phone, message)
	if err != nil {
		al.jsonError(w, err)
		return
	}

	al.writeJSONResponse(w, http.StatusOK, api.NewSuccessPayload(outcome))
}
