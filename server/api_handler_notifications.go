package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/grassrootza/grassroot-platform-sub003/server/api"
	apierrors "github.com/grassrootza/grassroot-platform-sub003/server/api/errors"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type dispatchRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
	Channel string `json:"channel"`
	LogRef  string `json:"log_ref"`
}

func (r dispatchRequest) toRequest() (notifications.Request, error) {
	req := notifications.Request{
		UserID:  strings.TrimSpace(r.UserID),
		Message: r.Message,
	}
	if req.UserID == "" {
		return req, badRequest("user_id is required")
	}

	if r.Channel != "" {
		channel, err := notifications.ParseChannel(r.Channel)
		if err != nil {
			return req, apierrors.NewAPIError(http.StatusBadRequest, apierrors.ErrCodeInvalidRequest, "invalid channel", err)
		}
		req.Channel = channel
	}

	if r.LogRef != "" {
		ref, err := notifications.ParseLogRef(r.LogRef)
		if err != nil {
			return req, apierrors.NewAPIError(http.StatusBadRequest, apierrors.ErrCodeInvalidRequest, "invalid log_ref", err)
		}
		req.LogRef = ref
	}
	return req, nil
}

func (al *APIListener) handlePostNotification(w http.ResponseWriter, req *http.Request) {
	var body dispatchRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		al.jsonError(w, apierrors.NewAPIError(http.StatusBadRequest, apierrors.ErrCodeInvalidRequest, "invalid JSON data", err))
		return
	}
	dispatch, err := body.toRequest()
	if err != nil {
		al.jsonError(w, err)
		return
	}

	n, err := al.Dispatcher.Send(req.Context(), dispatch)
	if err != nil {
		al.jsonError(w, dispatchAPIError(err))
		return
	}
	if operator := api.Operator(req.Context()); operator != "" {
		al.Infof("notification %s for user %s requested by %s", n.ID, n.UserID, operator)
	}

	al.writeJSONResponse(w, http.StatusCreated, api.NewSuccessPayload(n))
}

func dispatchAPIError(err error) error {
	var dispatchErr *notifications.DispatchError
	switch {
	case errors.Is(err, notifications.ErrUnknownRecipient):
		return apierrors.NewAPIError(http.StatusNotFound, apierrors.ErrCodeUnknownUser, "unknown user", err)
	case errors.Is(err, notifications.ErrEmptyMessage):
		return apierrors.NewAPIError(http.StatusBadRequest, apierrors.ErrCodeInvalidRequest, "message is required", err)
	case errors.As(err, &dispatchErr):
		apiErr := apierrors.NewAPIError(http.StatusBadGateway, apierrors.ErrCodeGatewayFailure, "notification could not be sent", err)
		apiErr.Source = dispatchErr.Notification
		return apiErr
	}
	return err
}

func (al *APIListener) handleListNotifications(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	filter := notifications.ListFilter{
		UserID:      strings.TrimSpace(query.Get("user_id")),
		NewestFirst: true,
		Limit:       defaultListLimit,
	}

	for _, raw := range query["status"] {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := notifications.ParseStatus(part)
			if err != nil {
				al.jsonError(w, apierrors.NewAPIError(http.StatusBadRequest, apierrors.ErrCodeInvalidRequest, "invalid status", err))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if rawLimit := query.Get("limit"); rawLimit != "" {
		limit, err := strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 {
			al.jsonError(w, badRequest("invalid limit %q: expected a positive number", rawLimit))
			return
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		filter.Limit = limit
	}

	items, err := al.Store.List(req.Context(), filter)
	if err != nil {
		al.jsonError(w, err)
		return
	}

	al.writeJSONResponse(w, http.StatusOK, api.NewSuccessPayloadWithMeta(items, api.ListMeta{Count: len(items), Limit: filter.Limit}))
}

type notificationDetails struct {
	*notifications.Notification
	History []notifications.StatusChange `json:"history"`
}

func (al *APIListener) handleGetNotification(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	n, found, err := al.Store.Get(req.Context(), id)
	if err != nil {
		al.jsonError(w, err)
		return
	}
	if !found {
		al.jsonError(w, notFound(id))
		return
	}

	history, err := al.Store.History(req.Context(), id)
	if err != nil {
		al.jsonError(w, err)
		return
	}

	al.writeJSONResponse(w, http.StatusOK, api.NewSuccessPayload(notificationDetails{
		Notification: n,
		History:      history,
	}))
}

func (al *APIListener) handlePutSeen(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	id := vars["id"]
	seen := notifications.Seen(vars["seen"])

	n, err := al.Store.MarkSeen(req.Context(), id, seen, al.now())
	switch {
	case errors.Is(err, notifications.ErrNotFound):
		al.jsonError(w, notFound(id))
		return
	case errors.Is(err, notifications.ErrNotSent):
		al.jsonError(w, apierrors.NewAPIError(http.StatusConflict, apierrors.ErrCodeNotSent, "notification has not been sent", err))
		return
	case err != nil:
		al.jsonError(w, err)
		return
	}

	al.writeJSONResponse(w, http.StatusOK, api.NewSuccessPayload(n))
}

func notFound(id string) error {
	return apierrors.NewAPIError(http.StatusNotFound, apierrors.ErrCodeNotFound, "notification "+id+" not found", nil)
}
