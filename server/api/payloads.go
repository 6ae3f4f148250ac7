package api

import (
	"errors"

	apierrors "github.com/grassrootza/grassroot-platform-sub003/server/api/errors"
)

// SuccessPayload represents a uniform format for all successful API responses.
type SuccessPayload struct {
	Data interface{} `json:"data"`
	Meta interface{} `json:"meta,omitempty"`
}

func NewSuccessPayload(data interface{}) SuccessPayload {
	return SuccessPayload{
		Data: data,
	}
}

type ListMeta struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

func NewSuccessPayloadWithMeta(data, meta interface{}) SuccessPayload {
	return SuccessPayload{
		Data: data,
		Meta: meta,
	}
}

// ErrorPayload represents a uniform format for all error API responses.
type ErrorPayload struct {
	Errors []ErrorPayloadItem `json:"errors"`
}

// ErrorPayloadItem represents a uniform format for a single error used in API responses.
type ErrorPayloadItem struct {
	Code   string      `json:"code"`
	Title  string      `json:"title"`
	Detail string      `json:"detail"`
	Source interface{} `json:"source,omitempty"`
}

func NewErrorPayloadWithCode(code, title, detail string) ErrorPayload {
	return ErrorPayload{
		Errors: []ErrorPayloadItem{
			{
				Code:   code,
				Title:  title,
				Detail: detail,
			},
		},
	}
}

// NewErrAPIPayloadFromError builds the payload for err. An APIError contributes its
// message as title and the wrapped error as detail.
func NewErrAPIPayloadFromError(err error, code string) ErrorPayload {
	if err == nil {
		return NewErrorPayloadWithCode(code, "", "")
	}

	var apiErr apierrors.APIError
	if errors.As(err, &apiErr) {
		item := ErrorPayloadItem{
			Code:   code,
			Title:  apiErr.Message,
			Source: apiErr.Source,
		}
		if apiErr.Err != nil {
			item.Detail = apiErr.Err.Error()
		}
		if item.Title == "" {
			item.Title, item.Detail = item.Detail, ""
		}
		return ErrorPayload{Errors: []ErrorPayloadItem{item}}
	}

	return NewErrorPayloadWithCode(code, err.Error(), "")
}
