package errors

import (
	"strings"
)

const (
	ErrCodeInvalidRequest = "ERR_CODE_INVALID_REQUEST"
	ErrCodeUnknownUser    = "ERR_CODE_UNKNOWN_USER"
	ErrCodeNotFound       = "ERR_CODE_NOT_FOUND"
	ErrCodeNotSent        = "ERR_CODE_NOT_SENT"
	ErrCodeGatewayFailure = "ERR_CODE_GATEWAY_FAILURE"
	ErrCodeQueueFull      = "ERR_CODE_QUEUE_FULL"
	ErrCodeForbidden      = "ERR_CODE_FORBIDDEN"
	ErrCodeUnauthorized   = "ERR_CODE_UNAUTHORIZED"
)

// APIError wraps error which is interpreted as in http error
type APIError struct {
	Message    string
	Err        error
	HTTPStatus int
	ErrCode    string
	// Source is an optional machine readable object attached to the error payload.
	Source interface{}
}

func NewAPIError(statusCode int, errCode string, message string, err error) APIError {
	return APIError{
		HTTPStatus: statusCode,
		ErrCode:    errCode,
		Message:    message,
		Err:        err,
	}
}

// Error interface implementation
func (ae APIError) Error() string {
	if ae.Err != nil {
		if ae.Message != "" {
			return ae.Message + ": " + ae.Err.Error()
		}
		return ae.Err.Error()
	}

	return ae.Message
}

func (ae APIError) Unwrap() error {
	return ae.Err
}

type APIErrors []APIError

func (aes APIErrors) Error() string {
	errsFlat := make([]string, 0, len(aes))
	for i := range aes {
		errsFlat = append(errsFlat, aes[i].Error())
	}

	return strings.Join(errsFlat, ", ")
}
