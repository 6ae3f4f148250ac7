package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/grassrootza/grassroot-platform-sub003/server/api"
	apierrors "github.com/grassrootza/grassroot-platform-sub003/server/api/errors"
)

func (al *APIListener) writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	b, err := json.Marshal(response)
	if err != nil {
		al.Errorf("failed to encode %T response: %v", response, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write(b); err != nil {
		al.Errorf("error writing response: %s", err)
	}
}

// statusOf reads status and error code from the first APIError in err's chain.
// Anything else is an internal error.
func statusOf(err error) (int, string) {
	var apiErr apierrors.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatus, apiErr.ErrCode
	}
	var apiErrs apierrors.APIErrors
	if errors.As(err, &apiErrs) && len(apiErrs) > 0 {
		return apiErrs[0].HTTPStatus, apiErrs[0].ErrCode
	}
	return http.StatusInternalServerError, ""
}

func (al *APIListener) jsonError(w http.ResponseWriter, err error) {
	statusCode, errCode := statusOf(err)
	if statusCode >= http.StatusInternalServerError {
		al.Errorf("request failed: %v", err)
	}

	payload := api.NewErrAPIPayloadFromError(err, errCode)
	al.Debugf("error response %d: %+v", statusCode, payload)
	al.writeJSONResponse(w, statusCode, payload)
}
