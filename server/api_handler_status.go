package server

import (
	"net/http"

	"github.com/grassrootza/grassroot-platform-sub003/server/api"
	"github.com/grassrootza/grassroot-platform-sub003/share"
)

func (al *APIListener) handleGetStatus(w http.ResponseWriter, req *http.Request) {
	response := api.NewSuccessPayload(map[string]interface{}{
		"version":         share.BuildVersion,
		"channels":        al.Channels,
		"receipts":        al.Receipts.Stats(),
		"receipts_policy": al.config.Receipts.Policy,
		"sweeper_enabled": al.config.Sweeper.Enabled,
	})
	al.writeJSONResponse(w, http.StatusOK, response)
}
