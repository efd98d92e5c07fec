package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

// WriteJSON writes data as a JSON response with the given status
func WriteJSON(w http.ResponseWriter, log *logger.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

// WriteError maps err to its status code and writes the standard error body
func WriteError(w http.ResponseWriter, log *logger.Logger, err error) {
	status := types.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	WriteJSON(w, log, status, types.NewErrorResponse(err, time.Now()))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, s.logger, types.NewNotFoundError(types.ErrCodeNotFound, "route not found"))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, s.logger, http.StatusMethodNotAllowed, types.ErrorResponse{
		Error: types.ErrorBody{
			Code:    "METHOD_NOT_ALLOWED",
			Message: r.Method + " is not allowed on " + r.URL.Path,
		},
		Timestamp: time.Now().UTC(),
	})
}
