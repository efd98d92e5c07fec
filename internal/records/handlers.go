package records

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/SooryaCodes/medchainx-sub000/internal/gateway"
	"github.com/SooryaCodes/medchainx-sub000/internal/ledger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

const maxBodyBytes = 1 << 20

// AccessTokenHeader is the alternative to an Authorization bearer token
const AccessTokenHeader = "X-Access-Token"

// Handlers handles HTTP requests for the records API
type Handlers struct {
	service *Service
	logger  *logger.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(service *Service, log *logger.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/records", h.CreateRecord).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/records/{id}", h.GetRecord).Methods(http.MethodGet)

	router.HandleFunc("/chain", h.GetChain).Methods(http.MethodGet)
	router.HandleFunc("/chain/verify", h.VerifyChain).Methods(http.MethodGet)

	router.HandleFunc("/access-tokens", h.IssueToken).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/access-tokens/verify", h.VerifyToken).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/access-tokens/revoke", h.RevokeToken).Methods(http.MethodPost, http.MethodOptions)

	router.HandleFunc("/patients/{patientID}/records", h.GetPatientRecords).Methods(http.MethodGet)
}

// ChainResponse is the body of GET /chain
type ChainResponse struct {
	Length int            `json:"length"`
	Blocks []ledger.Block `json:"blocks"`
}

// IssueTokenRequest is the body of POST /access-tokens.
// ValidityWindow may be a duration string ("30m") or a number of minutes (30).
type IssueTokenRequest struct {
	SubjectID      string          `json:"subjectId"`
	ValidityWindow json.RawMessage `json:"validityWindow,omitempty"`
}

// IssueTokenResponse is the body of a successful issuance
type IssueTokenResponse struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"tokenId"`
	SubjectID string    `json:"subjectId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenRequest carries a token value for verify and revoke
type TokenRequest struct {
	Token string `json:"token"`
}

// VerifyTokenResponse is the body of a successful verification
type VerifyTokenResponse struct {
	SubjectID string    `json:"subjectId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PatientRecordsResponse is the body of the token-gated patient history
type PatientRecordsResponse struct {
	PatientID string         `json:"patientId"`
	Count     int            `json:"count"`
	Blocks    []ledger.Block `json:"blocks"`
}

// CreateRecord appends a record to the ledger
func (h *Handlers) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var record types.Record
	if err := h.decode(w, r, &record); err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}

	block, err := h.service.AddRecord(r.Context(), record)
	if err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}

	gateway.WriteJSON(w, h.logger, http.StatusCreated, block)
}

// GetRecord returns the first block carrying the record id
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	block, err := h.service.GetRecord(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}

	gateway.WriteJSON(w, h.logger, http.StatusOK, block)
}

// GetChain returns the whole chain
func (h *Handlers) GetChain(w http.ResponseWriter, r *http.Request) {
	blocks := h.service.Blocks(r.Context())
	gateway.WriteJSON(w, h.logger, http.StatusOK, ChainResponse{Length: len(blocks), Blocks: blocks})
}

// VerifyChain reports chain integrity; a violated chain is a server fault
func (h *Handlers) VerifyChain(w http.ResponseWriter, r *http.Request) {
	report := h.service.VerifyChain(r.Context())
	if !report.Valid {
		gateway.WriteJSON(w, h.logger, http.StatusInternalServerError, report)
		return
	}
	gateway.WriteJSON(w, h.logger, http.StatusOK, report)
}

// IssueToken issues an access token
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req IssueTokenRequest
	if err := h.decode(w, r, &req); err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}

	window, err := parseWindowField(req.ValidityWindow)
	if err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}

	token, err := h.service.IssueToken(r.Context(), req.SubjectID, window)
	if err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}

	gateway.WriteJSON(w, h.logger, http.StatusCreated, IssueTokenResponse{
		Token:     token.Value,
		TokenID:   token.ID,
		SubjectID: token.SubjectID,
		ExpiresAt: token.ExpiresAt,
	})
}

// VerifyToken validates a presented token
func (h *Handlers) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := h.decode(w, r, &req); err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}

	grant, err := h.service.ValidateToken(r.Context(), req.Token)
	if err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}

	gateway.WriteJSON(w, h.logger, http.StatusOK, VerifyTokenResponse{
		SubjectID: grant.SubjectID,
		ExpiresAt: grant.ExpiresAt,
	})
}

// RevokeToken revokes a live token
func (h *Handlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := h.decode(w, r, &req); err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}

	if err := h.service.RevokeToken(r.Context(), req.Token); err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}

	gateway.WriteJSON(w, h.logger, http.StatusOK, map[string]bool{"revoked": true})
}

// GetPatientRecords returns a patient's history to the holder of a matching token
func (h *Handlers) GetPatientRecords(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patientID"]

	blocks, err := h.service.PatientHistory(r.Context(), presentedToken(r), patientID)
	if err != nil {
		gateway.WriteError(w, h.logger, err)
		return
	}
	if blocks == nil {
		blocks = []ledger.Block{}
	}

	gateway.WriteJSON(w, h.logger, http.StatusOK, PatientRecordsResponse{
		PatientID: patientID,
		Count:     len(blocks),
		Blocks:    blocks,
	})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return types.NewValidationError(types.ErrCodeInvalidInput, "invalid JSON payload", nil)
	}
	return nil
}

// presentedToken reads a bearer token, falling back to the X-Access-Token header
func presentedToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(r.Header.Get(AccessTokenHeader))
}

func parseWindowField(raw json.RawMessage) (time.Duration, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return types.ParseValidityWindow(text)
	}

	var minutes json.Number
	if err := json.Unmarshal(raw, &minutes); err == nil {
		return types.ParseValidityWindow(minutes.String())
	}

	return 0, types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("invalid validity window %s", raw), nil)
}
