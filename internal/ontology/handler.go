package ontology

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"examintel/internal/app/apiresp"
	"examintel/internal/auth"
)

type resolutionService interface {
	ListUnresolvedSignals(ctx context.Context, lessonID int64, minOccurrences int) ([]UnresolvedTopicSignal, error)
	ResolveTopic(ctx context.Context, req ResolveTopicRequest, adminUserID int64) (*ResolveTopicResponse, error)
}

type Handler struct {
	svc resolutionService
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListUnresolvedTopics(w http.ResponseWriter, r *http.Request) {
	lessonID, err := parseOptionalInt64(r.URL.Query().Get("lessonId"))
	if err != nil || lessonID < 0 {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid lessonId"})
		return
	}
	minOccurrences := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("minOccurrences")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid minOccurrences"})
			return
		}
		minOccurrences = v
	}

	items, err := h.svc.ListUnresolvedSignals(r.Context(), lessonID, minOccurrences)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) ResolveTopic(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req ResolveTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	res, err := h.svc.ResolveTopic(r.Context(), req, user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: res})
}

// writeServiceError maps service sentinels to status codes. ErrConflict,
// which includes MERGED or ARCHIVED mapping targets, answers 409.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrConflict):
		writeJSON(w, r, http.StatusConflict, apiResponse{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func parseOptionalInt64(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	apiresp.WriteLegacy(w, r, code, payload.OK, payload.Data, payload.Error)
}
