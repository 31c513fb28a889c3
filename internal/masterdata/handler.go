package masterdata

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"examintel/internal/app/apiresp"
	"examintel/internal/auth"
)

const maxSeedBytes = 4 << 20

type taxonomyService interface {
	ListLessons(ctx context.Context) ([]Lesson, error)
	ApplySeed(ctx context.Context, actorID int64, seed *Seed) (*SeedReport, error)
}

type Handler struct {
	svc taxonomyService
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListLessons(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListLessons(r.Context())
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

// ImportSeed accepts either a multipart "file" field or a raw YAML body.
func (h *Handler) ImportSeed(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var src io.Reader
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxSeedBytes); err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid multipart form"})
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "file field is required"})
			return
		}
		defer file.Close()
		src = file
	} else {
		src = http.MaxBytesReader(w, r.Body, maxSeedBytes)
	}

	seed, err := ParseSeed(src)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}

	report, err := h.svc.ApplySeed(r.Context(), user.ID, seed)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
			return
		}
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}

	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: report})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	apiresp.WriteLegacy(w, r, code, payload.OK, payload.Data, payload.Error)
}
