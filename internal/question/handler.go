package question

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"examintel/internal/app/apiresp"
)

type questionReader interface {
	Get(ctx context.Context, id int64) (*ExamQuestion, error)
}

type Handler struct {
	svc questionReader
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Get exposes one question with its unmatched suggestions and parsed
// analysis payload, for reviewing a signal's example questions.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		return
	}

	q, err := h.svc.Get(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuestionNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, "question not found")
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, q)
}
