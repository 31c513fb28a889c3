package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"examintel/internal/app/apiresp"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type reportService interface {
	GenerateReport(ctx context.Context, f Filter) (*ExamIntelligenceReport, error)
	ExportExcel(ctx context.Context, f Filter) ([]byte, error)
}

type Handler struct {
	svc reportService
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) IntelligenceReport(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	rep, err := h.svc.GenerateReport(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: rep})
}

func (h *Handler) IntelligenceReportExcel(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	data, err := h.svc.ExportExcel(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	name := "intelligence-report"
	if f.LessonName != "" {
		name += "-" + strings.ToLower(strings.ReplaceAll(f.LessonName, " ", "-"))
	}
	name += "-" + time.Now().UTC().Format("20060102") + ".xlsx"

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{LessonName: strings.TrimSpace(q.Get("lesson"))}
	var err error
	if f.StartYear, err = parseOptionalYear(q.Get("startYear")); err != nil {
		return Filter{}, errors.New("invalid startYear")
	}
	if f.EndYear, err = parseOptionalYear(q.Get("endYear")); err != nil {
		return Filter{}, errors.New("invalid endYear")
	}
	return f, nil
}

func parseOptionalYear(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return nil, errors.New("invalid year")
	}
	return &v, nil
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrInvalidFilter) {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	apiresp.WriteLegacy(w, r, code, payload.OK, payload.Data, payload.Error)
}
