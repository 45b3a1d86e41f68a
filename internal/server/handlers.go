package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/tigerroll/bikeshare/internal/dataset"
	"github.com/tigerroll/bikeshare/internal/domain/model"
	"github.com/tigerroll/bikeshare/internal/query"
	"github.com/tigerroll/bikeshare/internal/support/exception"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// QueryService is what the handlers need from query.Service.
type QueryService interface {
	Query(ctx context.Context, requestID string, req query.Request) (*query.Response, error)
	Options(ctx context.Context) (query.Options, error)
	Reload(ctx context.Context) (*dataset.Dataset, error)
}

// Handler serves the query API.
type Handler struct {
	service QueryService
}

// NewHandler creates a Handler over service.
func NewHandler(service QueryService) *Handler {
	return &Handler{service: service}
}

type errorBody struct {
	Error     string `json:"error"`
	Line      int    `json:"line,omitempty"`
	Column    string `json:"column,omitempty"`
	RequestID string `json:"request_id"`
}

type reloadBody struct {
	Source   string              `json:"source"`
	Records  int                 `json:"records"`
	Dataset  dataset.Fingerprint `json:"dataset"`
	LoadedAt string              `json:"loaded_at"`
}

// HealthCheck reports liveness. It does not touch the dataset.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetOptions returns the selectable years, seasons and working-day choices.
func (h *Handler) GetOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.Options(r.Context())
	if err != nil {
		h.datasetUnavailable(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// GetQuery runs a dashboard query described by the URL parameters.
func (h *Handler) GetQuery(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	req, err := ParseRequest(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), RequestID: requestID})
		return
	}
	resp, err := h.service.Query(r.Context(), requestID, req)
	if err != nil {
		h.datasetUnavailable(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostReload drops the cached dataset and loads it again.
func (h *Handler) PostReload(w http.ResponseWriter, r *http.Request) {
	ds, err := h.service.Reload(r.Context())
	if err != nil {
		h.datasetUnavailable(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reloadBody{
		Source:   ds.Source.String(),
		Records:  ds.Len(),
		Dataset:  ds.Fingerprint,
		LoadedAt: ds.LoadedAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) datasetUnavailable(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetReqID(r.Context())
	if errors.Is(err, context.Canceled) {
		logger.Debugf("Request %s cancelled by client.", requestID)
		return
	}
	logger.Errorf("Request %s: dataset unavailable: %v", requestID, err)
	body := errorBody{Error: "dataset unavailable: " + exception.ExtractErrorMessage(err), RequestID: requestID}
	if dfe, ok := exception.AsDataFormatError(err); ok {
		body.Error = dfe.Error()
		body.Line = dfe.Line
		body.Column = dfe.Column
	}
	writeJSON(w, http.StatusServiceUnavailable, body)
}

// ParseRequest converts URL parameters into a query.Request.
//
// An absent year or season parameter selects every value; a present but empty
// one (year=) selects nothing. Values may repeat or be comma separated.
// working_day defaults to false.
func ParseRequest(values url.Values) (query.Request, error) {
	var req query.Request

	if raw, ok := values["year"]; ok {
		req.Years = make([]int, 0, len(raw))
		for _, v := range splitValues(raw) {
			year, err := strconv.Atoi(v)
			if err != nil {
				return query.Request{}, fmt.Errorf("invalid year %q", v)
			}
			req.Years = append(req.Years, year)
		}
	}

	if raw, ok := values["season"]; ok {
		req.Seasons = make([]model.Season, 0, len(raw))
		for _, v := range splitValues(raw) {
			season, err := model.ParseSeason(v)
			if err != nil {
				return query.Request{}, err
			}
			req.Seasons = append(req.Seasons, season)
		}
	}

	if raw := values.Get("working_day"); raw != "" {
		wd, err := strconv.ParseBool(raw)
		if err != nil {
			return query.Request{}, fmt.Errorf("invalid working_day %q (expected true or false)", raw)
		}
		req.WorkingDay = wd
	}
	return req, nil
}

func splitValues(raw []string) []string {
	var out []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warnf("Failed to encode response: %v", err)
	}
}
