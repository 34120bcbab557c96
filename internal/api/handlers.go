package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mzurawski/wxarchive/internal/weather"
	"github.com/mzurawski/wxarchive/pkg/logger"
)

// Error kinds reported in response bodies.
const (
	errKindValidation = "validation_error"
	errKindUpstream   = "upstream_error"
	errKindMalformed  = "malformed_response"
	errKindNotFound   = "not_found"
	errKindStorage    = "storage_error"
	errKindInternal   = "internal_error"
)

// errorResponse is the wire shape of every failure.
type errorResponse struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	Ping() error
}

// Handler contains the API handlers
type Handler struct {
	weatherService *weather.Service
	storage        Pinger
	logger         *logger.Logger
	validate       *validator.Validate
}

// NewHandler creates a new API handler
func NewHandler(weatherService *weather.Service, storage Pinger, logger *logger.Logger) *Handler {
	return &Handler{
		weatherService: weatherService,
		storage:        storage,
		logger:         logger.Named("api-handler"),
		validate:       validator.New(),
	}
}

type currentQuery struct {
	Location   string `validate:"required"`
	Country    string `validate:"omitempty,iso3166_1_alpha2"`
	PostalCode string `validate:"omitempty,max=16"`
}

type historicalQuery struct {
	Location string `validate:"required"`
	Country  string `validate:"omitempty,iso3166_1_alpha2"`
	Offset   int    `validate:"required,min=1,max=5"`
}

type forecastQuery struct {
	Location   string `validate:"required"`
	Country    string `validate:"omitempty,iso3166_1_alpha2"`
	PostalCode string `validate:"omitempty,max=16"`
	Day        int    `validate:"min=0,max=4"`
}

type lookupQuery struct {
	Location   string `validate:"required"`
	Kind       string `validate:"required,oneof=current historical forecast"`
	ObservedAt string `validate:"required"`
}

type listQuery struct {
	Location string `validate:"omitempty"`
	Kind     string `validate:"omitempty,oneof=current historical forecast"`
	Limit    int    `validate:"omitempty,min=1,max=1000"`
}

// GetCurrentWeather handles GET /api/v1/weather/current. The query is
// validated before any upstream call is made.
func (h *Handler) GetCurrentWeather(w http.ResponseWriter, r *http.Request) {
	q := currentQuery{
		Location:   strings.TrimSpace(r.URL.Query().Get("location")),
		Country:    strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country"))),
		PostalCode: strings.TrimSpace(r.URL.Query().Get("postal_code")),
	}
	if err := h.validate.Struct(q); err != nil {
		h.writeValidationError(w, err)
		return
	}

	rec, err := h.weatherService.Current(r.Context(), weather.Query{
		Location:   q.Location,
		Country:    q.Country,
		PostalCode: q.PostalCode,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, rec)
}

// GetHistoricalWeather handles GET /api/v1/weather/historical. The offset
// query parameter selects how many days back to look (1-5).
func (h *Handler) GetHistoricalWeather(w http.ResponseWriter, r *http.Request) {
	offsetStr := r.URL.Query().Get("offset")
	offset := 0
	if offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil {
			h.writeValidation(w, "offset must be an integer")
			return
		}
		offset = parsed
	}

	q := historicalQuery{
		Location: strings.TrimSpace(r.URL.Query().Get("location")),
		Country:  strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country"))),
		Offset:   offset,
	}
	if err := h.validate.Struct(q); err != nil {
		h.writeValidationError(w, err)
		return
	}

	rec, err := h.weatherService.Historical(r.Context(), weather.Query{
		Location: q.Location,
		Country:  q.Country,
	}, q.Offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, rec)
}

// GetForecastWeather handles GET /api/v1/weather/forecast. The day query
// parameter selects the predicted day (0-4, default 1 = tomorrow).
func (h *Handler) GetForecastWeather(w http.ResponseWriter, r *http.Request) {
	day := 1
	if dayStr := r.URL.Query().Get("day"); dayStr != "" {
		parsed, err := strconv.Atoi(dayStr)
		if err != nil {
			h.writeValidation(w, "day must be an integer")
			return
		}
		day = parsed
	}

	q := forecastQuery{
		Location:   strings.TrimSpace(r.URL.Query().Get("location")),
		Country:    strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country"))),
		PostalCode: strings.TrimSpace(r.URL.Query().Get("postal_code")),
		Day:        day,
	}
	if err := h.validate.Struct(q); err != nil {
		h.writeValidationError(w, err)
		return
	}

	rec, err := h.weatherService.Forecast(r.Context(), weather.Query{
		Location:   q.Location,
		Country:    q.Country,
		PostalCode: q.PostalCode,
	}, q.Day)
	if err != nil {
		h.writeError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, rec)
}

// LookupRecord handles GET /api/v1/records/lookup, returning the stored
// record with the exact (location, kind, observed_at) key.
func (h *Handler) LookupRecord(w http.ResponseWriter, r *http.Request) {
	q := lookupQuery{
		Location:   strings.TrimSpace(r.URL.Query().Get("location")),
		Kind:       strings.TrimSpace(r.URL.Query().Get("kind")),
		ObservedAt: strings.TrimSpace(r.URL.Query().Get("observed_at")),
	}
	if err := h.validate.Struct(q); err != nil {
		h.writeValidationError(w, err)
		return
	}

	observedAt, err := time.Parse(time.RFC3339, q.ObservedAt)
	if err != nil {
		h.writeValidation(w, "observed_at must be an RFC3339 timestamp")
		return
	}

	rec, err := h.weatherService.Lookup(q.Location, weather.Kind(q.Kind), observedAt)
	if err != nil {
		h.writeError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, rec)
}

// GetRecordByID handles GET /api/v1/records/{id}.
func (h *Handler) GetRecordByID(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.writeValidation(w, "id must be an integer")
		return
	}

	rec, err := h.weatherService.GetByID(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, rec)
}

// ListRecords handles GET /api/v1/records with optional location, kind and
// limit filters.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			h.writeValidation(w, "limit must be an integer")
			return
		}
		limit = parsed
	}

	q := listQuery{
		Location: strings.TrimSpace(r.URL.Query().Get("location")),
		Kind:     strings.TrimSpace(r.URL.Query().Get("kind")),
		Limit:    limit,
	}
	if err := h.validate.Struct(q); err != nil {
		h.writeValidationError(w, err)
		return
	}

	records, err := h.weatherService.List(weather.ListFilter{
		Location: q.Location,
		Kind:     weather.Kind(q.Kind),
		Limit:    q.Limit,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"count":     len(records),
		"records":   records,
	})
}

// GetHealth returns basic service health information, including storage
// reachability.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(); err != nil {
		h.logger.Error("Storage ping failed", logger.Error(err))
		WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unavailable",
			"service": "wxarchive",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "wxarchive",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError maps a pipeline error onto the wire taxonomy.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var upstreamErr *weather.UpstreamError
	var malformedErr *weather.MalformedResponseError
	var storageErr *weather.StorageError

	switch {
	case errors.As(err, &upstreamErr):
		status := http.StatusBadGateway
		if upstreamErr.Timeout {
			status = http.StatusGatewayTimeout
		}
		h.logger.Error("Upstream request failed",
			logger.String("op", upstreamErr.Op),
			logger.Int("upstream_status", upstreamErr.Status),
			logger.Error(err))
		WriteJSON(w, status, errorResponse{ErrorKind: errKindUpstream, Message: upstreamErr.Error()})

	case errors.As(err, &malformedErr):
		h.logger.Error("Malformed upstream response",
			logger.String("kind", string(malformedErr.Kind)),
			logger.String("field", malformedErr.Field))
		WriteJSON(w, http.StatusBadGateway, errorResponse{ErrorKind: errKindMalformed, Message: malformedErr.Error()})

	case errors.Is(err, weather.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, errorResponse{ErrorKind: errKindNotFound, Message: err.Error()})

	case errors.As(err, &storageErr):
		h.logger.Error("Storage failure",
			logger.String("op", storageErr.Op),
			logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{ErrorKind: errKindStorage, Message: storageErr.Error()})

	default:
		h.logger.Error("Unhandled error", logger.Error(err))
		WriteJSON(w, http.StatusInternalServerError, errorResponse{ErrorKind: errKindInternal, Message: "internal server error"})
	}
}

func (h *Handler) writeValidation(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, errorResponse{ErrorKind: errKindValidation, Message: msg})
}

// writeValidationError converts validator output into a readable message.
func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	h.writeValidation(w, validationMessage(err))
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := paramName(fe.Field())
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", field)
		case "min", "max":
			return fmt.Sprintf("%s is out of range", field)
		case "oneof":
			return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
		case "iso3166_1_alpha2":
			return fmt.Sprintf("%s must be a two-letter country code", field)
		}
		return fmt.Sprintf("%s is invalid", field)
	}
	return err.Error()
}

// paramName maps a struct field name to the query parameter it was bound
// from.
func paramName(field string) string {
	switch field {
	case "PostalCode":
		return "postal_code"
	case "ObservedAt":
		return "observed_at"
	}
	return strings.ToLower(field)
}
