package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mzurawski/wxarchive/pkg/logger"
)

// Client fetches raw payloads from the upstream weather provider.
type Client interface {
	FetchCurrent(ctx context.Context, q Query) (*CurrentPayload, error)
	FetchForecast(ctx context.Context, q Query) (*ForecastPayload, error)
	FetchHistorical(ctx context.Context, q Query, day time.Time) (*HistoricalPayload, error)
}

// RecordStore persists canonical records. Save assigns the record id and
// creation time; lookups report a miss as ErrNotFound.
type RecordStore interface {
	Save(rec *Record) (int64, error)
	GetByKey(location string, kind Kind, observedAt time.Time) (*Record, error)
	GetByID(id int64) (*Record, error)
	List(filter ListFilter) ([]*Record, error)
}

// Service runs the fetch pipeline: upstream client, normalizer, store.
// Each call handles exactly one request; concurrent calls are independent.
type Service struct {
	client Client
	store  RecordStore
	logger *logger.Logger

	// now is swapped out in tests to pin the historical day derivation.
	now func() time.Time
}

// NewService creates a weather service on top of the given client and store.
func NewService(client Client, store RecordStore, log *logger.Logger) *Service {
	return &Service{
		client: client,
		store:  store,
		logger: log.Named("weather-service"),
		now:    time.Now,
	}
}

// Current fetches, normalizes and persists the current weather for q.
// The record's observation time is the provider's measurement timestamp.
func (s *Service) Current(ctx context.Context, q Query) (*Record, error) {
	payload, err := s.client.FetchCurrent(ctx, q)
	if err != nil {
		return nil, err
	}

	if q.Country != "" && payload.Sys.Country != "" && !strings.EqualFold(payload.Sys.Country, q.Country) {
		return nil, &MalformedResponseError{
			Kind:   KindCurrent,
			Field:  "sys.country",
			Detail: fmt.Sprintf("provider returned %s for requested country %s", payload.Sys.Country, strings.ToUpper(q.Country)),
		}
	}

	rec, err := NormalizeCurrent(q.Location, payload)
	if err != nil {
		return nil, err
	}

	return s.persist(rec)
}

// Historical fetches, normalizes and persists the weather observed offset
// days before today. The record is keyed by that day at UTC midnight, so
// repeating the request on the same day targets the same record.
func (s *Service) Historical(ctx context.Context, q Query, offset int) (*Record, error) {
	day := s.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -offset)

	payload, err := s.client.FetchHistorical(ctx, q, day)
	if err != nil {
		return nil, err
	}

	rec, err := NormalizeHistorical(q.Location, day, payload)
	if err != nil {
		return nil, err
	}

	return s.persist(rec)
}

// Forecast fetches, normalizes and persists the prediction day days ahead
// of the forecast window start (0 = the window's first day).
func (s *Service) Forecast(ctx context.Context, q Query, day int) (*Record, error) {
	payload, err := s.client.FetchForecast(ctx, q)
	if err != nil {
		return nil, err
	}

	rec, err := NormalizeForecast(q.Location, day, payload)
	if err != nil {
		return nil, err
	}

	return s.persist(rec)
}

func (s *Service) persist(rec *Record) (*Record, error) {
	id, err := s.store.Save(rec)
	if err != nil {
		return nil, &StorageError{Op: "save", Err: err}
	}
	rec.ID = id

	s.logger.Debug("Stored weather record",
		logger.Int64("id", id),
		logger.String("location", rec.Location),
		logger.String("kind", string(rec.Kind)),
		logger.Time("observed_at", rec.ObservedAt))

	return rec, nil
}

// Lookup returns the stored record matching the exact key.
func (s *Service) Lookup(location string, kind Kind, observedAt time.Time) (*Record, error) {
	rec, err := s.store.GetByKey(location, kind, observedAt.UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "get", Err: err}
	}
	return rec, nil
}

// GetByID returns the stored record with the given id.
func (s *Service) GetByID(id int64) (*Record, error) {
	rec, err := s.store.GetByID(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &StorageError{Op: "get", Err: err}
	}
	return rec, nil
}

// List returns stored records matching the filter, most recent first.
func (s *Service) List(filter ListFilter) ([]*Record, error) {
	records, err := s.store.List(filter)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return records, nil
}
