package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzurawski/wxarchive/pkg/logger"
)

// mockClient implements Client with canned payloads and call counting.
type mockClient struct {
	current    *CurrentPayload
	forecast   *ForecastPayload
	historical *HistoricalPayload
	err        error

	calls         int
	historicalDay time.Time
}

func (m *mockClient) FetchCurrent(ctx context.Context, q Query) (*CurrentPayload, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.current, nil
}

func (m *mockClient) FetchForecast(ctx context.Context, q Query) (*ForecastPayload, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.forecast, nil
}

func (m *mockClient) FetchHistorical(ctx context.Context, q Query, day time.Time) (*HistoricalPayload, error) {
	m.calls++
	m.historicalDay = day
	if m.err != nil {
		return nil, m.err
	}
	return m.historical, nil
}

// mockStore implements RecordStore in memory.
type mockStore struct {
	saved   []*Record
	saveErr error
	nextID  int64
}

func (m *mockStore) Save(rec *Record) (int64, error) {
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	m.nextID++
	m.saved = append(m.saved, rec)
	return m.nextID, nil
}

func (m *mockStore) GetByKey(location string, kind Kind, observedAt time.Time) (*Record, error) {
	for _, rec := range m.saved {
		if rec.Location == location && rec.Kind == kind && rec.ObservedAt.Equal(observedAt) {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockStore) GetByID(id int64) (*Record, error) {
	if id >= 1 && id <= int64(len(m.saved)) {
		return m.saved[id-1], nil
	}
	return nil, ErrNotFound
}

func (m *mockStore) List(filter ListFilter) ([]*Record, error) {
	return m.saved, nil
}

func newTestService(client Client, store RecordStore) *Service {
	return NewService(client, store, logger.NewNop())
}

func TestCurrentFetchesNormalizesPersists(t *testing.T) {
	client := &mockClient{current: validCurrentPayload()}
	store := &mockStore{}
	svc := newTestService(client, store)

	rec, err := svc.Current(context.Background(), Query{Location: "London"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), rec.ID)
	assert.Equal(t, "London", rec.Location)
	assert.Equal(t, KindCurrent, rec.Kind)
	assert.Equal(t, 15.2, rec.Temperature)
	assert.Equal(t, 60.0, rec.Humidity)
	assert.Equal(t, 1012.0, rec.Pressure)
	assert.Equal(t, "cloudy", rec.Description)
	assert.Equal(t, 1, client.calls)
	require.Len(t, store.saved, 1)
}

func TestCurrentUpstreamFailureIsNotPersisted(t *testing.T) {
	client := &mockClient{err: &UpstreamError{Op: "current", Status: 404, Body: "city not found"}}
	store := &mockStore{}
	svc := newTestService(client, store)

	_, err := svc.Current(context.Background(), Query{Location: "Nowhere"})

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, 404, upstreamErr.Status)
	assert.Empty(t, store.saved)
}

func TestCurrentMalformedPayloadIsNotPersisted(t *testing.T) {
	payload := validCurrentPayload()
	payload.Main.Pressure = nil
	client := &mockClient{current: payload}
	store := &mockStore{}
	svc := newTestService(client, store)

	_, err := svc.Current(context.Background(), Query{Location: "London"})

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "main.pressure", malformed.Field)
	assert.Empty(t, store.saved)
}

func TestCurrentCountryMismatch(t *testing.T) {
	payload := validCurrentPayload()
	payload.Sys.Country = "FR"
	client := &mockClient{current: payload}
	store := &mockStore{}
	svc := newTestService(client, store)

	_, err := svc.Current(context.Background(), Query{Location: "London", Country: "GB"})

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "sys.country", malformed.Field)
	assert.Empty(t, store.saved)
}

func TestCurrentCountryMatchIsCaseInsensitive(t *testing.T) {
	client := &mockClient{current: validCurrentPayload()}
	store := &mockStore{}
	svc := newTestService(client, store)

	_, err := svc.Current(context.Background(), Query{Location: "London", Country: "gb"})
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
}

func TestHistoricalDerivesRequestedDay(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	day := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)

	client := &mockClient{historical: &HistoricalPayload{
		Current: &HistoricalPoint{
			Dt:       i64(day.Add(12 * time.Hour).Unix()),
			Temp:     f64(8.4),
			Humidity: f64(71),
			Pressure: f64(1003),
			Weather:  []Condition{{Description: "light rain"}},
		},
	}}
	store := &mockStore{}
	svc := newTestService(client, store)
	svc.now = func() time.Time { return now }

	rec, err := svc.Historical(context.Background(), Query{Location: "Paris"}, 3)
	require.NoError(t, err)

	assert.Equal(t, day, client.historicalDay)
	assert.Equal(t, day, rec.ObservedAt)
}

func TestHistoricalSameRequestTargetsSameKey(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	client := &mockClient{historical: &HistoricalPayload{
		Current: &HistoricalPoint{
			Dt:       i64(now.AddDate(0, 0, -2).Unix()),
			Temp:     f64(8.4),
			Humidity: f64(71),
			Pressure: f64(1003),
			Weather:  []Condition{{Description: "light rain"}},
		},
	}}
	store := &mockStore{}
	svc := newTestService(client, store)
	svc.now = func() time.Time { return now }

	first, err := svc.Historical(context.Background(), Query{Location: "Paris"}, 2)
	require.NoError(t, err)
	second, err := svc.Historical(context.Background(), Query{Location: "Paris"}, 2)
	require.NoError(t, err)

	assert.Equal(t, first.ObservedAt, second.ObservedAt)
	assert.Equal(t, first.Location, second.Location)
	assert.Equal(t, first.Kind, second.Kind)
}

func TestForecastMalformedIsNotPersisted(t *testing.T) {
	client := &mockClient{forecast: &ForecastPayload{}}
	store := &mockStore{}
	svc := newTestService(client, store)

	_, err := svc.Forecast(context.Background(), Query{Location: "Berlin"}, 1)

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Empty(t, store.saved)
}

func TestForecastPersistsPredictedDay(t *testing.T) {
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	client := &mockClient{forecast: &ForecastPayload{
		List: []ForecastSlot{
			forecastSlot(base.Add(12*time.Hour), 10),
			forecastSlot(base.AddDate(0, 0, 1).Add(12*time.Hour), 13.5),
		},
	}}
	store := &mockStore{}
	svc := newTestService(client, store)

	rec, err := svc.Forecast(context.Background(), Query{Location: "Berlin"}, 1)
	require.NoError(t, err)

	assert.Equal(t, KindForecast, rec.Kind)
	assert.Equal(t, base.AddDate(0, 0, 1), rec.ObservedAt)
	require.Len(t, store.saved, 1)
}

func TestSaveFailureWrapsStorageError(t *testing.T) {
	client := &mockClient{current: validCurrentPayload()}
	store := &mockStore{saveErr: errors.New("disk full")}
	svc := newTestService(client, store)

	_, err := svc.Current(context.Background(), Query{Location: "London"})

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "save", storageErr.Op)
}

func TestLookupMissReturnsNotFound(t *testing.T) {
	svc := newTestService(&mockClient{}, &mockStore{})

	_, err := svc.Lookup("London", KindCurrent, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupReturnsStoredRecord(t *testing.T) {
	client := &mockClient{current: validCurrentPayload()}
	store := &mockStore{}
	svc := newTestService(client, store)

	rec, err := svc.Current(context.Background(), Query{Location: "London"})
	require.NoError(t, err)

	found, err := svc.Lookup("London", KindCurrent, rec.ObservedAt)
	require.NoError(t, err)
	assert.Equal(t, rec.Temperature, found.Temperature)
}
