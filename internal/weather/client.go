package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mzurawski/wxarchive/pkg/logger"
)

// Provider API paths.
const (
	currentPath     = "/data/2.5/weather"
	forecastPath    = "/data/2.5/forecast"
	timemachinePath = "/data/2.5/onecall/timemachine"
	geocodePath     = "/geo/1.0/direct"
)

// OpenWeatherClient fetches weather data from the OpenWeatherMap API.
// Every fetch is a single attempt: a failed request is reported to the
// caller, never retried. A circuit breaker sheds load from the provider
// after sustained transport or server-side failures.
type OpenWeatherClient struct {
	baseURL    string
	apiKey     string
	units      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewOpenWeatherClient creates a client for the given provider endpoint.
// The timeout bounds each request end to end.
func NewOpenWeatherClient(baseURL, apiKey, units string, breakerEnabled bool, timeout time.Duration, log *logger.Logger) *OpenWeatherClient {
	var cb *gobreaker.CircuitBreaker
	if breakerEnabled {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openweather",
			MaxRequests: 3,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				// Responses in the 4xx range are the caller's problem,
				// not a provider outage.
				var upstreamErr *UpstreamError
				if errors.As(err, &upstreamErr) && upstreamErr.Status >= 400 && upstreamErr.Status < 500 {
					return true
				}
				return false
			},
		})
	}

	return &OpenWeatherClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		units:      units,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
		logger:     log.Named("owm-client"),
	}
}

// FetchCurrent retrieves the current weather for the queried place.
func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, q Query) (*CurrentPayload, error) {
	params := url.Values{}
	addPlaceParams(params, q)
	params.Set("units", c.units)

	c.logger.Debug("Fetching current weather",
		logger.String("location", q.Location),
		logger.String("country", q.Country))

	body, err := c.get(ctx, "current", currentPath, params)
	if err != nil {
		return nil, err
	}

	var payload CurrentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformedFromJSON(KindCurrent, err)
	}
	payload.Raw = json.RawMessage(body)
	return &payload, nil
}

// FetchForecast retrieves the five-day forecast for the queried place.
func (c *OpenWeatherClient) FetchForecast(ctx context.Context, q Query) (*ForecastPayload, error) {
	params := url.Values{}
	addPlaceParams(params, q)
	params.Set("units", c.units)

	c.logger.Debug("Fetching forecast",
		logger.String("location", q.Location),
		logger.String("country", q.Country))

	body, err := c.get(ctx, "forecast", forecastPath, params)
	if err != nil {
		return nil, err
	}

	var payload ForecastPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformedFromJSON(KindForecast, err)
	}
	payload.Raw = json.RawMessage(body)
	return &payload, nil
}

// FetchHistorical retrieves the weather observed on the given past day.
// The timemachine endpoint is keyed by coordinates, so the place is
// geocoded first.
func (c *OpenWeatherClient) FetchHistorical(ctx context.Context, q Query, day time.Time) (*HistoricalPayload, error) {
	coords, err := c.geocode(ctx, q)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	params.Set("dt", strconv.FormatInt(day.Unix(), 10))
	params.Set("units", c.units)

	c.logger.Debug("Fetching historical weather",
		logger.String("location", q.Location),
		logger.Time("day", day))

	body, err := c.get(ctx, "historical", timemachinePath, params)
	if err != nil {
		return nil, err
	}

	var payload HistoricalPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, malformedFromJSON(KindHistorical, err)
	}
	payload.Raw = json.RawMessage(body)
	return &payload, nil
}

// geocode resolves the queried place to coordinates using the provider's
// geocoding endpoint.
func (c *OpenWeatherClient) geocode(ctx context.Context, q Query) (*Coordinates, error) {
	params := url.Values{}
	if q.Country != "" {
		params.Set("q", q.Location+","+q.Country)
	} else {
		params.Set("q", q.Location)
	}
	params.Set("limit", "1")

	body, err := c.get(ctx, "geocode", geocodePath, params)
	if err != nil {
		return nil, err
	}

	var places []Coordinates
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, malformedFromJSON(KindHistorical, err)
	}
	if len(places) == 0 {
		return nil, fmt.Errorf("%w: no coordinates for location %q", ErrNotFound, q.Location)
	}
	return &places[0], nil
}

// get performs one GET request against the provider and returns the
// response body. The API key is appended here and never appears in
// returned errors or log output.
func (c *OpenWeatherClient) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	params.Set("appid", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if c.breaker == nil {
		return c.do(op, req)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(op, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("Circuit breaker rejected upstream request",
				logger.String("op", op))
			return nil, &UpstreamError{Op: op, Err: err}
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (c *OpenWeatherClient) do(op string, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Unexpected status code from upstream",
			logger.String("op", op),
			logger.Int("status_code", resp.StatusCode),
			logger.String("body_preview", bodyPreview(body)))
		return nil, &UpstreamError{
			Op:     op,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	return body, nil
}

// transportError folds a transport failure into an UpstreamError. The
// *url.Error wrapper is unwrapped because its message echoes the full
// request URL, which carries the API key.
func transportError(op string, err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &UpstreamError{Op: op, Timeout: urlErr.Timeout(), Err: urlErr.Err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Op: op, Timeout: true, Err: err}
	}
	return &UpstreamError{Op: op, Err: err}
}

// addPlaceParams sets the place selector: postal code when supplied,
// otherwise the city name, each optionally qualified by country.
func addPlaceParams(params url.Values, q Query) {
	if q.PostalCode != "" {
		zip := q.PostalCode
		if q.Country != "" {
			zip += "," + q.Country
		}
		params.Set("zip", zip)
		return
	}
	if q.Country != "" {
		params.Set("q", q.Location+","+q.Country)
		return
	}
	params.Set("q", q.Location)
}

func bodyPreview(body []byte) string {
	const maxPreview = 200
	s := strings.TrimSpace(string(body))
	if len(s) > maxPreview {
		return s[:maxPreview] + "..."
	}
	return s
}
