package weather

import (
	"encoding/json"
	"time"
)

// Kind discriminates the three retrieval paths that share one record shape.
type Kind string

const (
	KindCurrent    Kind = "current"
	KindHistorical Kind = "historical"
	KindForecast   Kind = "forecast"
)

// Record is the canonical weather observation persisted by the service.
// Records are written once and never mutated afterwards.
type Record struct {
	ID          int64           `json:"id,omitempty"`
	Location    string          `json:"location"`
	Kind        Kind            `json:"kind"`
	ObservedAt  time.Time       `json:"observed_at"`
	Temperature float64         `json:"temperature"`
	Humidity    float64         `json:"humidity"`
	Pressure    float64         `json:"pressure"`
	Description string          `json:"description"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Query identifies the place a fetch is about. Location is the city name;
// Country and PostalCode narrow the lookup when supplied.
type Query struct {
	Location   string
	Country    string
	PostalCode string
}

// ListFilter narrows List results. Zero values mean no constraint.
type ListFilter struct {
	Location string
	Kind     Kind
	Limit    int
}

// MainMetrics is the measured block shared by current payloads and forecast
// slots. Pointers distinguish absent fields from zero values.
type MainMetrics struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
	Pressure *float64 `json:"pressure"`
}

// Condition is one entry of the weather condition list.
type Condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

// SysBlock carries provider metadata on the current payload.
type SysBlock struct {
	Country string `json:"country"`
}

// CityBlock carries place metadata on the forecast payload.
type CityBlock struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

// CurrentPayload mirrors the provider's current weather response.
type CurrentPayload struct {
	Name    string       `json:"name"`
	Dt      *int64       `json:"dt"`
	Main    *MainMetrics `json:"main"`
	Weather []Condition  `json:"weather"`
	Sys     SysBlock     `json:"sys"`

	// Raw holds the upstream response body verbatim, kept for auditing.
	Raw json.RawMessage `json:"-"`
}

// HistoricalPoint is the single observation block of a timemachine response.
type HistoricalPoint struct {
	Dt       *int64      `json:"dt"`
	Temp     *float64    `json:"temp"`
	Humidity *float64    `json:"humidity"`
	Pressure *float64    `json:"pressure"`
	Weather  []Condition `json:"weather"`
}

// HistoricalPayload mirrors the provider's timemachine response for one past day.
type HistoricalPayload struct {
	Lat     float64          `json:"lat"`
	Lon     float64          `json:"lon"`
	Current *HistoricalPoint `json:"current"`

	Raw json.RawMessage `json:"-"`
}

// ForecastSlot is one three-hour step of a forecast response.
type ForecastSlot struct {
	Dt      *int64       `json:"dt"`
	Main    *MainMetrics `json:"main"`
	Weather []Condition  `json:"weather"`
}

// ForecastPayload mirrors the provider's five-day forecast response.
type ForecastPayload struct {
	List []ForecastSlot `json:"list"`
	City CityBlock      `json:"city"`

	Raw json.RawMessage `json:"-"`
}

// Coordinates is a geocoding result.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
