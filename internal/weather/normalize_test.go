package weather

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func validCurrentPayload() *CurrentPayload {
	return &CurrentPayload{
		Name: "London",
		Dt:   i64(1741600000),
		Main: &MainMetrics{
			Temp:     f64(15.2),
			Humidity: f64(60),
			Pressure: f64(1012),
		},
		Weather: []Condition{{Main: "Clouds", Description: "cloudy"}},
		Sys:     SysBlock{Country: "GB"},
		Raw:     json.RawMessage(`{"name":"London"}`),
	}
}

func forecastSlot(ts time.Time, temp float64) ForecastSlot {
	return ForecastSlot{
		Dt: i64(ts.Unix()),
		Main: &MainMetrics{
			Temp:     f64(temp),
			Humidity: f64(55),
			Pressure: f64(1018),
		},
		Weather: []Condition{{Main: "Clouds", Description: "scattered clouds"}},
	}
}

func TestNormalizeCurrent(t *testing.T) {
	rec, err := NormalizeCurrent("London", validCurrentPayload())
	require.NoError(t, err)

	assert.Equal(t, "London", rec.Location)
	assert.Equal(t, KindCurrent, rec.Kind)
	assert.Equal(t, time.Unix(1741600000, 0).UTC(), rec.ObservedAt)
	assert.Equal(t, 15.2, rec.Temperature)
	assert.Equal(t, 60.0, rec.Humidity)
	assert.Equal(t, 1012.0, rec.Pressure)
	assert.Equal(t, "cloudy", rec.Description)
	assert.JSONEq(t, `{"name":"London"}`, string(rec.RawPayload))
}

func TestNormalizeCurrentIsPure(t *testing.T) {
	p := validCurrentPayload()

	first, err := NormalizeCurrent("London", p)
	require.NoError(t, err)
	second, err := NormalizeCurrent("London", p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalizeCurrentMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *CurrentPayload)
		field  string
	}{
		{"missing dt", func(p *CurrentPayload) { p.Dt = nil }, "dt"},
		{"missing main", func(p *CurrentPayload) { p.Main = nil }, "main"},
		{"missing temperature", func(p *CurrentPayload) { p.Main.Temp = nil }, "main.temp"},
		{"missing humidity", func(p *CurrentPayload) { p.Main.Humidity = nil }, "main.humidity"},
		{"missing pressure", func(p *CurrentPayload) { p.Main.Pressure = nil }, "main.pressure"},
		{"missing conditions", func(p *CurrentPayload) { p.Weather = nil }, "weather"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validCurrentPayload()
			tt.mutate(p)

			_, err := NormalizeCurrent("London", p)

			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, KindCurrent, malformed.Kind)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestNormalizeHistorical(t *testing.T) {
	day := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	p := &HistoricalPayload{
		Lat: 48.8566,
		Lon: 2.3522,
		Current: &HistoricalPoint{
			Dt:       i64(day.Add(13 * time.Hour).Unix()),
			Temp:     f64(8.4),
			Humidity: f64(71),
			Pressure: f64(1003),
			Weather:  []Condition{{Main: "Rain", Description: "light rain"}},
		},
		Raw: json.RawMessage(`{"lat":48.8566}`),
	}

	rec, err := NormalizeHistorical("Paris", day, p)
	require.NoError(t, err)

	assert.Equal(t, "Paris", rec.Location)
	assert.Equal(t, KindHistorical, rec.Kind)
	// the record is stamped with the requested day, not the payload timestamp
	assert.Equal(t, day, rec.ObservedAt)
	assert.Equal(t, 8.4, rec.Temperature)
	assert.Equal(t, 71.0, rec.Humidity)
	assert.Equal(t, 1003.0, rec.Pressure)
	assert.Equal(t, "light rain", rec.Description)
}

func TestNormalizeHistoricalMissingFields(t *testing.T) {
	day := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)

	valid := func() *HistoricalPayload {
		return &HistoricalPayload{
			Current: &HistoricalPoint{
				Dt:       i64(day.Unix()),
				Temp:     f64(8.4),
				Humidity: f64(71),
				Pressure: f64(1003),
				Weather:  []Condition{{Description: "light rain"}},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(p *HistoricalPayload)
		field  string
	}{
		{"missing current", func(p *HistoricalPayload) { p.Current = nil }, "current"},
		{"missing temperature", func(p *HistoricalPayload) { p.Current.Temp = nil }, "current.temp"},
		{"missing humidity", func(p *HistoricalPayload) { p.Current.Humidity = nil }, "current.humidity"},
		{"missing pressure", func(p *HistoricalPayload) { p.Current.Pressure = nil }, "current.pressure"},
		{"missing conditions", func(p *HistoricalPayload) { p.Current.Weather = nil }, "current.weather"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)

			_, err := NormalizeHistorical("Paris", day, p)

			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, KindHistorical, malformed.Kind)
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestNormalizeForecastPicksNoonSlot(t *testing.T) {
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	p := &ForecastPayload{
		City: CityBlock{Name: "Berlin", Country: "DE"},
		List: []ForecastSlot{
			forecastSlot(base.Add(9*time.Hour), 10),
			forecastSlot(base.Add(12*time.Hour), 11),
			forecastSlot(base.AddDate(0, 0, 1), 5),
			forecastSlot(base.AddDate(0, 0, 1).Add(9*time.Hour), 12),
			forecastSlot(base.AddDate(0, 0, 1).Add(12*time.Hour), 13.5),
			forecastSlot(base.AddDate(0, 0, 1).Add(15*time.Hour), 14),
			forecastSlot(base.AddDate(0, 0, 2).Add(12*time.Hour), 20),
		},
	}

	rec, err := NormalizeForecast("Berlin", 1, p)
	require.NoError(t, err)

	assert.Equal(t, KindForecast, rec.Kind)
	assert.Equal(t, base.AddDate(0, 0, 1), rec.ObservedAt)
	assert.Equal(t, 13.5, rec.Temperature)
	assert.Equal(t, "scattered clouds", rec.Description)
}

func TestNormalizeForecastDayZero(t *testing.T) {
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	p := &ForecastPayload{
		List: []ForecastSlot{
			forecastSlot(base.Add(9*time.Hour), 10),
			forecastSlot(base.Add(12*time.Hour), 11),
			forecastSlot(base.AddDate(0, 0, 1).Add(12*time.Hour), 13.5),
		},
	}

	rec, err := NormalizeForecast("Berlin", 0, p)
	require.NoError(t, err)

	assert.Equal(t, base, rec.ObservedAt)
	assert.Equal(t, 11.0, rec.Temperature)
}

func TestNormalizeForecastIsPure(t *testing.T) {
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	p := &ForecastPayload{
		List: []ForecastSlot{
			forecastSlot(base.Add(11*time.Hour), 10),
			forecastSlot(base.Add(13*time.Hour), 12),
		},
	}

	first, err := NormalizeForecast("Berlin", 0, p)
	require.NoError(t, err)
	second, err := NormalizeForecast("Berlin", 0, p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalizeForecastMalformed(t *testing.T) {
	base := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("empty list", func(t *testing.T) {
		_, err := NormalizeForecast("Berlin", 1, &ForecastPayload{})

		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "list", malformed.Field)
	})

	t.Run("no entries for requested day", func(t *testing.T) {
		p := &ForecastPayload{
			List: []ForecastSlot{forecastSlot(base.Add(12*time.Hour), 10)},
		}

		_, err := NormalizeForecast("Berlin", 3, p)

		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "list", malformed.Field)
		assert.Contains(t, malformed.Error(), "day 3")
	})

	t.Run("missing slot timestamp", func(t *testing.T) {
		slot := forecastSlot(base.Add(12*time.Hour), 10)
		broken := forecastSlot(base.Add(15*time.Hour), 11)
		broken.Dt = nil

		_, err := NormalizeForecast("Berlin", 0, &ForecastPayload{List: []ForecastSlot{slot, broken}})

		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "list[1].dt", malformed.Field)
	})

	t.Run("missing slot metrics", func(t *testing.T) {
		slot := forecastSlot(base.Add(12*time.Hour), 10)
		slot.Main = nil

		_, err := NormalizeForecast("Berlin", 0, &ForecastPayload{List: []ForecastSlot{slot}})

		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "list[0].main", malformed.Field)
	})
}
