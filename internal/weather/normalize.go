package weather

import (
	"fmt"
	"time"
)

// NormalizeCurrent projects a current weather payload onto the canonical
// record. The observation time is the provider's measurement timestamp.
// Pure: the same payload always yields the same record.
func NormalizeCurrent(location string, p *CurrentPayload) (*Record, error) {
	if p.Dt == nil {
		return nil, &MalformedResponseError{Kind: KindCurrent, Field: "dt"}
	}
	if p.Main == nil {
		return nil, &MalformedResponseError{Kind: KindCurrent, Field: "main"}
	}
	if p.Main.Temp == nil {
		return nil, &MalformedResponseError{Kind: KindCurrent, Field: "main.temp"}
	}
	if p.Main.Humidity == nil {
		return nil, &MalformedResponseError{Kind: KindCurrent, Field: "main.humidity"}
	}
	if p.Main.Pressure == nil {
		return nil, &MalformedResponseError{Kind: KindCurrent, Field: "main.pressure"}
	}
	if len(p.Weather) == 0 {
		return nil, &MalformedResponseError{Kind: KindCurrent, Field: "weather"}
	}

	return &Record{
		Location:    location,
		Kind:        KindCurrent,
		ObservedAt:  time.Unix(*p.Dt, 0).UTC(),
		Temperature: *p.Main.Temp,
		Humidity:    *p.Main.Humidity,
		Pressure:    *p.Main.Pressure,
		Description: p.Weather[0].Description,
		RawPayload:  p.Raw,
	}, nil
}

// NormalizeHistorical projects a timemachine payload onto the canonical
// record. The observation time is the requested past day at UTC midnight,
// so the same request always maps to the same record key.
func NormalizeHistorical(location string, day time.Time, p *HistoricalPayload) (*Record, error) {
	c := p.Current
	if c == nil {
		return nil, &MalformedResponseError{Kind: KindHistorical, Field: "current"}
	}
	if c.Temp == nil {
		return nil, &MalformedResponseError{Kind: KindHistorical, Field: "current.temp"}
	}
	if c.Humidity == nil {
		return nil, &MalformedResponseError{Kind: KindHistorical, Field: "current.humidity"}
	}
	if c.Pressure == nil {
		return nil, &MalformedResponseError{Kind: KindHistorical, Field: "current.pressure"}
	}
	if len(c.Weather) == 0 {
		return nil, &MalformedResponseError{Kind: KindHistorical, Field: "current.weather"}
	}

	return &Record{
		Location:    location,
		Kind:        KindHistorical,
		ObservedAt:  day.UTC().Truncate(24 * time.Hour),
		Temperature: *c.Temp,
		Humidity:    *c.Humidity,
		Pressure:    *c.Pressure,
		Description: c.Weather[0].Description,
		RawPayload:  p.Raw,
	}, nil
}

// NormalizeForecast projects a five-day forecast payload onto the canonical
// record for one predicted day. Day 0 is the date of the first slot; the
// representative slot is the one closest to noon UTC of the chosen day and
// the observation time is that day at UTC midnight.
func NormalizeForecast(location string, day int, p *ForecastPayload) (*Record, error) {
	if len(p.List) == 0 {
		return nil, &MalformedResponseError{Kind: KindForecast, Field: "list"}
	}
	if p.List[0].Dt == nil {
		return nil, &MalformedResponseError{Kind: KindForecast, Field: "list[0].dt"}
	}

	base := time.Unix(*p.List[0].Dt, 0).UTC().Truncate(24 * time.Hour)
	target := base.AddDate(0, 0, day)
	noon := target.Add(12 * time.Hour)

	var best *ForecastSlot
	var bestIdx int
	var bestDelta time.Duration
	for i := range p.List {
		if p.List[i].Dt == nil {
			return nil, &MalformedResponseError{Kind: KindForecast, Field: fmt.Sprintf("list[%d].dt", i)}
		}
		ts := time.Unix(*p.List[i].Dt, 0).UTC()
		if !ts.Truncate(24 * time.Hour).Equal(target) {
			continue
		}
		delta := ts.Sub(noon)
		if delta < 0 {
			delta = -delta
		}
		if best == nil || delta < bestDelta {
			best = &p.List[i]
			bestIdx = i
			bestDelta = delta
		}
	}
	if best == nil {
		return nil, &MalformedResponseError{
			Kind:   KindForecast,
			Field:  "list",
			Detail: fmt.Sprintf("no entries for day %d", day),
		}
	}

	if best.Main == nil {
		return nil, &MalformedResponseError{Kind: KindForecast, Field: fmt.Sprintf("list[%d].main", bestIdx)}
	}
	if best.Main.Temp == nil {
		return nil, &MalformedResponseError{Kind: KindForecast, Field: fmt.Sprintf("list[%d].main.temp", bestIdx)}
	}
	if best.Main.Humidity == nil {
		return nil, &MalformedResponseError{Kind: KindForecast, Field: fmt.Sprintf("list[%d].main.humidity", bestIdx)}
	}
	if best.Main.Pressure == nil {
		return nil, &MalformedResponseError{Kind: KindForecast, Field: fmt.Sprintf("list[%d].main.pressure", bestIdx)}
	}
	if len(best.Weather) == 0 {
		return nil, &MalformedResponseError{Kind: KindForecast, Field: fmt.Sprintf("list[%d].weather", bestIdx)}
	}

	return &Record{
		Location:    location,
		Kind:        KindForecast,
		ObservedAt:  target,
		Temperature: *best.Main.Temp,
		Humidity:    *best.Main.Humidity,
		Pressure:    *best.Main.Pressure,
		Description: best.Weather[0].Description,
		RawPayload:  p.Raw,
	}, nil
}
