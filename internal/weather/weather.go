// Package weather fetches daily observations from the Visual Crossing timeline API
// and flattens them into staging records.
package weather

import (
	"errors"
	"fmt"
	"time"

	"github.com/climadw/climadw/internal/config"
)

// DateLayout is the calendar date format used by the timeline API.
const DateLayout = "2006-01-02"

// Location is a place resolvable by name by the weather service.
type Location struct {
	Name    string
	Country string
}

// LocationsFromConfig converts configured locations, preserving order.
func LocationsFromConfig(locs []config.Location) []Location {
	out := make([]Location, len(locs))
	for i, l := range locs {
		out[i] = Location{Name: l.Name, Country: l.Country}
	}
	return out
}

// Observation is one day of weather for one location.
type Observation struct {
	City        string
	Country     string
	Date        time.Time
	Temp        *float64
	Conditions  *string
	Description *string
}

// Failure records a location that was skipped.
type Failure struct {
	Location string
	Err      error
}

// Result is the outcome of fetching every configured location.
type Result struct {
	Observations []Observation
	Succeeded    []string
	Failed       []Failure
}

// Empty reports whether there is nothing to load.
func (r *Result) Empty() bool {
	return r == nil || len(r.Observations) == 0
}

// FetchError is returned when the service answers a location request with a non-success status.
type FetchError struct {
	Location   string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("weather service returned %d for %s: %s", e.StatusCode, e.Location, e.Body)
}

// ErrTooManyFailures aborts a fetch once the consecutive failure threshold is reached.
var ErrTooManyFailures = errors.New("too many consecutive location failures")
