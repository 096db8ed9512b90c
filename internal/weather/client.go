package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/climadw/climadw/internal/config"
)

const maxErrorBody = 64 << 10

// Client requests one date range per location from the timeline endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	unitGroup  string
	windowDays int
	maxFails   uint32
	http       *http.Client
	logger     *slog.Logger

	// now is replaced in tests.
	now func() time.Time
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient and a nil
// logger uses slog.Default().
func NewClient(cfg config.WeatherConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultBaseURL
	}
	unitGroup := cfg.UnitGroup
	if unitGroup == "" {
		unitGroup = "metric"
	}
	window := cfg.WindowDays
	if window <= 0 {
		window = 4
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		unitGroup:  unitGroup,
		windowDays: window,
		maxFails:   cfg.MaxConsecutiveFailures,
		http:       httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Window returns the requested date range: windowDays before today through today.
func (c *Client) Window() (start, end time.Time) {
	now := c.now()
	end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start = end.AddDate(0, 0, -c.windowDays)
	return start, end
}

// Fetch requests every location in order. Locations that fail are logged and
// skipped; the returned error is non-nil only when the context is done or the
// consecutive failure threshold trips.
func (c *Client) Fetch(ctx context.Context, locations []Location) (*Result, error) {
	start, end := c.Window()
	result := &Result{}

	var breaker *gobreaker.CircuitBreaker
	if c.maxFails > 0 {
		threshold := c.maxFails
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "weather-fetch",
			MaxRequests: 1,
			// a tripped breaker stays open for the rest of the run
			Timeout: 24 * time.Hour,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}

	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		obs, err := c.fetchGuarded(ctx, breaker, loc, start, end)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			c.logger.Warn("fetch failed, skipping location", "location", loc.Name, "error", err)
			result.Failed = append(result.Failed, Failure{Location: loc.Name, Err: err})

			if breaker != nil && breaker.State() == gobreaker.StateOpen {
				return result, fmt.Errorf("%w: %d in a row, last was %s", ErrTooManyFailures, c.maxFails, loc.Name)
			}
			continue
		}

		c.logger.Info("collected observations", "location", loc.Name, "days", len(obs))
		result.Observations = append(result.Observations, obs...)
		result.Succeeded = append(result.Succeeded, loc.Name)
	}

	return result, nil
}

func (c *Client) fetchGuarded(ctx context.Context, breaker *gobreaker.CircuitBreaker, loc Location, start, end time.Time) ([]Observation, error) {
	if breaker == nil {
		return c.FetchLocation(ctx, loc, start, end)
	}
	out, err := breaker.Execute(func() (interface{}, error) {
		return c.FetchLocation(ctx, loc, start, end)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Observation), nil
}

type timelineResponse struct {
	Days []timelineDay `json:"days"`
}

type timelineDay struct {
	Datetime    string   `json:"datetime"`
	Temp        *float64 `json:"temp"`
	Conditions  *string  `json:"conditions"`
	Description *string  `json:"description"`
}

// FetchLocation issues one range request and flattens every returned day.
func (c *Client) FetchLocation(ctx context.Context, loc Location, start, end time.Time) ([]Observation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(loc.Name, start, end), nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", loc.Name, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", loc.Name, redactQuery(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &FetchError{
			Location:   loc.Name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var payload timelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding response for %s: %w", loc.Name, err)
	}

	return flatten(loc, payload.Days)
}

func (c *Client) requestURL(location string, start, end time.Time) string {
	values := url.Values{}
	values.Set("unitGroup", c.unitGroup)
	values.Set("include", "days")
	values.Set("key", c.apiKey)
	values.Set("contentType", "json")

	return fmt.Sprintf("%s/%s/%s/%s?%s",
		c.baseURL,
		url.PathEscape(location),
		start.Format(DateLayout),
		end.Format(DateLayout),
		values.Encode(),
	)
}

// flatten converts the days of one response into observations. A day without a
// description takes its conditions as the description.
func flatten(loc Location, days []timelineDay) ([]Observation, error) {
	out := make([]Observation, 0, len(days))
	for _, d := range days {
		date, err := time.Parse(DateLayout, d.Datetime)
		if err != nil {
			return nil, fmt.Errorf("parsing date %q for %s: %w", d.Datetime, loc.Name, err)
		}
		desc := d.Description
		if desc == nil {
			desc = d.Conditions
		}
		out = append(out, Observation{
			City:        loc.Name,
			Country:     loc.Country,
			Date:        date,
			Temp:        d.Temp,
			Conditions:  d.Conditions,
			Description: desc,
		})
	}
	return out, nil
}

// redactQuery drops the query string, which carries the API key, from a
// transport error.
func redactQuery(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		return &url.Error{Op: ue.Op, URL: "<redacted>", Err: ue.Err}
	}
	u.RawQuery = ""
	u.User = nil
	return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
}
