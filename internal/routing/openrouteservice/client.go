// Package openrouteservice provides a client for the OpenRouteService matrix API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/routing"
	"github.com/motis-project/prima-dispatch/internal/routing/resilience"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// profile is the routing profile for all dispatch legs.
	profile = "driving-car"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService matrix API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// OneToMany computes car driving durations between one and each of many using
// a single matrix request. With arriveBy set, durations are measured towards
// one; otherwise away from it.
func (c *Client) OneToMany(ctx context.Context, one dispatch.Coordinates, many []dispatch.Coordinates, arriveBy bool) ([]*int64, error) {
	if err := routing.ValidateCoordinates(one); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      routing.ErrInvalidCoordinates,
		}
	}
	if len(many) == 0 {
		return nil, nil
	}

	// ORS uses [lon, lat] order (GeoJSON). Index 0 holds the single point,
	// the destinations follow.
	locations := make([][]float64, 0, len(many)+1)
	locations = append(locations, []float64{one.Lng, one.Lat})
	for _, m := range many {
		if err := routing.ValidateCoordinates(m); err != nil {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "INVALID_DESTINATION",
				Message:  "invalid destination coordinates",
				Err:      routing.ErrInvalidCoordinates,
			}
		}
		locations = append(locations, []float64{m.Lng, m.Lat})
	}

	manyIndices := make([]int, len(many))
	for i := range many {
		manyIndices[i] = i + 1
	}
	orsReq := orsMatrixRequest{
		Locations: locations,
		Metrics:   []string{"duration"},
		Units:     "m",
	}
	if arriveBy {
		orsReq.Sources = manyIndices
		orsReq.Destinations = []int{0}
	} else {
		orsReq.Sources = []int{0}
		orsReq.Destinations = manyIndices
	}

	body, err := json.Marshal(orsReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/matrix/%s", c.baseURL, profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Float64("one_lat", one.Lat).
		Float64("one_lng", one.Lng).
		Int("destinations", len(many)).
		Bool("arrive_by", arriveBy).
		Msg("requesting duration matrix from ORS")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      routing.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var orsResp orsMatrixResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	durations, err := c.toDurations(&orsResp, len(many), arriveBy)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("durations", len(durations)).
		Msg("received duration matrix from ORS")

	return durations, nil
}

// toDurations flattens the matrix to one duration per destination, converting
// seconds to milliseconds.
func (c *Client) toDurations(resp *orsMatrixResponse, count int, arriveBy bool) ([]*int64, error) {
	durations := make([]*int64, count)
	if arriveBy {
		if len(resp.Durations) != count {
			return nil, fmt.Errorf("matrix has %d rows, want %d", len(resp.Durations), count)
		}
		for i, row := range resp.Durations {
			if len(row) != 1 {
				return nil, fmt.Errorf("matrix row %d has %d columns, want 1", i, len(row))
			}
			durations[i] = toMilli(row[0])
		}
		return durations, nil
	}

	if len(resp.Durations) != 1 {
		return nil, fmt.Errorf("matrix has %d rows, want 1", len(resp.Durations))
	}
	if len(resp.Durations[0]) != count {
		return nil, fmt.Errorf("matrix row has %d columns, want %d", len(resp.Durations[0]), count)
	}
	for i, d := range resp.Durations[0] {
		durations[i] = toMilli(d)
	}
	return durations, nil
}

func toMilli(seconds *float64) *int64 {
	if seconds == nil {
		return nil
	}
	ms := int64(*seconds * 1000)
	return &ms
}

// handleErrorResponse maps ORS error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	if err := json.Unmarshal(body, &orsErr); err != nil {
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("routing provider returned status %d", statusCode),
			Err:      routing.ErrProviderUnavailable,
		}
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case http.StatusForbidden:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "API access denied - check API key configuration",
			Err:      routing.ErrProviderUnavailable,
		}
	case http.StatusBadRequest:
		if orsErr.Error.Code == orsErrorCodeInvalidParam {
			return &routing.Error{
				Provider: ProviderName,
				Code:     "INVALID_PARAMETER",
				Message:  orsErr.Error.Message,
				Err:      routing.ErrInvalidCoordinates,
			}
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  orsErr.Error.Message,
			Err:      routing.ErrInvalidCoordinates,
		}
	default:
		if statusCode >= 500 {
			return &routing.Error{
				Provider: ProviderName,
				Code:     fmt.Sprintf("SERVER_%d", statusCode),
				Message:  "routing provider is temporarily unavailable",
				Err:      routing.ErrProviderUnavailable,
			}
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  orsErr.Error.Message,
			Err:      routing.ErrProviderUnavailable,
		}
	}
}
