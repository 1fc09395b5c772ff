// Package googlemaps provides a Google Distance Matrix routing provider.
package googlemaps

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/motis-project/prima-dispatch/internal/dispatch"
	"github.com/motis-project/prima-dispatch/internal/routing"
)

// ProviderName identifies this routing provider.
const ProviderName = "googlemaps"

// Provider computes durations via the Google Distance Matrix API. It serves
// as a fallback when the primary matrix provider is unavailable.
type Provider struct {
	client *maps.Client
	logger zerolog.Logger
}

// NewProvider creates a Distance Matrix provider with the given API key.
func NewProvider(apiKey string, logger zerolog.Logger) (*Provider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating maps client: %w", err)
	}
	return &Provider{client: client, logger: logger}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

// OneToMany computes car driving durations between one and each of many.
// With arriveBy set, many are the origins and one the destination.
func (p *Provider) OneToMany(ctx context.Context, one dispatch.Coordinates, many []dispatch.Coordinates, arriveBy bool) ([]*int64, error) {
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

	manyStrs := make([]string, len(many))
	for i, m := range many {
		if err := routing.ValidateCoordinates(m); err != nil {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "INVALID_DESTINATION",
				Message:  "invalid destination coordinates",
				Err:      routing.ErrInvalidCoordinates,
			}
		}
		manyStrs[i] = coordStr(m)
	}

	req := &maps.DistanceMatrixRequest{
		Mode: maps.TravelModeDriving,
	}
	if arriveBy {
		req.Origins = manyStrs
		req.Destinations = []string{coordStr(one)}
	} else {
		req.Origins = []string{coordStr(one)}
		req.Destinations = manyStrs
	}

	p.logger.Debug().
		Float64("one_lat", one.Lat).
		Float64("one_lng", one.Lng).
		Int("destinations", len(many)).
		Bool("arrive_by", arriveBy).
		Msg("requesting distance matrix from google maps")

	resp, err := p.client.DistanceMatrix(ctx, req)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      routing.ErrProviderUnavailable,
		}
	}

	durations := make([]*int64, len(many))
	if arriveBy {
		if len(resp.Rows) != len(many) {
			return nil, fmt.Errorf("matrix has %d rows, want %d", len(resp.Rows), len(many))
		}
		for i, row := range resp.Rows {
			if len(row.Elements) != 1 {
				return nil, fmt.Errorf("matrix row %d has %d elements, want 1", i, len(row.Elements))
			}
			durations[i] = elementDuration(row.Elements[0])
		}
		return durations, nil
	}

	if len(resp.Rows) != 1 {
		return nil, fmt.Errorf("matrix has %d rows, want 1", len(resp.Rows))
	}
	if len(resp.Rows[0].Elements) != len(many) {
		return nil, fmt.Errorf("matrix row has %d elements, want %d", len(resp.Rows[0].Elements), len(many))
	}
	for i, el := range resp.Rows[0].Elements {
		durations[i] = elementDuration(el)
	}
	return durations, nil
}

func elementDuration(el *maps.DistanceMatrixElement) *int64 {
	if el == nil || el.Status != "OK" {
		return nil
	}
	ms := el.Duration.Milliseconds()
	return &ms
}

func coordStr(c dispatch.Coordinates) string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lng)
}
