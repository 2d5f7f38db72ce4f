// Package geo resolves addresses to coordinates and measures driving
// distance between them using OpenRouteService.
package geo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wichananm65/homemeal-backend/internal/infrastructure/outbound"
)

var (
	ErrNoMatch = errors.New("no coordinates found for address")
	ErrNoRoute = errors.New("no route between points")
)

// Point is a WGS84 coordinate.
type Point struct {
	Lon float64 `json:"longitude"`
	Lat float64 `json:"latitude"`
}

type GeocodeError struct {
	Address string
	Err     error
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("geocode %q: %v", e.Address, e.Err)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

type RoutingError struct {
	From, To Point
	Err      error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("route %v -> %v: %v", e.From, e.To, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

type Config struct {
	BaseURL string
	APIKey  string
	Country string
}

type Client struct {
	base    string
	key     string
	country string
	out     *outbound.Client
}

func NewClient(cfg Config, out *outbound.Client) *Client {
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		key:     cfg.APIKey,
		country: cfg.Country,
		out:     out,
	}
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Geocode returns the first match for address.
func (c *Client) Geocode(ctx context.Context, address string) (Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Point{}, &GeocodeError{Address: address, Err: ErrNoMatch}
	}
	q := url.Values{}
	q.Set("text", address)
	if c.country != "" {
		q.Set("boundary.country", c.country)
	}
	endpoint := c.base + "/geocode/search?" + q.Encode()

	body, err := c.out.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.key)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, true)
	if err != nil {
		return Point{}, &GeocodeError{Address: address, Err: err}
	}

	var res geocodeResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return Point{}, &GeocodeError{Address: address, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(res.Features) == 0 || len(res.Features[0].Geometry.Coordinates) < 2 {
		return Point{}, &GeocodeError{Address: address, Err: ErrNoMatch}
	}
	coords := res.Features[0].Geometry.Coordinates
	return Point{Lon: coords[0], Lat: coords[1]}, nil
}

type directionsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

type directionsResponse struct {
	Routes []struct {
		Summary struct {
			Distance float64 `json:"distance"`
		} `json:"summary"`
	} `json:"routes"`
}

// Distance returns the driving distance in meters.
func (c *Client) Distance(ctx context.Context, from, to Point) (float64, error) {
	payload, err := json.Marshal(directionsRequest{Coordinates: [][2]float64{
		{from.Lon, from.Lat},
		{to.Lon, to.Lat},
	}})
	if err != nil {
		return 0, &RoutingError{From: from, To: to, Err: err}
	}
	endpoint := c.base + "/v2/directions/driving-car"

	body, err := c.out.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.key)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, true)
	if err != nil {
		return 0, &RoutingError{From: from, To: to, Err: err}
	}

	var res directionsResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, &RoutingError{From: from, To: to, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(res.Routes) == 0 {
		return 0, &RoutingError{From: from, To: to, Err: ErrNoRoute}
	}
	return res.Routes[0].Summary.Distance, nil
}
