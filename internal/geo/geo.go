// Package geo provides great-circle distance computation and a network-backed
// geocoder with a bounded request timeout and an optional redis result cache.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance between two points
// in kilometres.
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// ErrNotFound is returned when the geocoding backend has no result for a
// location descriptor.
var ErrNotFound = errors.New("geo: location not found")

// Geocoder resolves a free-form location descriptor to coordinates. Failures
// surface as errors; calling detectors treat them as "no signal".
type Geocoder interface {
	Geocode(ctx context.Context, location string) (Point, error)
}

// ServiceConfig configures the geocoding service.
type ServiceConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Service is an HTTP geocoder with an optional redis cache in front. A slow
// backend degrades a single lookup, never the whole pipeline: every request
// carries the configured timeout.
type Service struct {
	client  *http.Client
	baseURL string
	ttl     time.Duration
	cache   redis.UniversalClient
	logger  *zap.Logger
}

// NewService creates a geocoding service. cache may be nil, which disables
// caching.
func NewService(cfg ServiceConfig, cache redis.UniversalClient, logger *zap.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		client:  &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		ttl:     ttl,
		cache:   cache,
		logger:  logger,
	}
}

// geocodeResponse matches the nominatim-style search payload.
type geocodeResponse struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves a location descriptor. Cache errors are logged and treated
// as misses; only backend errors propagate to the caller.
func (s *Service) Geocode(ctx context.Context, location string) (Point, error) {
	if location == "" {
		return Point{}, ErrNotFound
	}

	cacheKey := "geo:loc:" + location
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var p Point
			if err := json.Unmarshal([]byte(cached), &p); err == nil {
				return p, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("geocode cache read failed", zap.String("location", location), zap.Error(err))
		}
	}

	p, err := s.lookup(ctx, location)
	if err != nil {
		return Point{}, err
	}

	if s.cache != nil {
		payload, _ := json.Marshal(p)
		if err := s.cache.Set(ctx, cacheKey, payload, s.ttl).Err(); err != nil {
			s.logger.Warn("geocode cache write failed", zap.String("location", location), zap.Error(err))
		}
	}
	return p, nil
}

func (s *Service) lookup(ctx context.Context, location string) (Point, error) {
	endpoint := fmt.Sprintf("%s/search?format=json&limit=1&q=%s", s.baseURL, url.QueryEscape(location))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Point{}, fmt.Errorf("geo: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("geo: lookup %q: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Point{}, fmt.Errorf("geo: lookup %q: unexpected status %d", location, resp.StatusCode)
	}

	var results []geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Point{}, fmt.Errorf("geo: decode response for %q: %w", location, err)
	}
	if len(results) == 0 {
		return Point{}, ErrNotFound
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Point{}, fmt.Errorf("geo: parse latitude for %q: %w", location, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Point{}, fmt.Errorf("geo: parse longitude for %q: %w", location, err)
	}
	return Point{Lat: lat, Lon: lon}, nil
}
