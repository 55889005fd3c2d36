// Package geo enriches records with coordinates. The upstream geocoding API
// is strictly rate limited, so every call in the process goes through one
// shared gate, and results are cached so re-runs cost nothing.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"property-scraper/utils"
)

// Point is a geocoded coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// Cache stores geocoding results keyed by canonical location text. A miss
// is (_, false); a cached negative result is ("", true).
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// RedisCache caches geocoding results in Redis with a TTL, shared across
// runs and parallel sessions.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache parses redisURL, verifies connectivity and returns the cache.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{rdb: client, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string) {
	c.rdb.Set(ctx, key, value, c.ttl)
}

// MemoryCache is the in-process fallback when no Redis is configured, and
// what tests inject for isolation.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]string)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *MemoryCache) Set(_ context.Context, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

// Geocoder resolves "area, state" text to coordinates via an OSM-style
// search endpoint. Lookups never fail a record: any error degrades to
// "no coordinates".
type Geocoder struct {
	endpoint string
	client   *http.Client
	cache    Cache
	gate     *utils.RateGate
	logger   *utils.Logger
}

// NewGeocoder builds a Geocoder. The gate must be the single process-wide
// instance so parallel sessions share one rate budget.
func NewGeocoder(endpoint string, cache Cache, gate *utils.RateGate, logger *utils.Logger) *Geocoder {
	return &Geocoder{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		cache:    cache,
		gate:     gate,
		logger:   logger,
	}
}

// Geocode resolves an area/state pair. ok is false when the location is
// unknown to the upstream service or the call failed.
func (g *Geocoder) Geocode(ctx context.Context, area, state string) (Point, bool) {
	if area == "" || state == "" || state == "Unknown" {
		return Point{}, false
	}

	key := "geo:" + strings.ToLower(area+"|"+state)
	if val, hit := g.cache.Get(ctx, key); hit {
		return parsePoint(val)
	}

	g.gate.Wait()

	pt, found, err := g.lookup(ctx, area+", "+state+", Nigeria")
	if err != nil {
		g.logger.Warn("[geo] Lookup %q failed: %v", area, err)
		return Point{}, false
	}

	if !found {
		g.cache.Set(ctx, key, "") // negative result, cached too
		return Point{}, false
	}

	g.cache.Set(ctx, key, fmt.Sprintf("%f,%f", pt.Lat, pt.Lng))
	return pt, true
}

func (g *Geocoder) lookup(ctx context.Context, query string) (Point, bool, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Point{}, false, err
	}
	req.Header.Set("User-Agent", "property-scraper/1.0")

	resp, err := g.client.Do(req)
	if err != nil {
		return Point{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Point{}, false, fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Point{}, false, err
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return Point{}, false, fmt.Errorf("parse response: %w", err)
	}
	if len(results) == 0 {
		return Point{}, false, nil
	}

	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return Point{}, false, fmt.Errorf("malformed coordinates %q,%q", results[0].Lat, results[0].Lon)
	}

	return Point{Lat: lat, Lng: lng}, true, nil
}

func parsePoint(val string) (Point, bool) {
	if val == "" {
		return Point{}, false
	}
	parts := strings.SplitN(val, ",", 2)
	if len(parts) != 2 {
		return Point{}, false
	}
	lat, err1 := strconv.ParseFloat(parts[0], 64)
	lng, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}
