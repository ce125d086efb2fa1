// Package geo resolves a visitor's country once per session. Resolution is
// best effort: lookups run under a hard timeout and fall back to the GLOBAL
// sentinel instead of failing or blocking the caller.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
	"github.com/psspl2021/global-trade-hub-sub009/internal/throttle"
)

// Client calls an ip-api style JSON geolocation endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Status      string `json:"status"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	RegionName  string `json:"regionName"`
}

func (c *Client) Lookup(ctx context.Context, ip string) (contracts.GeoContext, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(strings.TrimSpace(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return contracts.GeoContext{}, fmt.Errorf("build geo request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return contracts.GeoContext{}, fmt.Errorf("geo lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return contracts.GeoContext{}, fmt.Errorf("geo lookup status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return contracts.GeoContext{}, fmt.Errorf("decode geo response: %w", err)
	}
	if body.Status != "success" || body.CountryCode == "" {
		return contracts.GeoContext{}, fmt.Errorf("geo lookup failed for %q", ip)
	}

	return contracts.GeoContext{
		CountryCode: strings.ToUpper(body.CountryCode),
		CountryName: body.Country,
		Region:      body.RegionName,
		IsDetected:  true,
	}, nil
}

// Resolver caches one GeoContext per session. Failures are cached too:
// a session that timed out is not retried, it stays GLOBAL for its TTL.
type Resolver struct {
	client  *Client
	cache   *throttle.TTLCache[contracts.GeoContext]
	timeout time.Duration
	log     *zap.Logger
}

func NewResolver(client *Client, sessionTTL, timeout time.Duration, log *zap.Logger) *Resolver {
	return &Resolver{
		client:  client,
		cache:   throttle.NewTTLCache[contracts.GeoContext](sessionTTL),
		timeout: timeout,
		log:     log,
	}
}

// Resolve never fails and never blocks past the configured timeout.
func (r *Resolver) Resolve(ctx context.Context, sessionID, ip string) contracts.GeoContext {
	if geo, ok := r.cache.Get(sessionID); ok {
		return geo
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	geo, err := r.client.Lookup(lookupCtx, ip)
	if err != nil {
		r.log.Warn("geo lookup failed, using global sentinel",
			zap.String("session_id", sessionID), zap.Error(err))
		geo = contracts.GlobalGeo()
	}

	r.cache.Set(sessionID, geo)
	return geo
}
