// Package geoip resolves click IPs to a coarse location. Lookups are best
// effort: any failure, timeout or private-range IP degrades to the Unknown
// tuple and never propagates an error to the redirect path.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jack/golang-shortlink-service/internal/config"
	"github.com/jack/golang-shortlink-service/internal/model"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

// Resolver maps an IP to a location.
type Resolver interface {
	Resolve(ctx context.Context, ip string) model.GeoLocation
}

// HTTPResolver queries an ip-api.com style JSON endpoint.
type HTTPResolver struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

type lookupResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	Region  string `json:"regionName"`
	City    string `json:"city"`
}

func NewHTTPResolver(cfg *config.GeoIPConfig, logger *zap.Logger) *HTTPResolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPResolver{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Resolve looks up the IP. Private and loopback addresses short-circuit to
// Unknown without a network round trip.
func (r *HTTPResolver) Resolve(ctx context.Context, ip string) model.GeoLocation {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return model.UnknownLocation(ip)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", r.endpoint, ip), nil)
	if err != nil {
		return model.UnknownLocation(ip)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("geoip lookup failed", zap.String("ip", ip), zap.Error(err))
		return model.UnknownLocation(ip)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Debug("geoip lookup returned non-200", zap.String("ip", ip), zap.Int("status", resp.StatusCode))
		return model.UnknownLocation(ip)
	}

	var result lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		r.logger.Debug("geoip response decode failed", zap.String("ip", ip), zap.Error(err))
		return model.UnknownLocation(ip)
	}

	if result.Status != "success" {
		return model.UnknownLocation(ip)
	}

	location := model.UnknownLocation(ip)
	if result.Country != "" {
		location.Country = result.Country
	}
	if result.Region != "" {
		location.Region = result.Region
	}
	if result.City != "" {
		location.City = result.City
	}

	return location
}
