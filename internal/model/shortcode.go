package model

import (
	"time"
)

// MaxClickHistory bounds the per-record click history. Older events are
// evicted first once the bound is reached.
const MaxClickHistory = 100

// GeoLocation is the resolved location of a click, all fields fall back to
// "Unknown" when the lookup fails or the IP is private.
type GeoLocation struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
	IP      string `json:"ip"`
}

// UnknownLocation returns the fallback location tuple for an IP.
func UnknownLocation(ip string) GeoLocation {
	return GeoLocation{
		Country: "Unknown",
		Region:  "Unknown",
		City:    "Unknown",
		IP:      ip,
	}
}

// ClickEvent represents a single recorded redirect.
type ClickEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	Referrer  string      `json:"referrer"`
	Geo       GeoLocation `json:"geo"`
	UserAgent string      `json:"user_agent,omitempty"`
}

// ShortcodeRecord represents a shortcode to target URL mapping.
// Records are never physically deleted; deactivation is terminal.
type ShortcodeRecord struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"`
	TargetURL    string       `json:"target_url"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
	IsActive     bool         `json:"is_active"`
	ClickCount   int64        `json:"click_count"`
	ClickHistory []ClickEvent `json:"click_history"`
}

// IsExpired checks if the record is past its validity window.
func (r *ShortcodeRecord) IsExpired() bool {
	return !time.Now().Before(r.ExpiresAt)
}

// IsResolvable checks if the record can serve redirects and stats.
func (r *ShortcodeRecord) IsResolvable() bool {
	return r.IsActive && !r.IsExpired()
}

// AppendClick computes the bounded-history transition for a click. It does
// not persist anything; the store applies the same transition atomically.
func AppendClick(history []ClickEvent, event ClickEvent) []ClickEvent {
	history = append(history, event)
	if len(history) > MaxClickHistory {
		history = history[len(history)-MaxClickHistory:]
	}
	return history
}

// RequestContext carries the redirect request metadata a click is built from.
type RequestContext struct {
	IP        string
	Referrer  string
	UserAgent string
}

// CreateShortcodeRequest is the request body for creating a shortcode.
type CreateShortcodeRequest struct {
	URL             string `json:"url" binding:"required"`
	ValidityMinutes int    `json:"validity_minutes,omitempty"`
	CustomCode      string `json:"custom_code,omitempty"`
}

// CreateShortcodeResponse is the response after creating a shortcode.
type CreateShortcodeResponse struct {
	Code      string `json:"code"`
	ShortLink string `json:"short_link"`
	ExpiresAt string `json:"expires_at"`
}

// StatsResponse carries shortcode statistics including the bounded history.
type StatsResponse struct {
	Code         string       `json:"code"`
	TargetURL    string       `json:"target_url"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
	IsActive     bool         `json:"is_active"`
	ClickCount   int64        `json:"click_count"`
	ClickHistory []ClickEvent `json:"click_history"`
}

// TokenRequest exchanges an API key for a short-lived bearer token.
type TokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}
