package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jack/golang-shortlink-service/internal/config"
	"github.com/jack/golang-shortlink-service/internal/geoip"
	"github.com/jack/golang-shortlink-service/internal/model"
	"github.com/jack/golang-shortlink-service/internal/repository"
	"github.com/jack/golang-shortlink-service/internal/shortcode"
)

// RecordStore is the durable keyed store the service runs against. Both the
// Postgres and the in-memory adapters satisfy it. RecordClick must be atomic
// per record: concurrent clicks serialize at the store, never in here.
type RecordStore interface {
	InsertRecord(ctx context.Context, record *model.ShortcodeRecord) error
	GetByCode(ctx context.Context, code string) (*model.ShortcodeRecord, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	RecordClick(ctx context.Context, code string, event model.ClickEvent) error
	Deactivate(ctx context.Context, code string) error
	DeactivateExpired(ctx context.Context) ([]string, error)
	Health(ctx context.Context) error
}

// RecordCache is the optional read-through cache in front of the store.
type RecordCache interface {
	GetRecord(ctx context.Context, code string) (*model.ShortcodeRecord, error)
	SetRecord(ctx context.Context, record *model.ShortcodeRecord) error
	DeleteRecord(ctx context.Context, code string) error
}

type ShortcodeService struct {
	store     RecordStore
	cache     RecordCache
	geo       geoip.Resolver
	generator *shortcode.Generator
	cfg       *config.ShortcodeConfig
	baseURL   string
	logger    *zap.Logger
}

func NewShortcodeService(
	store RecordStore,
	cache RecordCache,
	geo geoip.Resolver,
	cfg *config.Config,
	logger *zap.Logger,
) *ShortcodeService {
	return &ShortcodeService{
		store:     store,
		cache:     cache,
		geo:       geo,
		generator: shortcode.NewGenerator(cfg.Shortcode.CodeLength),
		cfg:       &cfg.Shortcode,
		baseURL:   cfg.App.BaseURL,
		logger:    logger,
	}
}

// Create validates the request, picks or generates a code and persists the
// record. The custom-code availability pre-check is best effort; the unique
// insert at the store is what makes concurrent creates of the same code end
// in exactly one success and one ErrConflict.
func (s *ShortcodeService) Create(ctx context.Context, req *model.CreateShortcodeRequest) (*model.ShortcodeRecord, error) {
	targetURL, err := normalizeTargetURL(req.URL)
	if err != nil {
		return nil, err
	}

	validity := s.clampValidity(req.ValidityMinutes)

	var code string
	if req.CustomCode != "" {
		code = shortcode.Normalize(req.CustomCode)
		if err := shortcode.ValidateFormat(code); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrValidation, err)
		}
		if err := shortcode.CheckAvailability(ctx, s.store, code); err != nil {
			if errors.Is(err, shortcode.ErrReservedCode) || errors.Is(err, shortcode.ErrCodeTaken) {
				return nil, fmt.Errorf("%w: %s", ErrCodeUnavailable, err)
			}
			return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
		}
	} else {
		code, err = s.generator.GenerateUnique(ctx, s.store, s.cfg.MaxGenerateAttempts)
		if err != nil {
			if errors.Is(err, shortcode.ErrExhaustedAttempts) {
				s.logger.Error("shortcode generation exhausted attempts",
					zap.Int("max_attempts", s.cfg.MaxGenerateAttempts),
					zap.Int("code_length", s.cfg.CodeLength))
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
		}
	}

	now := time.Now()
	record := &model.ShortcodeRecord{
		Code:         code,
		TargetURL:    targetURL,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(validity) * time.Minute),
		IsActive:     true,
		ClickHistory: []model.ClickEvent{},
	}

	if err := s.store.InsertRecord(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, fmt.Errorf("%w: code %q was claimed concurrently", ErrConflict, code)
		}
		return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}

	if s.cache != nil {
		if err := s.cache.SetRecord(ctx, record); err != nil {
			s.logger.Warn("cache set record failed", zap.String("code", code), zap.Error(err))
		}
	}

	return record, nil
}

// ShortLink builds the public link for a code.
func (s *ShortcodeService) ShortLink(code string) string {
	return s.baseURL + "/" + code
}

// Resolve returns the target URL for a redirect and records the click. The
// click append happens before the target is returned: acknowledging a
// redirect with the count not yet written would let concurrent failures
// under-count.
func (s *ShortcodeService) Resolve(ctx context.Context, code string, reqCtx model.RequestContext) (string, error) {
	record, err := s.lookupActive(ctx, code, true)
	if err != nil {
		return "", err
	}

	event := s.buildClickEvent(ctx, reqCtx)

	if err := s.store.RecordClick(ctx, record.Code, event); err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			// The record lost resolvability between lookup and click.
			if record.IsExpired() {
				return "", ErrExpired
			}
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}

	return record.TargetURL, nil
}

// GetStats returns the authoritative record straight from the store, so the
// click count and history are never served from a stale cache entry.
func (s *ShortcodeService) GetStats(ctx context.Context, code string) (*model.StatsResponse, error) {
	record, err := s.lookupActive(ctx, code, false)
	if err != nil {
		return nil, err
	}

	return &model.StatsResponse{
		Code:         record.Code,
		TargetURL:    record.TargetURL,
		CreatedAt:    record.CreatedAt,
		ExpiresAt:    record.ExpiresAt,
		IsActive:     record.IsActive,
		ClickCount:   record.ClickCount,
		ClickHistory: record.ClickHistory,
	}, nil
}

// Deactivate soft-deletes a record. Matching is by raw existence, not the
// active flag, so repeated deletes of the same code keep succeeding.
// Deactivation is terminal; a record is never resurrected.
func (s *ShortcodeService) Deactivate(ctx context.Context, code string) error {
	code = shortcode.Normalize(code)

	if err := s.store.Deactivate(ctx, code); err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}

	if s.cache != nil {
		if err := s.cache.DeleteRecord(ctx, code); err != nil {
			s.logger.Warn("cache delete record failed", zap.String("code", code), zap.Error(err))
		}
	}

	return nil
}

func (s *ShortcodeService) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

// lookupActive resolves a code to a resolvable record. A deactivated or
// never-issued code reads as ErrNotFound; an issued-but-past-expiry record
// reads as ErrExpired. Cached entries are re-checked against the
// resolvability predicate at read time, not just when they were populated.
func (s *ShortcodeService) lookupActive(ctx context.Context, code string, useCache bool) (*model.ShortcodeRecord, error) {
	code = shortcode.Normalize(code)

	if useCache && s.cache != nil {
		cached, err := s.cache.GetRecord(ctx, code)
		if err != nil {
			s.logger.Warn("cache get record failed", zap.String("code", code), zap.Error(err))
		}
		if cached != nil {
			if cached.IsResolvable() {
				return cached, nil
			}
			if cached.IsActive && cached.IsExpired() {
				return nil, ErrExpired
			}
			return nil, ErrNotFound
		}
	}

	record, err := s.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, err)
	}

	if !record.IsActive {
		return nil, ErrNotFound
	}
	if record.IsExpired() {
		return nil, ErrExpired
	}

	if useCache && s.cache != nil {
		if err := s.cache.SetRecord(ctx, record); err != nil {
			s.logger.Warn("cache set record failed", zap.String("code", code), zap.Error(err))
		}
	}

	return record, nil
}

// buildClickEvent assembles the event for one redirect. The geo lookup is
// fully absorbed: it runs under its own deadline and degrades to Unknown,
// never failing or stalling the redirect.
func (s *ShortcodeService) buildClickEvent(ctx context.Context, reqCtx model.RequestContext) model.ClickEvent {
	referrer := reqCtx.Referrer
	if referrer == "" {
		referrer = "Direct"
	}

	geoCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return model.ClickEvent{
		Timestamp: time.Now(),
		Referrer:  referrer,
		Geo:       s.geo.Resolve(geoCtx, reqCtx.IP),
		UserAgent: reqCtx.UserAgent,
	}
}

func (s *ShortcodeService) clampValidity(minutes int) int {
	if minutes == 0 {
		minutes = s.cfg.DefaultValidityMins
	}
	if minutes < 1 {
		minutes = 1
	}
	if minutes > s.cfg.MaxValidityMins {
		minutes = s.cfg.MaxValidityMins
	}
	return minutes
}

// normalizeTargetURL validates that the target is an absolute http/https URL
// and strips a trailing slash on non-root paths.
func normalizeTargetURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: invalid target url", ErrValidation)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: only http and https targets are allowed", ErrValidation)
	}

	if parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimRight(parsed.Path, "/")
	}

	return parsed.String(), nil
}
