package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jack/golang-shortlink-service/internal/config"
	"github.com/jack/golang-shortlink-service/internal/model"
	"github.com/jack/golang-shortlink-service/internal/repository"
	"github.com/jack/golang-shortlink-service/internal/shortcode"
)

// staticGeo resolves every IP to a fixed location, standing in for the
// external lookup.
type staticGeo struct {
	location model.GeoLocation
}

func (g *staticGeo) Resolve(ctx context.Context, ip string) model.GeoLocation {
	loc := g.location
	loc.IP = ip
	return loc
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{BaseURL: "http://sho.rt"},
		Shortcode: config.ShortcodeConfig{
			CodeLength:          8,
			MaxGenerateAttempts: 10,
			DefaultValidityMins: 30,
			MaxValidityMins:     1440,
		},
	}
}

func newTestService(store RecordStore) *ShortcodeService {
	geo := &staticGeo{location: model.GeoLocation{Country: "Germany", Region: "Berlin", City: "Berlin"}}
	return NewShortcodeService(store, nil, geo, testConfig(), zap.NewNop())
}

func TestCreate_GeneratedCode(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())

	record, err := svc.Create(context.Background(), &model.CreateShortcodeRequest{
		URL: "https://example.com/a",
	})
	require.NoError(t, err)

	assert.Len(t, record.Code, 8)
	assert.NoError(t, shortcode.ValidateFormat(record.Code))
	assert.True(t, record.IsActive)
	assert.Equal(t, "https://example.com/a", record.TargetURL)
	assert.True(t, strings.HasSuffix(svc.ShortLink(record.Code), record.Code))

	validity := record.ExpiresAt.Sub(record.CreatedAt)
	assert.Equal(t, 30*time.Minute, validity)
}

func TestCreate_ValidityClamping(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		want    time.Duration
	}{
		{name: "default when omitted", minutes: 0, want: 30 * time.Minute},
		{name: "explicit", minutes: 60, want: 60 * time.Minute},
		{name: "clamped to max", minutes: 5000, want: 1440 * time.Minute},
		{name: "clamped to min", minutes: -5, want: 1 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(repository.NewMemoryRepository())
			record, err := svc.Create(context.Background(), &model.CreateShortcodeRequest{
				URL:             "https://example.com/a",
				ValidityMinutes: tt.minutes,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, record.ExpiresAt.Sub(record.CreatedAt))
		})
	}
}

func TestCreate_TargetURLValidation(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())

	tests := []struct {
		name string
		url  string
	}{
		{name: "ftp scheme", url: "ftp://example.com/file"},
		{name: "no host", url: "https:///path"},
		{name: "relative", url: "/just/a/path"},
		{name: "garbage", url: "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), &model.CreateShortcodeRequest{URL: tt.url})
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreate_TargetURLNormalization(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())

	record, err := svc.Create(context.Background(), &model.CreateShortcodeRequest{
		URL: "https://example.com/some/path/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/some/path", record.TargetURL)
}

func TestCreate_CustomCode(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())

	record, err := svc.Create(context.Background(), &model.CreateShortcodeRequest{
		URL:        "https://example.com/a",
		CustomCode: "My-Link",
	})
	require.NoError(t, err)
	assert.Equal(t, "my-link", record.Code, "codes are case-normalized")
}

func TestCreate_CustomCodeRejections(t *testing.T) {
	store := repository.NewMemoryRepository()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, &model.CreateShortcodeRequest{
		URL:        "https://example.com/a",
		CustomCode: "taken123",
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		code    string
		wantErr error
	}{
		{name: "reserved", code: "health", wantErr: ErrCodeUnavailable},
		{name: "already in use", code: "taken123", wantErr: ErrCodeUnavailable},
		{name: "taken differs only by case", code: "TAKEN123", wantErr: ErrCodeUnavailable},
		{name: "bad format", code: "a!", wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, &model.CreateShortcodeRequest{
				URL:        "https://example.com/b",
				CustomCode: tt.code,
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreate_DeactivatedCodeStaysReserved(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Create(ctx, &model.CreateShortcodeRequest{
		URL:        "https://example.com/a",
		CustomCode: "was-here",
	})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, "was-here"))

	_, err = svc.Create(ctx, &model.CreateShortcodeRequest{
		URL:        "https://example.com/b",
		CustomCode: "was-here",
	})
	assert.ErrorIs(t, err, ErrCodeUnavailable)
}

// blindStore hides existing codes from the availability pre-check so the
// unique insert is what decides the race.
type blindStore struct {
	RecordStore
}

func (b *blindStore) CodeExists(ctx context.Context, code string) (bool, error) {
	return false, nil
}

func TestCreate_ConcurrentCustomCode(t *testing.T) {
	store := &blindStore{RecordStore: repository.NewMemoryRepository()}
	svc := newTestService(store)
	ctx := context.Background()

	const racers = 8
	results := make(chan error, racers)

	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, &model.CreateShortcodeRequest{
				URL:        "https://example.com/a",
				CustomCode: "contested",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		default:
			assert.ErrorIs(t, err, ErrConflict)
			conflicts++
		}
	}

	assert.Equal(t, 1, successes, "exactly one create may win")
	assert.Equal(t, racers-1, conflicts)
}

func TestCreate_GeneratedCodesAreUnique(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		record, err := svc.Create(ctx, &model.CreateShortcodeRequest{
			URL: fmt.Sprintf("https://example.com/page/%d", i),
		})
		require.NoError(t, err)
		require.False(t, seen[record.Code], "duplicate code issued: %s", record.Code)
		seen[record.Code] = true
	}
}

func TestGetStats(t *testing.T) {
	store := repository.NewMemoryRepository()
	svc := newTestService(store)
	ctx := context.Background()

	record, err := svc.Create(ctx, &model.CreateShortcodeRequest{
		URL:        "https://example.com/a",
		CustomCode: "stats-me",
	})
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, "stats-me", model.RequestContext{IP: "203.0.113.7", UserAgent: "curl/8.0"})
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx, "STATS-ME")
	require.NoError(t, err)
	assert.Equal(t, "stats-me", stats.Code)
	assert.Equal(t, record.TargetURL, stats.TargetURL)
	assert.Equal(t, int64(1), stats.ClickCount)
	require.Len(t, stats.ClickHistory, 1)
	assert.Equal(t, "Direct", stats.ClickHistory[0].Referrer)
	assert.Equal(t, "Germany", stats.ClickHistory[0].Geo.Country)
	assert.Equal(t, "203.0.113.7", stats.ClickHistory[0].Geo.IP)
	assert.Equal(t, "curl/8.0", stats.ClickHistory[0].UserAgent)
}

func TestLookupErrors(t *testing.T) {
	store := repository.NewMemoryRepository()
	svc := newTestService(store)
	ctx := context.Background()

	// Seed an expired record directly; Create refuses to produce one.
	now := time.Now()
	require.NoError(t, store.InsertRecord(ctx, &model.ShortcodeRecord{
		Code:      "bygone12",
		TargetURL: "https://example.com/old",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(-time.Second),
	}))

	_, err := svc.Create(ctx, &model.CreateShortcodeRequest{
		URL:        "https://example.com/a",
		CustomCode: "retired1",
	})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, "retired1"))

	t.Run("never existed is not found", func(t *testing.T) {
		_, err := svc.GetStats(ctx, "no-such-code")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("expired is gone, not missing", func(t *testing.T) {
		_, err := svc.GetStats(ctx, "bygone12")
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("deactivated is not found, not expired", func(t *testing.T) {
		_, err := svc.Resolve(ctx, "retired1", model.RequestContext{IP: "203.0.113.7"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestResolve_RecordsClick(t *testing.T) {
	store := repository.NewMemoryRepository()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, &model.CreateShortcodeRequest{
		URL:        "https://example.com/landing",
		CustomCode: "visit-me",
	})
	require.NoError(t, err)

	target, err := svc.Resolve(ctx, "visit-me", model.RequestContext{
		IP:       "203.0.113.7",
		Referrer: "https://news.ycombinator.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/landing", target)

	got, err := store.GetByCode(ctx, "visit-me")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ClickCount)
	require.Len(t, got.ClickHistory, 1)
	assert.Equal(t, "https://news.ycombinator.com/", got.ClickHistory[0].Referrer)
}

func TestResolve_ExpiredHasNoSideEffects(t *testing.T) {
	store := repository.NewMemoryRepository()
	svc := newTestService(store)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.InsertRecord(ctx, &model.ShortcodeRecord{
		Code:      "bygone12",
		TargetURL: "https://example.com/old",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(-time.Second),
	}))

	_, err := svc.Resolve(ctx, "bygone12", model.RequestContext{IP: "203.0.113.7"})
	assert.ErrorIs(t, err, ErrExpired)

	got, err := store.GetByCode(ctx, "bygone12")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.ClickCount, "no click may be recorded on an expired result")
	assert.Empty(t, got.ClickHistory)
}

func TestResolve_ConcurrentClicks(t *testing.T) {
	store := repository.NewMemoryRepository()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, &model.CreateShortcodeRequest{
		URL:        "https://example.com/hot",
		CustomCode: "hot-link",
	})
	require.NoError(t, err)

	const clicks = 150

	var wg sync.WaitGroup
	wg.Add(clicks)
	for i := 0; i < clicks; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Resolve(ctx, "hot-link", model.RequestContext{IP: "203.0.113.7"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.GetByCode(ctx, "hot-link")
	require.NoError(t, err)
	assert.Equal(t, int64(clicks), got.ClickCount)
	assert.Len(t, got.ClickHistory, model.MaxClickHistory)
}

func TestDeactivate_Idempotent(t *testing.T) {
	svc := newTestService(repository.NewMemoryRepository())
	ctx := context.Background()

	_, err := svc.Create(ctx, &model.CreateShortcodeRequest{
		URL:        "https://example.com/a",
		CustomCode: "kill-me",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, "kill-me"))
	require.NoError(t, svc.Deactivate(ctx, "kill-me"))

	assert.ErrorIs(t, svc.Deactivate(ctx, "never-was"), ErrNotFound)
}
