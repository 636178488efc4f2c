package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/core/ports"
	"github.com/99minutos/authgate/internal/pkg/metrics"
)

const (
	DefaultEnforcementCacheTTL = 5 * time.Second
	enforcementReadTimeout     = 2 * time.Second
)

// EnforcementToggle caches the enforcement setting in memory for at most ttl,
// so the per-request read does not hit storage. Read never fails: on any load
// error it fails open to enforcement enabled.
type EnforcementToggle struct {
	repo ports.EnforcementRepository
	ttl  time.Duration
	now  func() time.Time
	log  zerolog.Logger

	mu        sync.RWMutex
	cached    domain.EnforcementSetting
	fetchedAt time.Time
	loaded    bool
}

// NewEnforcementToggle wraps repo with a bounded-staleness cache.
func NewEnforcementToggle(repo ports.EnforcementRepository, ttl time.Duration, log zerolog.Logger) *EnforcementToggle {
	if ttl <= 0 {
		ttl = DefaultEnforcementCacheTTL
	}
	return &EnforcementToggle{repo: repo, ttl: ttl, now: time.Now, log: log}
}

// Read returns the current setting, from cache when fresh.
func (t *EnforcementToggle) Read(ctx context.Context) domain.EnforcementSetting {
	t.mu.RLock()
	if t.loaded && t.now().Sub(t.fetchedAt) < t.ttl {
		s := t.cached
		t.mu.RUnlock()
		metrics.EnforcementCacheTotal.WithLabelValues("hit").Inc()
		return s
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if t.loaded && t.now().Sub(t.fetchedAt) < t.ttl {
		metrics.EnforcementCacheTotal.WithLabelValues("hit").Inc()
		return t.cached
	}

	setting := t.load(ctx)
	t.cached = setting
	t.fetchedAt = t.now()
	t.loaded = true
	return setting
}

func (t *EnforcementToggle) load(ctx context.Context) domain.EnforcementSetting {
	ctx, cancel := context.WithTimeout(ctx, enforcementReadTimeout)
	defer cancel()

	setting, err := t.repo.Load(ctx)
	switch {
	case err == nil:
		metrics.EnforcementCacheTotal.WithLabelValues("miss").Inc()
		return setting

	case errors.Is(err, domain.ErrSettingNotFound):
		metrics.EnforcementCacheTotal.WithLabelValues("miss").Inc()
		def := domain.DefaultEnforcement()
		def.UpdatedAt = t.now().UTC()
		t.log.Info().Msg("no enforcement setting found, using default (enabled)")
		if saveErr := t.repo.Save(ctx, def); saveErr != nil {
			t.log.Warn().Err(saveErr).Msg("failed to persist default enforcement setting")
		}
		return def

	default:
		metrics.EnforcementCacheTotal.WithLabelValues("fail_open").Inc()
		t.log.Error().Err(err).
			Str("action_required", "inspect or rewrite the enforcement setting").
			Msg("enforcement setting unreadable, failing open to enabled")
		return domain.DefaultEnforcement()
	}
}

// Write persists a new setting and refreshes the cache. A failed write is
// returned as domain.ErrPersistenceFailure and leaves the cache untouched.
func (t *EnforcementToggle) Write(ctx context.Context, enabled bool, updatedBy string) (domain.EnforcementSetting, error) {
	setting := domain.EnforcementSetting{
		Enabled:   enabled,
		UpdatedAt: t.now().UTC(),
		UpdatedBy: updatedBy,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.repo.Save(ctx, setting); err != nil {
		return domain.EnforcementSetting{}, fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}

	t.cached = setting
	t.fetchedAt = t.now()
	t.loaded = true

	t.log.Warn().
		Str("audit", "enforcement_change").
		Bool("enabled", enabled).
		Str("updated_by", updatedBy).
		Msg("enforcement setting changed")

	return setting, nil
}
