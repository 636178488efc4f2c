package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/authgate/internal/core/domain"
)

// DefaultSettingsKey holds the enforcement setting hash.
const DefaultSettingsKey = "authgate:settings:enforcement"

const (
	fieldEnabled   = "authentication_enabled"
	fieldUpdatedAt = "updated_at"
	fieldUpdatedBy = "updated_by"
)

// EnforcementRepository stores the enforcement setting as a Redis hash.
type EnforcementRepository struct {
	client *redis.Client
	key    string
}

// NewEnforcementRepository wraps client. An empty key uses DefaultSettingsKey.
func NewEnforcementRepository(client *redis.Client, key string) *EnforcementRepository {
	if key == "" {
		key = DefaultSettingsKey
	}
	return &EnforcementRepository{client: client, key: key}
}

// Load reads the hash. A missing key is domain.ErrSettingNotFound; a hash
// with a missing or unparsable enabled flag is domain.ErrSettingCorrupt.
func (r *EnforcementRepository) Load(ctx context.Context) (domain.EnforcementSetting, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return domain.EnforcementSetting{}, fmt.Errorf("load enforcement setting: %w", err)
	}
	if len(fields) == 0 {
		return domain.EnforcementSetting{}, domain.ErrSettingNotFound
	}

	raw, ok := fields[fieldEnabled]
	if !ok {
		return domain.EnforcementSetting{}, fmt.Errorf("%w: missing %s", domain.ErrSettingCorrupt, fieldEnabled)
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return domain.EnforcementSetting{}, fmt.Errorf("%w: %s: %w", domain.ErrSettingCorrupt, fieldEnabled, err)
	}

	setting := domain.EnforcementSetting{Enabled: enabled, UpdatedBy: fields[fieldUpdatedBy]}
	if ts := fields[fieldUpdatedAt]; ts != "" {
		at, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return domain.EnforcementSetting{}, fmt.Errorf("%w: %s: %w", domain.ErrSettingCorrupt, fieldUpdatedAt, err)
		}
		setting.UpdatedAt = at.UTC()
	}
	return setting, nil
}

// Save replaces the whole hash inside MULTI/EXEC so readers never see a
// partially written record.
func (r *EnforcementRepository) Save(ctx context.Context, setting domain.EnforcementSetting) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key,
			fieldEnabled, strconv.FormatBool(setting.Enabled),
			fieldUpdatedAt, setting.UpdatedAt.UTC().Format(time.RFC3339Nano),
			fieldUpdatedBy, setting.UpdatedBy,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save enforcement setting: %w", err)
	}
	return nil
}

// Ping reports whether the backing Redis is reachable.
func (r *EnforcementRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
