// Package settings stores the enforcement setting in a small YAML file next
// to the account database.
package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/99minutos/authgate/internal/core/domain"
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
)

type record struct {
	AuthenticationEnabled *bool     `yaml:"authentication_enabled"`
	UpdatedAt             time.Time `yaml:"updated_at"`
	UpdatedBy             string    `yaml:"updated_by"`
}

// FileRepository keeps the setting in a YAML document at path.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository returns a repository rooted at path. The file is created
// on first Save.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Path returns the settings file location.
func (r *FileRepository) Path() string { return r.path }

// Load reads and decodes the file. A missing or empty file is
// domain.ErrSettingNotFound; anything undecodable is domain.ErrSettingCorrupt.
func (r *FileRepository) Load(ctx context.Context) (domain.EnforcementSetting, error) {
	if err := ctx.Err(); err != nil {
		return domain.EnforcementSetting{}, err
	}

	r.mu.Lock()
	data, err := os.ReadFile(r.path)
	r.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return domain.EnforcementSetting{}, domain.ErrSettingNotFound
	}
	if err != nil {
		return domain.EnforcementSetting{}, fmt.Errorf("read settings file: %w", err)
	}
	if len(data) == 0 {
		return domain.EnforcementSetting{}, domain.ErrSettingNotFound
	}

	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return domain.EnforcementSetting{}, fmt.Errorf("%w: %w", domain.ErrSettingCorrupt, err)
	}
	if rec.AuthenticationEnabled == nil {
		return domain.EnforcementSetting{}, fmt.Errorf("%w: authentication_enabled missing", domain.ErrSettingCorrupt)
	}

	return domain.EnforcementSetting{
		Enabled:   *rec.AuthenticationEnabled,
		UpdatedAt: rec.UpdatedAt.UTC(),
		UpdatedBy: rec.UpdatedBy,
	}, nil
}

// Save writes to a temporary file in the same directory and renames it over
// the target, so a crash mid-write leaves the previous document intact.
func (r *FileRepository) Save(ctx context.Context, setting domain.EnforcementSetting) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	enabled := setting.Enabled
	data, err := yaml.Marshal(record{
		AuthenticationEnabled: &enabled,
		UpdatedAt:             setting.UpdatedAt.UTC(),
		UpdatedBy:             setting.UpdatedBy,
	})
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("chmod settings: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}
