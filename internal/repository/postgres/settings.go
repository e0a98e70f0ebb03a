package postgres

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/merchpulse/storesync/internal/repository"
	"github.com/merchpulse/storesync/pkg/security"
)

type settingsRepository struct {
	BaseRepository
	encryptor security.Encryptor
}

// NewSettingsRepository creates the settings store. The encryptor guards
// the remote API secret at rest.
func NewSettingsRepository(base BaseRepository, encryptor security.Encryptor) repository.SettingsRepository {
	return &settingsRepository{BaseRepository: base, encryptor: encryptor}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM sync_settings WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

func (r *settingsRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO sync_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

func (r *settingsRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// LastRun returns the stored gate timestamp, or the zero time when the
// gate has never fired.
func (r *settingsRepository) LastRun(ctx context.Context, key string) (time.Time, error) {
	value, err := r.Get(ctx, key)
	if err != nil || value == "" {
		return time.Time{}, err
	}

	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed gate timestamp %s: %w", key, err)
	}
	return time.Unix(unix, 0), nil
}

func (r *settingsRepository) SetLastRun(ctx context.Context, key string, t time.Time) error {
	return r.Set(ctx, key, strconv.FormatInt(t.Unix(), 10))
}

func (r *settingsRepository) Credentials(ctx context.Context) (*repository.Credentials, error) {
	apiKey, err := r.Get(ctx, repository.SettingAPIKey)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, nil
	}

	sealed, err := r.Get(ctx, repository.SettingAPISecret)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("malformed stored secret: %w", err)
	}
	secret, err := r.encryptor.Decrypt(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt stored secret: %w", err)
	}

	return &repository.Credentials{APIKey: apiKey, APISecret: string(secret)}, nil
}

func (r *settingsRepository) SetCredentials(ctx context.Context, creds *repository.Credentials) error {
	sealed, err := r.encryptor.Encrypt([]byte(creds.APISecret))
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	if err := r.Set(ctx, repository.SettingAPIKey, creds.APIKey); err != nil {
		return err
	}
	return r.Set(ctx, repository.SettingAPISecret, base64.StdEncoding.EncodeToString(sealed))
}

func (r *settingsRepository) DeleteCredentials(ctx context.Context) error {
	if err := r.Delete(ctx, repository.SettingAPIKey); err != nil {
		return err
	}
	return r.Delete(ctx, repository.SettingAPISecret)
}
