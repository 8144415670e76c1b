package scorestore

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/chopbox/internal/infra/config"
)

// Backend type names used in config.
const (
	TypeMemory   = "memory"
	TypeJSONFile = "jsonfile"
	TypeSQLite   = "sqlite"
	TypeValkey   = "valkey"
)

// NewFromConfig opens the backend selected by cfg.Type.
func NewFromConfig(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	zlog.Debug().Msgf("opening score store: type=%s settings=%+v", cfg.Type, redactSettings(cfg.Settings))

	var (
		store Store
		err   error
	)
	switch cfg.Type {
	case TypeMemory, "":
		store = NewMemoryStore()
	case TypeJSONFile:
		store, err = NewJSONFileStore(cfg.Settings)
	case TypeSQLite:
		store, err = NewSQLiteStore(ctx, cfg.Settings)
	case TypeValkey:
		store, err = NewValkeyStore(ctx, cfg.Settings)
	default:
		return nil, errors.Newf("unsupported store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s store", cfg.Type)
	}

	zlog.Info().Msgf("score store opened: type=%s", store.Name())
	return store, nil
}

func applyDefaultsAndValidate(out any) error {
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func redactSettings(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		if k == "password" {
			v = "***"
		}
		out[k] = v
	}
	return out
}
