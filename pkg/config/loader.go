// Package config loads typed configuration structs from environment
// variables, with a .env file picked up automatically in development.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrNilConfig        = errors.New("config: nil pointer passed to Load")
	ErrFailedToParseEnv = errors.New("config: failed to parse environment variables")
)

// configCache stores loaded configurations so each unique config type is
// parsed exactly once per process.
type configCache struct {
	mu     sync.RWMutex
	values map[string]any
}

var (
	globalCache      = &configCache{values: make(map[string]any)}
	defaultEnvLoaded sync.Once
)

// Load parses environment variables into the provided configuration struct
// based on `env:` field tags. The default .env file is loaded once, if
// present; subsequent calls for the same type return the cached value.
//
//	type PaddleConfig struct {
//		APIKey string `env:"PADDLE_API_KEY,required"`
//	}
//
//	var cfg PaddleConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		// The .env file is optional; absence is not an error.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilConfig
	}

	key := reflect.TypeOf(*v).String()

	globalCache.mu.RLock()
	cached, ok := globalCache.values[key]
	globalCache.mu.RUnlock()
	if ok {
		*v = cached.(T)
		return nil
	}

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrFailedToParseEnv, fmt.Errorf("type %s: %w", key, err))
	}

	globalCache.mu.Lock()
	globalCache.values[key] = *v
	globalCache.mu.Unlock()
	return nil
}
