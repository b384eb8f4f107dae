// Package niches maps generation types to backend, model, cost and default options.
package niches

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/slye-labs/slye-backend/internal/backends"
	"github.com/slye-labs/slye-backend/pkg/db/models"
	"github.com/slye-labs/slye-backend/pkg/enums"
)

var ErrUnknownType = errors.New("unknown generation type")

// Config describes one generation type.
type Config struct {
	Type        string
	DisplayName string
	Backend     backends.Name
	Model       string
	CreditCost  int
	Defaults    models.VideoOptions
}

// UsageDescription is the ledger description written when credits are spent.
func (c Config) UsageDescription() string {
	return c.DisplayName + " generation"
}

// RefundDescription is the ledger description written on compensation.
func (c Config) RefundDescription() string {
	return c.DisplayName + " generation failed"
}

// MergeOptions overlays caller options on the type defaults.
func (c Config) MergeOptions(opts models.VideoOptions) models.VideoOptions {
	merged := c.Defaults
	if v := strings.TrimSpace(string(opts.AspectRatio)); v != "" {
		merged.AspectRatio = enums.AspectRatio(v)
	}
	if v := strings.TrimSpace(opts.Mode); v != "" {
		merged.Mode = v
	}
	return merged
}

// Registry is immutable after construction.
type Registry struct {
	configs map[string]Config
	types   []string
}

// NewRegistry validates every entry; a bad entry fails startup.
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{configs: make(map[string]Config, len(configs))}
	for _, cfg := range configs {
		key := strings.TrimSpace(cfg.Type)
		switch {
		case key == "":
			return nil, errors.New("niche type is required")
		case cfg.Backend == "":
			return nil, fmt.Errorf("niche %q: backend is required", key)
		case strings.TrimSpace(cfg.Model) == "":
			return nil, fmt.Errorf("niche %q: model is required", key)
		case cfg.CreditCost <= 0:
			return nil, fmt.Errorf("niche %q: credit cost must be positive", key)
		}
		if _, dup := r.configs[key]; dup {
			return nil, fmt.Errorf("niche %q defined twice", key)
		}
		cfg.Type = key
		if cfg.DisplayName == "" {
			cfg.DisplayName = key
		}
		r.configs[key] = cfg
		r.types = append(r.types, key)
	}
	sort.Strings(r.types)
	return r, nil
}

// Validate checks that every configured backend exists in the backend registry.
func (r *Registry) Validate(reg *backends.Registry) error {
	for _, key := range r.types {
		if _, err := reg.Get(r.configs[key].Backend); err != nil {
			return fmt.Errorf("niche %q: %w", key, err)
		}
	}
	return nil
}

func (r *Registry) GetConfig(genType string) (Config, error) {
	cfg, ok := r.configs[strings.TrimSpace(genType)]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownType, genType)
	}
	return cfg, nil
}

func (r *Registry) ListTypes() []string {
	out := make([]string, len(r.types))
	copy(out, r.types)
	return out
}

// List returns configs ordered by type.
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.types))
	for _, key := range r.types {
		out = append(out, r.configs[key])
	}
	return out
}

func (r *Registry) CreditCost(genType string) (int, error) {
	cfg, err := r.GetConfig(genType)
	if err != nil {
		return 0, err
	}
	return cfg.CreditCost, nil
}
