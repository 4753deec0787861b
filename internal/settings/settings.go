// Package settings serves runtime-tunable policy values. Reads never fail the
// caller: an unreachable or malformed source yields the caller's default.
package settings

import (
	"context"
	"strconv"
	"strings"

	"cybertrainer/internal/observability"
)

const (
	KeyMaxLoginAttempts   = "maxLoginAttempts"
	KeySessionTimeoutDays = "sessionTimeoutDays"
	KeySiteName           = "siteName"
)

// Source is one layer of settings. ok is false when the layer has no value for key.
type Source interface {
	Lookup(ctx context.Context, key string) (value string, ok bool, err error)
}

// Values is a fixed in-memory layer.
type Values map[string]string

func (v Values) Lookup(_ context.Context, key string) (string, bool, error) {
	value, ok := v[key]
	return value, ok, nil
}

// Provider consults its sources in order and returns the first value found.
type Provider struct {
	sources []Source
	logger  *observability.Logger
}

func NewProvider(logger *observability.Logger, sources ...Source) *Provider {
	kept := make([]Source, 0, len(sources))
	for _, source := range sources {
		if source != nil {
			kept = append(kept, source)
		}
	}
	return &Provider{sources: kept, logger: logger}
}

func (p *Provider) String(ctx context.Context, key, fallback string) string {
	if value, ok := p.lookup(ctx, key); ok {
		return value
	}
	return fallback
}

// Int returns the positive integer stored under key, or fallback.
func (p *Provider) Int(ctx context.Context, key string, fallback int) int {
	raw, ok := p.lookup(ctx, key)
	if !ok {
		return fallback
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		p.logger.Warn("settings_value_ignored", map[string]any{"key": key, "value": raw})
		return fallback
	}
	return value
}

func (p *Provider) lookup(ctx context.Context, key string) (string, bool) {
	if p == nil {
		return "", false
	}

	for _, source := range p.sources {
		value, ok, err := source.Lookup(ctx, key)
		if err != nil {
			p.logger.Warn("settings_lookup_failed", map[string]any{"key": key, "error": err.Error()})
			continue
		}
		if ok {
			return value, true
		}
	}
	return "", false
}
