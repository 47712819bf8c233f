package codeset

import (
	"context"
	"log/slog"
)

// FallbackLoader tries the primary tier first and falls back to the seed
// tier when the primary errors or returns an empty catalog. Falling back is
// always logged so a production process quietly running on sample data is
// visible in the logs.
type FallbackLoader struct {
	primary  Loader
	fallback Loader
	logger   *slog.Logger
}

func NewFallbackLoader(primary, fallback Loader, logger *slog.Logger) *FallbackLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackLoader{primary: primary, fallback: fallback, logger: logger}
}

func (l *FallbackLoader) LoadAll(ctx context.Context) ([]Entry, error) {
	entries, err := l.primary.LoadAll(ctx)
	if err == nil && len(entries) > 0 {
		return entries, nil
	}
	if err != nil {
		l.logger.WarnContext(ctx, "primary code-set tier failed, using fallback seed catalog", "error", err)
	} else {
		l.logger.WarnContext(ctx, "primary code-set tier empty, using fallback seed catalog")
	}
	return l.fallback.LoadAll(ctx)
}
