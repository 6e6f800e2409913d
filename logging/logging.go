package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New builds a zap logger. "production"/"prod" gives JSON output at info
// level; "test" gives a no-op logger; anything else is the development console
// logger.
func New(mode string) (*zap.Logger, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		return zap.NewProduction()
	case "test", "nop":
		return zap.NewNop(), nil
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	}
}
