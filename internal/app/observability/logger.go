package observability

import (
	"strings"

	"go.uber.org/zap"
)

// NewLogger builds a JSON logger for production and a console logger
// otherwise.
func NewLogger(appEnv string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(appEnv)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
