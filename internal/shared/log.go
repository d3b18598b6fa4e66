package shared

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ConfigureLogging applies the configured level to every zerolog logger.
func ConfigureLogging(level string) error {
	if level == "" {
		level = zerolog.LevelInfoValue
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}
