package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger stamps the process-wide logger with the application name.
// Writer, level, and formatting come from the logging package, which
// must be configured first; InitLogger only decorates that logger and
// never rebuilds it, so env-driven settings stay in effect.
func InitLogger(app string) zerolog.Logger {
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
