package observability

import (
	"os"

	"github.com/danmuck/qpnet/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs the runtime console logger tagged with app. level
// comes from the config file; QPNET_LOG_LEVEL still wins when set.
func InitLogger(app string, level string) zerolog.Logger {
	logging.ConfigureRuntime()
	if lvl, ok := logging.ParseLevel(level); ok && os.Getenv(logging.EnvLogLevel) == "" {
		zerolog.SetGlobalLevel(lvl)
	}
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
