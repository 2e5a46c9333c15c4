package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

var (
	defaultsMu sync.RWMutex
	// Zero values defer to APP_ENV and LOG_LEVEL.
	defaultLevel   = zerolog.NoLevel
	defaultConsole bool
)

// Configure sets the level and output format used by loggers created
// afterwards. An empty level keeps LOG_LEVEL; console forces the human
// readable writer whatever APP_ENV says.
func Configure(level string, console bool) error {
	lvl := zerolog.NoLevel
	if s := strings.ToLower(strings.TrimSpace(level)); s != "" {
		var err error
		lvl, err = zerolog.ParseLevel(s)
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
	}
	defaultsMu.Lock()
	defaultLevel, defaultConsole = lvl, console
	defaultsMu.Unlock()
	return nil
}

// NewZerologLogger creates a ZerologLogger on stderr. APP_ENV=dev selects the
// human readable console writer. All logs include the provided component field.
func NewZerologLogger(component string) Logger {
	return NewZerologLoggerTo(os.Stderr, component)
}

// NewZerologLoggerTo is NewZerologLogger with an explicit destination.
func NewZerologLoggerTo(w io.Writer, component string) Logger {
	defaultsMu.RLock()
	lvl, console := defaultLevel, defaultConsole
	defaultsMu.RUnlock()

	if console || strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: w != os.Stderr}
	}
	if lvl == zerolog.NoLevel {
		lvl = levelFromEnv()
	}
	z := zerolog.New(w).Level(lvl).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

// levelFromEnv reads LOG_LEVEL and falls back to info.
func levelFromEnv() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Infow(msg string, fields map[string]any) {
	l.log.Info().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
