package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// output selects the log destination. APP_ENV=dev switches to the
// human-readable console writer; everything else emits JSON lines on stdout.
func output() io.Writer {
	if strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
		return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return os.Stdout
}

// zerologAdapter bridges a zerolog.Logger to the core Logger interface.
// Every line carries the component it was emitted from.
type zerologAdapter struct {
	zl zerolog.Logger
}

func newZerolog(component string) *zerologAdapter {
	zl := zerolog.New(output()).With().Timestamp().Str("component", component).Logger()
	return &zerologAdapter{zl: zl}
}

func (a *zerologAdapter) Debugf(format string, args ...any) { a.zl.Debug().Msgf(format, args...) }

func (a *zerologAdapter) Debugw(msg string, fields map[string]any) {
	a.zl.Debug().Fields(fields).Msg(msg)
}

func (a *zerologAdapter) Infof(format string, args ...any) { a.zl.Info().Msgf(format, args...) }

func (a *zerologAdapter) Warnf(format string, args ...any) { a.zl.Warn().Msgf(format, args...) }

func (a *zerologAdapter) Errorf(format string, args ...any) { a.zl.Error().Msgf(format, args...) }
