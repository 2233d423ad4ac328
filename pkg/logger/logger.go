// Package logger, uygulamanın root zerolog logger'ını kurar.
// Her bileşen kendi child logger'ını .With().Str("component", ...) ile türetir.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New, verilen seviye ile root logger oluşturur.
// pretty true ise insan-okunur console çıktısı, değilse JSON satırları yazılır.
// Geçersiz seviye info'ya düşer.
func New(level string, pretty bool) zerolog.Logger {
	return NewWithWriter(os.Stderr, level, pretty)
}

// NewWithWriter, çıktı hedefi verilebilen New.
func NewWithWriter(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
