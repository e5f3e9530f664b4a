// Package logx configures the process-global zerolog logger. Call Init once
// at startup; importing pkg/logger/autoload does this from LOGGER_* env vars.
package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool `split_words:"true" default:"false"`
	PrettyFormat bool `split_words:"true" default:"false"`
}

// Init replaces log.Logger. With no arguments it installs info-level JSON on
// stdout; PrettyFormat switches to the human console writer and Debug lowers
// the level.
func Init(cfgs ...Config) {
	var cfg Config
	if len(cfgs) > 0 {
		cfg = cfgs[0]
	}

	out := io.Writer(os.Stdout)
	if cfg.PrettyFormat {
		out = zerolog.NewConsoleWriter()
	}

	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Caller().
		Stack().
		Logger()
}
