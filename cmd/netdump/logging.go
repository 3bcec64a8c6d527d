package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger writes human readable logs to stderr and, when lc.File is set,
// JSON logs to a rotated file. verbose lowers the level to debug, which
// includes every recorded transcript.
func newLogger(lc LogConfig, verbose bool) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	if lc.File != "" {
		w = zerolog.MultiLevelWriter(w, &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
