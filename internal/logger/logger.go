// Package logger builds the zerolog.Logger shared by every component.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LogBuild struct {
	writer  io.Writer
	console bool
	level   zerolog.Level
	service string
}

func New() *LogBuild {
	return &LogBuild{
		writer: os.Stdout,
		level:  zerolog.InfoLevel,
	}
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Console switches to the human readable writer used in debug runs.
func (build *LogBuild) Console(enabled bool) *LogBuild {
	build.console = enabled
	return build
}

// Level accepts zerolog level names; unknown names keep the current level.
func (build *LogBuild) Level(name string) *LogBuild {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name))); err == nil && name != "" {
		build.level = lvl
	}
	return build
}

func (build *LogBuild) Service(name string) *LogBuild {
	build.service = name
	return build
}

func (build *LogBuild) Make() zerolog.Logger {
	w := build.writer
	if build.console {
		w = zerolog.ConsoleWriter{Out: build.writer, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(w).Level(build.level).With().Timestamp()
	if build.service != "" {
		ctx = ctx.Str("service", build.service)
	}
	return ctx.Logger()
}

// Nop is a disabled logger for tests and optional components.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
