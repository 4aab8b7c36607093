// Package debug holds the zerolog hooks and logger constructors shared by
// the server and the CLI.
package debug

import (
	"fmt"
	"io"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

const DefaultTimeFormat = "2006-01-02T15:04:05.0000Z"

type CustomTimeHook struct {
	Format string
	Now    func() time.Time
}

func (t CustomTimeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	format := t.Format
	if format == "" {
		format = DefaultTimeFormat
	}
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	e.Str("time", now().UTC().Format(format))
}

// CustomCallerHook adds the first caller outside zerolog as pkg:file:line.
type CustomCallerHook struct {
	WithColor bool
}

func (c CustomCallerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !skipFrame(f.Function) {
			pkg, _ := SplitFuncName(f.Function)
			e.Str("caller", FormatCaller(pkg, f.File, f.Line, c.WithColor))
			return
		}
		if !more {
			return
		}
	}
}

func skipFrame(fn string) bool {
	return strings.HasPrefix(fn, "github.com/rs/zerolog") ||
		strings.Contains(fn, "/pkg/debug.")
}

// SplitFuncName splits a runtime function name into package path and the
// function, keeping method receivers with the function.
func SplitFuncName(name string) (pkg, function string) {
	lastSlash := max(strings.LastIndexByte(name, '/'), 0)
	dot := strings.IndexByte(name[lastSlash:], '.')
	if dot < 0 {
		return name, ""
	}
	dot += lastSlash
	return name[:dot], name[dot+1:]
}

func FormatCaller(pkg, file string, line int, colorize bool) string {
	base := path.Base(file)
	if !colorize {
		return fmt.Sprintf("%s:%s:%d", pkg, base, line)
	}
	sep := color.New(color.Faint).Sprint(":")
	return pkg + sep + color.New(color.Bold).Sprint(base) + sep + color.New(color.FgHiRed, color.Bold).Sprintf("%d", line)
}

func Level(verbose bool) zerolog.Level {
	if verbose {
		return zerolog.TraceLevel
	}
	return zerolog.InfoLevel
}

// NewConsoleLogger builds the human readable logger used by the CLI.
func NewConsoleLogger(w io.Writer, level zerolog.Level, colorize bool) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, NoColor: !colorize, TimeFormat: time.TimeOnly}
	return zerolog.New(cw).Level(level).Hook(CustomCallerHook{WithColor: colorize}).With().Timestamp().Logger()
}

// NewJSONLogger builds a logger whose output another process parses.
func NewJSONLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).Hook(CustomTimeHook{}).Hook(CustomCallerHook{})
}
