package main

import (
	"os"

	"github.com/rs/zerolog"
)

// zerologAdapter satisfies the bridge Logger interface on top of a
// structured zerolog logger. Args are alternating key/value pairs.
type zerologAdapter struct {
	log zerolog.Logger
}

func newZerologAdapter(level string) *zerologAdapter {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().Timestamp().Logger()
	return &zerologAdapter{log: log}
}

func (z *zerologAdapter) Debug(msg string, args ...interface{}) { z.emit(z.log.Debug(), msg, args) }
func (z *zerologAdapter) Info(msg string, args ...interface{})  { z.emit(z.log.Info(), msg, args) }
func (z *zerologAdapter) Warn(msg string, args ...interface{})  { z.emit(z.log.Warn(), msg, args) }
func (z *zerologAdapter) Error(msg string, args ...interface{}) { z.emit(z.log.Error(), msg, args) }

func (z *zerologAdapter) emit(ev *zerolog.Event, msg string, args []interface{}) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}
