package log

import (
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter writes Logger calls to a zerolog.Logger.
type ZerologAdapter struct {
	zl zerolog.Logger
}

// NewZerologAdapterWithLogger wraps zl. Level filtering is left to zl.
func NewZerologAdapterWithLogger(zl zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{zl: zl}
}

func (z *ZerologAdapter) Debug(msg string, fields ...Field) { z.write(zerolog.DebugLevel, msg, fields) }
func (z *ZerologAdapter) Info(msg string, fields ...Field)  { z.write(zerolog.InfoLevel, msg, fields) }
func (z *ZerologAdapter) Warn(msg string, fields ...Field)  { z.write(zerolog.WarnLevel, msg, fields) }
func (z *ZerologAdapter) Error(msg string, fields ...Field) { z.write(zerolog.ErrorLevel, msg, fields) }

func (z *ZerologAdapter) write(level zerolog.Level, msg string, fields []Field) {
	e := z.zl.WithLevel(level)
	if e == nil {
		return
	}
	for _, f := range fields {
		f.appendTo(e)
	}
	e.Msg(msg)
}

func (f Field) appendTo(e *zerolog.Event) {
	switch f.kind {
	case kindString:
		e.Str(f.Key, f.str)
	case kindInt:
		e.Int64(f.Key, f.num)
	case kindDuration:
		e.Dur(f.Key, time.Duration(f.num))
	case kindStamp:
		e.Time(f.Key, time.Unix(0, f.num).UTC())
	case kindError:
		e.AnErr(f.Key, f.err)
	}
}
