package log

import "time"

// Logger is the structured logger sensorsync components write to.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindInt
	kindDuration
	kindStamp
	kindError
)

// Field is one typed key/value pair attached to a log line.
type Field struct {
	Key  string
	kind fieldKind
	str  string
	num  int64
	err  error
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, kind: kindString, str: value}
}

// Int creates an int field.
func Int(key string, value int) Field {
	return Field{Key: key, kind: kindInt, num: int64(value)}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, kind: kindInt, num: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, kind: kindDuration, num: int64(value)}
}

// Stamp creates a field for a unix-nanosecond sensor timestamp. It is
// rendered as a UTC time.
func Stamp(key string, ns int64) Field {
	return Field{Key: key, kind: kindStamp, num: ns}
}

// Err creates an error field under "error".
func Err(err error) Field {
	return Field{Key: "error", kind: kindError, err: err}
}
