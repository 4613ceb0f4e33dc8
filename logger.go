// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"fmt"
	"strings"
)

// Logger receives messages emitted while the form processes events
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

// LogLevel is the minimum severity a LevelLogger passes on
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	OffLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "off"
	}
}

// ParseLogLevel parses off, debug, info, warn or error
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error", "":
		return ErrorLevel, nil
	case "off", "none":
		return OffLevel, nil
	default:
		return OffLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// LevelLogger drops messages below a threshold before passing them to another Logger
type LevelLogger struct {
	log   Logger
	level LogLevel
}

// NewLevelLogger wraps log, a nil log discards everything
func NewLevelLogger(log Logger, level LogLevel) *LevelLogger {
	return &LevelLogger{log: log, level: level}
}

// Level is the current threshold
func (l *LevelLogger) Level() LogLevel { return l.level }

func (l *LevelLogger) enabled(level LogLevel) bool {
	return l != nil && l.log != nil && l.level != OffLevel && level >= l.level
}

func (l *LevelLogger) Debugf(format string, v ...any) {
	if l.enabled(DebugLevel) {
		l.log.Debugf(format, v...)
	}
}

func (l *LevelLogger) Infof(format string, v ...any) {
	if l.enabled(InfoLevel) {
		l.log.Infof(format, v...)
	}
}

func (l *LevelLogger) Warnf(format string, v ...any) {
	if l.enabled(WarnLevel) {
		l.log.Warnf(format, v...)
	}
}

func (l *LevelLogger) Errorf(format string, v ...any) {
	if l.enabled(ErrorLevel) {
		l.log.Errorf(format, v...)
	}
}
