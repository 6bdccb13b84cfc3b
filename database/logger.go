/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/sqlkit/utils"
)

var (
	defaultLogger   Logger
	defaultLoggerMu sync.Mutex
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "DEBUG"
	}
}

// Logger is the structured logger used by the connection layer, executors,
// transactions and repositories. Fields are alternating key/value pairs.
type Logger interface {
	SetLevel(LogLevel)
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// GetLogger returns the process default logger, named "DATABASE".
func GetLogger() Logger {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(utils.NewLogger("DATABASE"))
	}
	return defaultLogger
}

// SetDefaultLogger replaces the logger returned by GetLogger.
func SetDefaultLogger(l Logger) {
	if l == nil {
		return
	}
	defaultLoggerMu.Lock()
	defaultLogger = l
	defaultLoggerMu.Unlock()
}

// NewLogger adapts a logrus logger.
func NewLogger(l *logrus.Logger) Logger {
	return &logrusLogger{logger: l}
}

// NopLogger discards everything.
func NopLogger() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &logrusLogger{logger: l}
}

type logrusLogger struct {
	logger *logrus.Logger
}

func (l *logrusLogger) Debug(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, fields ...interface{}) {
	l.logger.WithFields(toFields(fields)).Error(msg)
}

func (l *logrusLogger) SetLevel(level LogLevel) {
	l.logger.SetLevel(utils.ParseLogLevel(strings.ToLower(level.String())))
}

func toFields(kv []interface{}) logrus.Fields {
	if len(kv) == 0 {
		return nil
	}
	fields := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	if len(kv)%2 == 1 {
		fields["_extra"] = kv[len(kv)-1]
	}
	return fields
}
