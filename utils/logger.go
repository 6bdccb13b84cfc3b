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

package utils

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger = logrus.Logger

const timestampFormat = "2006-01-02 15:04:05.000"

// FileLogConfig controls the rotating file sink shared by every named logger.
type FileLogConfig struct {
	Enabled    bool
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	JSON       bool
}

var (
	registryMu   sync.RWMutex
	registry     = map[string]*logrus.Logger{}
	baseLevel    = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleJSON  = strings.EqualFold(EnvDefaultString("CONSOLE_LOG_FORMAT", "text"), "json")
	fileLog      = FileLogConfig{Enabled: EnvDefaultBool("FILE_LOG_ENABLED", false), Dir: "logs", MaxSizeMB: 100, MaxBackups: 7, MaxAgeDays: 30}
	fileWritersM sync.Mutex
	fileWriters  = map[string]*lumberjack.Logger{}
)

// ConfigureFileLog sets the file sink for loggers created afterwards.
func ConfigureFileLog(cfg FileLogConfig) {
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}
	fileLog = cfg
}

// ConfigureConsoleLogFormat switches console output between "text" and "json".
func ConfigureConsoleLogFormat(format string) {
	consoleJSON = strings.EqualFold(strings.TrimSpace(format), "json")
}

// ParseLogLevel maps a level name to a logrus level, defaulting to info.
func ParseLogLevel(s string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// ConfigureLogLevel applies a level to every registered logger.
func ConfigureLogLevel(levelStr string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	baseLevel = ParseLogLevel(levelStr)
	for _, l := range registry {
		l.SetLevel(baseLevel)
	}
}

// SetLoggerLevel changes the level of one named logger.
func SetLoggerLevel(name string, levelStr string) bool {
	registryMu.RLock()
	l, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return false
	}
	l.SetLevel(ParseLogLevel(levelStr))
	return true
}

// NewLogger returns the logger registered under name, creating it on first use.
func NewLogger(name string) *logrus.Logger {
	registryMu.Lock()
	defer registryMu.Unlock()
	if l, ok := registry[name]; ok {
		return l
	}

	l := logrus.New()
	l.SetLevel(baseLevel)
	l.SetOutput(os.Stdout)
	if consoleJSON {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat, FieldMap: logrus.FieldMap{logrus.FieldKeyMsg: "message"}})
	} else {
		l.SetFormatter(&TextFormatter{LoggerName: name, Color: true})
	}
	if fileLog.Enabled {
		if err := AddRotatingFileHook(l, name, fileLog); err != nil {
			l.WithError(err).Warn("file logging disabled")
		}
	}
	registry[name] = l
	return l
}

// AddRotatingFileHook mirrors l's entries into <dir>/<name>.log, rotated by lumberjack.
func AddRotatingFileHook(l *logrus.Logger, name string, cfg FileLogConfig) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(cfg.Dir, strings.ToLower(name)+".log")

	fileWritersM.Lock()
	w, ok := fileWriters[path]
	if !ok {
		w = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		fileWriters[path] = w
	}
	fileWritersM.Unlock()

	var f logrus.Formatter = &TextFormatter{LoggerName: name}
	if cfg.JSON {
		f = &logrus.JSONFormatter{TimestampFormat: timestampFormat}
	}
	l.AddHook(&writerHook{writer: w, formatter: f})
	return nil
}

// CloseFileLogs flushes and closes every rotating file opened by this package.
func CloseFileLogs() error {
	fileWritersM.Lock()
	defer fileWritersM.Unlock()
	var first error
	for path, w := range fileWriters {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
		delete(fileWriters, path)
	}
	return first
}

type writerHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *writerHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *writerHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

// TextFormatter renders log4j-style lines:
//
//	2025-01-02 15:04:05.000    INFO 4242   - [main]   DATABASE : message key=value
type TextFormatter struct {
	LoggerName string
	NameWidth  int
	Color      bool
}

func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	width := f.NameWidth
	if width <= 0 {
		width = 10
	}
	name := f.LoggerName
	if len(name) > width {
		name = name[:width]
	}

	lvl := fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String()))
	pid := fmt.Sprintf("%-6d", os.Getpid())
	name = fmt.Sprintf("%"+strconv.Itoa(width)+"s", name)
	if f.Color {
		lvl = levelColor(entry.Level).Sprint(lvl)
		pid = color.MagentaString(pid)
		name = color.CyanString(name)
	}

	var buf bytes.Buffer
	ts := entry.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	fmt.Fprintf(&buf, "%s %s %s - [main] %s : %s", ts.Format(timestampFormat), lvl, pid, name, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, " %s=%v", k, entry.Data[k])
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return color.New(color.FgBlue)
	case logrus.InfoLevel:
		return color.New(color.FgGreen)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}
