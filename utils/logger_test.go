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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel(" WARN "))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("loud"))
}

func TestNewLoggerIsRegistered(t *testing.T) {
	a := NewLogger("REGISTRY_TEST")
	assert.Same(t, a, NewLogger("REGISTRY_TEST"))

	assert.True(t, SetLoggerLevel("REGISTRY_TEST", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("NO_SUCH_LOGGER", "error"))
}

func TestTextFormatter(t *testing.T) {
	f := &TextFormatter{LoggerName: "DATABASE"}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "slow query",
		Data:    logrus.Fields{"rows": 3, "duration": "2s"},
	}
	b, err := f.Format(entry)
	require.NoError(t, err)

	line := string(b)
	assert.True(t, strings.HasPrefix(line, "2025-01-02 15:04:05.000 WARNING "))
	assert.Contains(t, line, "[main]   DATABASE : slow query duration=2s rows=3\n")
}

func TestRotatingFileHook(t *testing.T) {
	dir := t.TempDir()
	l := logrus.New()
	l.SetOutput(&strings.Builder{})
	require.NoError(t, AddRotatingFileHook(l, "FILETEST", FileLogConfig{Dir: dir, MaxSizeMB: 1}))

	l.WithField("tx", "abc").Info("committed")
	require.NoError(t, CloseFileLogs())

	data, err := os.ReadFile(filepath.Join(dir, "filetest.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "committed tx=abc")
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("SQLKIT_TEST_STR", "value")
	t.Setenv("SQLKIT_TEST_BOOL", "true")
	t.Setenv("SQLKIT_TEST_BAD_BOOL", "maybe")

	assert.Equal(t, "value", EnvDefaultString("SQLKIT_TEST_STR", "def"))
	assert.Equal(t, "def", EnvDefaultString("SQLKIT_TEST_MISSING", "def"))
	assert.True(t, EnvDefaultBool("SQLKIT_TEST_BOOL", false))
	assert.True(t, EnvDefaultBool("SQLKIT_TEST_BAD_BOOL", true))
}
