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
	"testing"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel(" warning "))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("bogus"))
}

func TestTextLogFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("TEXT")
	l.SetOutput(&buf)
	l.SetLevel(logrus.DebugLevel)

	l.WithFields(logrus.Fields{"type": "Widget", "count": 2}).Info("registered")

	line := buf.String()
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "registered count=2 type=Widget")
}

func TestJSONLogFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&JSONLogFormatter{LoggerName: "JSON"})

	l.WithField("error", assert.AnError).Warn("skipped")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "warning", rec["level"])
	assert.Equal(t, "JSON", rec["logger"])
	assert.Equal(t, "skipped", rec["message"])
	assert.Equal(t, assert.AnError.Error(), rec["fields"].(map[string]interface{})["error"])
}

func TestSetLoggerLevel(t *testing.T) {
	l := NewLogger("LEVELS")
	assert.True(t, SetLoggerLevel("LEVELS", "error"))
	assert.Equal(t, logrus.ErrorLevel, l.GetLevel())
	assert.False(t, SetLoggerLevel("missing", "error"))
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("UTILS_TEST_BOOL", "true")
	assert.True(t, EnvDefaultBool("UTILS_TEST_BOOL", false))
	assert.Equal(t, "x", EnvDefaultString("UTILS_TEST_UNSET", "x"))
	assert.False(t, EnvDefaultBool("UTILS_TEST_UNSET", false))
}
