// Copyright (c) 2024 The Dgram Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLoggerAsLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dgram.log")
	logger, flush, err := CreateLoggerAsLocalFile(path, WarnLevel)
	require.NoError(t, err)

	logger.Infof("dropped %d", 1)
	logger.Warnf("kept %d", 2)
	require.NoError(t, flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), prefix+" ")
	assert.Contains(t, string(data), "kept 2")
	assert.NotContains(t, string(data), "dropped 1")

	_, _, err = CreateLoggerAsLocalFile("", InfoLevel)
	assert.Error(t, err)
}

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) record(level, format string, args ...interface{}) {
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debugf(format string, args ...interface{}) { l.record("D", format, args...) }
func (l *recordingLogger) Infof(format string, args ...interface{})  { l.record("I", format, args...) }
func (l *recordingLogger) Warnf(format string, args ...interface{})  { l.record("W", format, args...) }
func (l *recordingLogger) Errorf(format string, args ...interface{}) { l.record("E", format, args...) }
func (l *recordingLogger) Fatalf(format string, args ...interface{}) { l.record("F", format, args...) }

func TestSetDefaultLoggerAndFlusher(t *testing.T) {
	prevLogger, prevFlusher := GetDefaultLogger(), GetDefaultFlusher()
	t.Cleanup(func() { SetDefaultLoggerAndFlusher(prevLogger, prevFlusher) })

	rec := new(recordingLogger)
	flushed := false
	SetDefaultLoggerAndFlusher(rec, func() error {
		flushed = true
		return nil
	})

	Debugf("a=%d", 1)
	Infof("b")
	Warnf("c")
	Errorf("d")
	Error(nil)
	Error(os.ErrClosed)
	Cleanup()

	assert.Equal(t, []string{
		"D a=1",
		"I b",
		"W c",
		"E d",
		"E error occurs during runtime, " + os.ErrClosed.Error(),
	}, rec.lines)
	assert.True(t, flushed)
}
