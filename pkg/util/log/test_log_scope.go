// Copyright 2025 The Barnacle Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package log

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

// TestLogScope temporarily redirects the log output to a file in a
// test-specific directory. Use it in tests as
//
//	defer log.Scope(t).Close(t)
//
// so that log output does not interleave with the test harness output, and
// so that the logs of a failed test can be inspected afterwards.
type TestLogScope struct {
	prev io.Writer
	file *os.File
	dir  string
}

// Scope starts a test log scope.
func Scope(t testing.TB) *TestLogScope {
	t.Helper()
	dir, err := os.MkdirTemp("", "logscope")
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatal(err)
	}
	logging.mu.Lock()
	prev := logging.mu.w
	logging.mu.w = f
	logging.mu.Unlock()
	return &TestLogScope{prev: prev, file: f, dir: dir}
}

// Close restores the previous log output. If the test failed, the log
// directory is retained and its location logged; otherwise it is removed.
func (l *TestLogScope) Close(t testing.TB) {
	t.Helper()
	logging.mu.Lock()
	logging.mu.w = l.prev
	logging.mu.Unlock()
	_ = l.file.Close()
	if t.Failed() {
		t.Logf("test logs retained in: %s", l.dir)
	} else {
		_ = os.RemoveAll(l.dir)
	}
}
