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

// Package log provides leveled, context-tagged logging. Messages carry a
// glog-style header (severity, timestamp, goroutine, caller) followed by the
// log tags found in the context, so that per-query and per-filter tags
// annotated via AmbientContext show up on every line.
package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/barnacledb/barnacle/pkg/util/syncutil"
	"github.com/barnacledb/barnacle/pkg/util/timeutil"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/petermattis/goid"
)

// Severity identifies the sort of log: info, warning, error, fatal.
type Severity int32

const (
	severityInfo Severity = iota
	severityWarning
	severityError
	severityFatal
)

const severityChar = "IWEF"

type loggingT struct {
	mu struct {
		syncutil.Mutex
		w io.Writer
	}
	// verbosity holds the log verbosity level set via SetVerbosity.
	// Accessed atomically.
	verbosity int32
}

var logging loggingT

func init() {
	logging.mu.w = os.Stderr
}

// V returns true if the verbosity is at or above the requested level.
// Guarding expensive log computations with V avoids the work when the
// message would be discarded anyway.
func V(level int32) bool {
	return VDepth(level, 1)
}

// VDepth is like V, taking the caller depth for file-based verbosity
// overrides. The depth parameter is accepted for interface compatibility
// with call sites that track their caller.
func VDepth(level int32, _ int) bool {
	return atomic.LoadInt32(&logging.verbosity) >= level
}

// SetVerbosity sets the global log verbosity and returns the previous value.
func SetVerbosity(level int32) int32 {
	return atomic.SwapInt32(&logging.verbosity, level)
}

// Infof logs to the INFO level. Arguments are handled in the manner of
// fmt.Printf; a newline is appended if missing.
func Infof(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, 1, severityInfo, format, args...)
}

// Warningf logs to the WARNING level.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, 1, severityWarning, format, args...)
}

// Errorf logs to the ERROR level.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, 1, severityError, format, args...)
}

// Fatalf logs to the FATAL level and terminates the process.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	logfDepth(ctx, 1, severityFatal, format, args...)
}

// VEventf logs a verbose event at the given level. The message is dropped
// unless the verbosity is at or above level.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if !VDepth(level, 1) {
		return
	}
	logfDepth(ctx, 1, severityInfo, format, args...)
}

func logfDepth(ctx context.Context, depth int, sev Severity, format string, args ...interface{}) {
	file, line := caller(depth + 1)
	// Format through redact so that values wrapped with redact.Safe and
	// redactable errors render consistently; markers are stripped for output.
	msg := string(redact.Sprintf(format, args...).StripMarkers())

	var buf bytes.Buffer
	formatHeader(&buf, sev, timeutil.Now(), goid.Get(), file, line, logtags.FromContext(ctx))
	buf.WriteString(msg)
	if !strings.HasSuffix(msg, "\n") {
		buf.WriteByte('\n')
	}

	logging.mu.Lock()
	_, _ = logging.mu.w.Write(buf.Bytes())
	logging.mu.Unlock()

	if sev == severityFatal {
		os.Exit(255)
	}
}

// formatHeader renders the log line prefix:
//
//	I250823 10:21:45.123456 15 runtimefilter/bank.go:123  [query=d9f6a766] ...
func formatHeader(
	buf *bytes.Buffer,
	sev Severity,
	now time.Time,
	gid int64,
	file string,
	line int,
	tags *logtags.Buffer,
) {
	buf.WriteByte(severityChar[sev])
	buf.WriteString(now.Format("060102 15:04:05.000000"))
	fmt.Fprintf(buf, " %d %s:%d  ", gid, file, line)
	if tags != nil {
		fmt.Fprintf(buf, "[%s] ", tags.String())
	}
}

// caller returns the file (shortened to its last two path elements) and line
// of the caller at the given depth.
func caller(depth int) (string, int) {
	_, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		return "???", 1
	}
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		if idx2 := strings.LastIndexByte(file[:idx], '/'); idx2 >= 0 {
			file = file[idx2+1:]
		}
	}
	return file, line
}
