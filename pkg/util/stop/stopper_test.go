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

package stop_test

import (
	"context"
	"testing"

	"github.com/barnacledb/barnacle/pkg/util/leaktest"
	"github.com/barnacledb/barnacle/pkg/util/log"
	"github.com/barnacledb/barnacle/pkg/util/stop"
	"github.com/stretchr/testify/require"
)

func TestStopperRunTask(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	s := stop.NewStopper()
	ctx := context.Background()

	var ran bool
	require.NoError(t, s.RunTask(ctx, "test", func(context.Context) {
		ran = true
	}))
	require.True(t, ran)
	s.Stop(ctx)
}

func TestStopperWaitsForAsyncTasks(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	s := stop.NewStopper()
	ctx := context.Background()

	started := make(chan struct{})
	unblock := make(chan struct{})
	done := make(chan struct{})
	require.NoError(t, s.RunAsyncTask(ctx, "test", func(context.Context) {
		close(started)
		<-unblock
		close(done)
	}))
	<-started
	require.Equal(t, 1, s.NumTasks())

	go func() {
		<-s.ShouldQuiesce()
		close(unblock)
	}()
	s.Stop(ctx)

	// Stop must not have returned before the task finished.
	select {
	case <-done:
	default:
		t.Fatal("Stop returned before the async task completed")
	}
}

func TestStopperRefusesNewTasksAfterQuiesce(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	s := stop.NewStopper()
	ctx := context.Background()

	s.Stop(ctx)
	err := s.RunAsyncTask(ctx, "test", func(context.Context) {
		t.Error("task ran after Stop")
	})
	require.ErrorIs(t, err, stop.ErrUnavailable)
	require.ErrorIs(t, s.RunTask(ctx, "test", func(context.Context) {}), stop.ErrUnavailable)
}

func TestStopperClosers(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	s := stop.NewStopper()
	ctx := context.Background()

	var order []int
	s.AddCloser(stop.CloserFn(func() { order = append(order, 1) }))
	s.AddCloser(stop.CloserFn(func() { order = append(order, 2) }))
	s.Stop(ctx)
	require.Equal(t, []int{1, 2}, order)

	// Closers added after Stop run immediately.
	s.AddCloser(stop.CloserFn(func() { order = append(order, 3) }))
	require.Equal(t, []int{1, 2, 3}, order)

	select {
	case <-s.IsStopped():
	default:
		t.Fatal("IsStopped channel not closed after Stop")
	}
}
