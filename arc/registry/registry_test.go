// Copyright 2024 The Podseidon Authors.
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

package registry_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/sharedcell/arc"
	"github.com/kubewharf/sharedcell/arc/observer"
	"github.com/kubewharf/sharedcell/arc/registry"
	"github.com/kubewharf/sharedcell/internal/celltrack"
)

func TestGetOrCreateDeduplicates(t *testing.T) {
	t.Parallel()

	reg := registry.New[string, string]()
	defer reg.Close()

	ctorCalls := 0
	ctor := func(key string) string {
		ctorCalls++
		return "value of " + key
	}

	first := reg.GetOrCreate("a", ctor)
	second := reg.GetOrCreate("a", ctor)

	assert.True(t, arc.PtrEq(first, second))
	assert.Equal(t, 1, ctorCalls)
	assert.Equal(t, "value of a", *second.Get())
	assert.Equal(t, 2, first.StrongCount())
	assert.Equal(t, 1, first.WeakCount())

	other := reg.GetOrCreate("b", ctor)
	assert.False(t, arc.PtrEq(first, other))
	assert.Equal(t, 2, ctorCalls)
	assert.Equal(t, 2, reg.Len())

	for _, handle := range []*arc.Arc[string]{first, second, other} {
		handle.Drop()
	}
}

func TestRegistryDoesNotKeepCellsAlive(t *testing.T) {
	t.Parallel()

	tracker := celltrack.NewTracker()
	reg := registry.New[int, *celltrack.Payload](
		tracker.Options(arc.WithObserver[*celltrack.Payload](tracker.Observer()))...,
	)

	handle := reg.GetOrCreate(1, tracker.NewPayload)
	payload := *handle.Get()

	handle.Drop()
	assert.True(t, payload.Poisoned())
	assert.Equal(t, int64(1), tracker.Destroyed())
	assert.Equal(t, int64(0), tracker.Freed())

	assert.True(t, reg.Get(1).IsNone())
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, int64(1), tracker.Freed())
}

func TestGetOrCreateReplacesDestroyedCell(t *testing.T) {
	t.Parallel()

	reg := registry.New[string, int]()
	defer reg.Close()

	first := reg.GetOrCreate("k", func(string) int { return 1 })
	first.Drop()

	second := reg.GetOrCreate("k", func(string) int { return 2 })
	assert.Equal(t, 2, *second.Get())
	assert.Equal(t, 1, reg.Len())

	got := reg.Get("k").MustGet("second is alive")
	assert.True(t, arc.PtrEq(second, got))

	got.Drop()
	second.Drop()
}

func TestSweep(t *testing.T) {
	t.Parallel()

	reg := registry.New[int, int]()

	alive := reg.GetOrCreate(1, func(key int) int { return key })
	reg.GetOrCreate(2, func(key int) int { return key }).Drop()
	reg.GetOrCreate(3, func(key int) int { return key }).Drop()

	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, 2, reg.Sweep())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 0, reg.Sweep())

	reg.Close()
	assert.Equal(t, 0, reg.Len())

	// Closing the registry only drops its weak handle.
	assert.Equal(t, 1, *alive.Get())
	assert.Equal(t, 0, alive.WeakCount())
	alive.Drop()
}

func TestConcurrentGetOrCreate(t *testing.T) {
	t.Parallel()

	tracker := celltrack.NewTracker()
	reg := registry.New[int, *celltrack.Payload](
		tracker.Options(arc.WithObserver[*celltrack.Payload](tracker.Observer()))...,
	)

	const workers = 8

	const iterations = 2000

	const keys = 4

	var ctorCalls atomic.Int64

	var wg sync.WaitGroup

	for worker := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range iterations {
				key := (worker + i) % keys
				handle := reg.GetOrCreate(key, func(key int) *celltrack.Payload {
					ctorCalls.Add(1)
					return tracker.NewPayload(key)
				})

				payload := *handle.Get()
				payload.MustBeAlive()
				assert.Equal(t, key, payload.Value)

				handle.Drop()
			}
		}()
	}

	wg.Wait()

	reg.Close()
	require.Equal(t, ctorCalls.Load(), tracker.Created())
	assert.Equal(t, tracker.Created(), tracker.Destroyed())
	assert.Equal(t, tracker.Created(), tracker.Freed())
}

func TestSharedObserverCountsEachCellOnce(t *testing.T) {
	t.Parallel()

	var created, destroyed, freed atomic.Int64

	//nolint:exhaustruct
	counting := observer.Observer{
		Create:         func(context.Context, observer.Create) { created.Add(1) },
		DestroyPayload: func(context.Context, observer.DestroyPayload) { destroyed.Add(1) },
		FreeAllocation: func(context.Context, observer.FreeAllocation) { freed.Add(1) },
	}
	reg := registry.New[int, int](arc.WithObserver[int](counting))

	const keys = 4

	const rounds = 3

	for round := range rounds {
		for key := range keys {
			before := created.Load()

			handle := reg.GetOrCreate(key, func(key int) int { return key + round })
			assert.Equal(t, int64(1), created.Load()-before, "round %d key %d", round, key)

			reused := reg.GetOrCreate(key, func(int) int { return -1 })
			assert.Equal(t, int64(1), created.Load()-before, "round %d key %d", round, key)
			assert.Equal(t, key+round, *reused.Get())

			reused.Drop()
			handle.Drop()
		}
	}

	reg.Close()
	assert.Equal(t, int64(keys*rounds), created.Load())
	assert.Equal(t, int64(keys*rounds), destroyed.Load())
	assert.Equal(t, int64(keys*rounds), freed.Load())
}
