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

// Package registry deduplicates shared cells by key without keeping them alive.
//
// The registry only holds weak handles.
// A cell stays reachable through the registry exactly as long as some caller holds an owning handle to it.
package registry

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/kubewharf/sharedcell/arc"
	"github.com/kubewharf/sharedcell/util/optional"
)

type Registry[K comparable, V any] struct {
	opts  []arc.Option[V]
	cells *xsync.MapOf[K, *arc.Weak[V]]
}

// Constructs an empty registry. opts are applied to every cell it creates.
func New[K comparable, V any](opts ...arc.Option[V]) *Registry[K, V] {
	return &Registry[K, V]{
		opts:  opts,
		cells: xsync.NewMapOf[K, *arc.Weak[V]](),
	}
}

// Returns an owning handle to the live cell for key,
// or creates one with ctor if there is none or the previous cell was destroyed.
//
// ctor runs while the map bucket of key is locked; it must not access the registry.
func (registry *Registry[K, V]) GetOrCreate(key K, ctor func(K) V) *arc.Arc[V] {
	var result *arc.Arc[V]

	var stale *arc.Weak[V]

	registry.cells.Compute(key, func(old *arc.Weak[V], loaded bool) (*arc.Weak[V], bool) {
		if loaded {
			if upgraded, ok := old.Upgrade().Get(); ok {
				result = upgraded
				return old, false
			}

			stale = old
		}

		result = arc.New(ctor(key), registry.opts...)

		return result.Downgrade(), false
	})

	if stale != nil {
		stale.Drop()
	}

	return result
}

// Returns an owning handle to the live cell for key, if any.
//
// An entry whose payload was already destroyed is removed.
func (registry *Registry[K, V]) Get(key K) optional.Optional[*arc.Arc[V]] {
	result := optional.None[*arc.Arc[V]]()

	var stale *arc.Weak[V]

	registry.cells.Compute(key, func(old *arc.Weak[V], loaded bool) (*arc.Weak[V], bool) {
		if !loaded {
			return nil, true
		}

		result = old.Upgrade()
		if result.IsNone() {
			stale = old
			return nil, true
		}

		return old, false
	})

	if stale != nil {
		stale.Drop()
	}

	return result
}

// Removes the entries whose payload has been destroyed.
//
// Returns the number of entries removed.
func (registry *Registry[K, V]) Sweep() int {
	keys := []K{}

	registry.cells.Range(func(key K, _ *arc.Weak[V]) bool {
		keys = append(keys, key)
		return true
	})

	removed := 0

	for _, key := range keys {
		var stale *arc.Weak[V]

		registry.cells.Compute(key, func(old *arc.Weak[V], loaded bool) (*arc.Weak[V], bool) {
			if !loaded {
				return nil, true
			}

			if old.StrongCount() == 0 {
				stale = old
				return nil, true
			}

			return old, false
		})

		if stale != nil {
			stale.Drop()

			removed++
		}
	}

	return removed
}

// Number of entries, including those not swept yet.
func (registry *Registry[K, V]) Len() int {
	return registry.cells.Size()
}

// Removes every entry.
//
// Cells still owned by callers stay alive; they are only forgotten by the registry.
func (registry *Registry[K, V]) Close() {
	keys := []K{}

	registry.cells.Range(func(key K, _ *arc.Weak[V]) bool {
		keys = append(keys, key)
		return true
	})

	for _, key := range keys {
		if weak, loaded := registry.cells.LoadAndDelete(key); loaded {
			weak.Drop()
		}
	}
}
