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

package arc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kubewharf/sharedcell/arc/observer"
	"github.com/kubewharf/sharedcell/arc/syncbarrier"
	"github.com/kubewharf/sharedcell/util/refcount"
	"github.com/kubewharf/sharedcell/util/util"
)

// The allocation shared by all handles of one cell.
//
// Lifecycle:
//
//	born (strong=total=1) -> strong-live (strong>0) -> weak-only (strong=0, total>0) -> freed (total=0)
//
// strong never increases again once it reaches zero, so weak-only never returns to strong-live.
type record[T any] struct {
	// Number of live *Arc handles.
	strong refcount.Counter
	// Number of live *Arc and *Weak handles. strong <= total at all times.
	total refcount.Counter

	// Set once the last handle of any kind is gone. Any later access is a use after free.
	freed atomic.Bool

	// Present iff strong > 0.
	// Read by any goroutine holding an *Arc; written only by the holder of the sole handle
	// (total == 1) or by the goroutine that brought strong to zero.
	payload T

	config[T]
	barrier   syncbarrier.Interface
	createdAt time.Time
}

func newRecord[T any](value T, barrier syncbarrier.Interface, opts []Option[T]) *record[T] {
	rec := &record[T]{
		payload: value,
		config: config[T]{
			ctx:        context.Background(),
			name:       "",
			destructor: nil,
			observer:   nil,
		},
		barrier: barrier,
	}

	for _, opt := range opts {
		opt(&rec.config)
	}

	if rec.name == "" {
		rec.name = util.TypeName[T]()
	}

	rec.strong.Init(1)
	rec.total.Init(1)

	if rec.observer != nil {
		rec.createdAt = time.Now()
		rec.observer.Create(rec.ctx, observer.Create{CellName: rec.name})
	}

	return rec
}

// Panics if the allocation has already been freed.
func (rec *record[T]) checkLive() {
	if rec.freed.Load() {
		panic("shared cell used after its allocation was freed")
	}
}

// Releases one owning reference, destroying the payload if it was the last one.
//
// Must be followed by releaseTotal for the weak reference embedded in the owning handle.
func (rec *record[T]) releaseStrong() {
	// The decrement publishes this goroutine's payload accesses.
	// The goroutine that observes the transition to zero synchronizes with every earlier decrement,
	// so no other goroutine can still be reading the payload while it is destroyed.
	if !rec.strong.Release() {
		return
	}

	if rec.barrier != nil {
		rec.barrier.BeforeDestroyPayload()
	}

	value := rec.payload
	rec.payload = util.Zero[T]()

	if rec.destructor != nil {
		rec.destructor(value)
	}

	if rec.observer != nil {
		rec.observer.DestroyPayload(rec.ctx, observer.DestroyPayload{
			CellName:  rec.name,
			Lifetime:  time.Since(rec.createdAt),
			Unwrapped: false,
		})
	}
}

// Releases one reference of any kind, freeing the allocation if it was the last one.
func (rec *record[T]) releaseTotal() {
	// Same pairing as releaseStrong: after the last decrement no other goroutine holds the record.
	if !rec.total.Release() {
		return
	}

	if rec.barrier != nil {
		rec.barrier.BeforeFreeAllocation()
	}

	if !rec.freed.CompareAndSwap(false, true) {
		panic("shared cell allocation freed twice")
	}

	if rec.observer != nil {
		rec.observer.FreeAllocation(rec.ctx, observer.FreeAllocation{
			CellName: rec.name,
			Lifetime: time.Since(rec.createdAt),
		})
	}

	rec.config = config[T]{ctx: nil, name: rec.name, destructor: nil, observer: nil}
}

// Moves the payload out after strong was swapped from 1 to 0 by TryUnwrap.
func (rec *record[T]) takePayload() T {
	value := rec.payload
	rec.payload = util.Zero[T]()

	if rec.observer != nil {
		rec.observer.DestroyPayload(rec.ctx, observer.DestroyPayload{
			CellName:  rec.name,
			Lifetime:  time.Since(rec.createdAt),
			Unwrapped: true,
		})
	}

	return value
}

func (rec *record[T]) observeExclusiveMiss(total int32) {
	if rec.observer != nil {
		rec.observer.ExclusiveMiss(rec.ctx, observer.ExclusiveMiss{CellName: rec.name, TotalCount: total})
	}
}

func (rec *record[T]) upgrade() bool {
	var ok bool
	if rec.barrier != nil {
		ok = rec.strong.IncrementIfNonZero(rec.barrier.BeforeUpgradeSwap, rec.barrier.AfterUpgradeSwapFailed)
	} else {
		ok = rec.strong.IncrementIfNonZero(nil, nil)
	}

	if !ok {
		if rec.observer != nil {
			rec.observer.UpgradeMiss(rec.ctx, observer.UpgradeMiss{CellName: rec.name})
		}

		return false
	}

	// The weak handle being upgraded keeps total above zero, so this cannot race with the free.
	rec.total.Increment()

	return true
}

func (rec *record[T]) strongCount() int {
	return int(rec.strong.Load())
}

func (rec *record[T]) weakCount() int {
	strong := rec.strong.Load()
	total := rec.total.Load()

	// The two loads are not atomic together; an owning handle may be counted in total only.
	return max(int(total-strong), 0)
}
