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

// Package arc implements an atomically reference-counted shared cell.
//
// An *Arc is an owning handle: while any *Arc of a cell is alive, the payload is alive and readable.
// A *Weak is a non-owning handle: it keeps the allocation (but not the payload) alive,
// and can be upgraded into a new *Arc as long as some *Arc still exists.
//
// Every handle must be dropped exactly once by calling Drop.
// When the last *Arc is dropped, the payload is destroyed (see WithDestructor).
// When the last handle of any kind is dropped, the allocation is freed.
// Handles are not safe for concurrent use by themselves; clone a handle for each goroutine instead.
//
// Cycles of owning handles are never collected. Break them with *Weak.
package arc

import (
	"fmt"

	"github.com/kubewharf/sharedcell/arc/syncbarrier"
	"github.com/kubewharf/sharedcell/util/optional"
	"github.com/kubewharf/sharedcell/util/refcount"
	"github.com/kubewharf/sharedcell/util/util"
)

// An owning handle of a shared cell.
type Arc[T any] struct {
	rec *record[T]
}

// Allocates a new cell holding value and returns its only owning handle.
func New[T any](value T, opts ...Option[T]) *Arc[T] {
	return &Arc[T]{rec: newRecord(value, nil, opts)}
}

// Internal: Constructs a new cell with custom synchronization barriers.
func NewTesting[T any](value T, barrier syncbarrier.Interface, opts ...Option[T]) *Arc[T] {
	return &Arc[T]{rec: newRecord(value, barrier, opts)}
}

func (handle *Arc[T]) record() *record[T] {
	if handle == nil || handle.rec == nil {
		panic("use of dropped Arc")
	}

	handle.rec.checkLive()

	return handle.rec
}

// Returns a pointer to the payload for reading.
//
// The pointer stays valid while the handle is alive.
// Other goroutines may read the payload concurrently, so it must not be written through this pointer;
// use GetMut for writes.
func (handle *Arc[T]) Get() *T {
	return &handle.record().payload
}

// Returns a new owning handle to the same cell.
//
// Aborts the process if the number of handles exceeds refcount.MaxRefs.
func (handle *Arc[T]) Clone() *Arc[T] {
	rec := handle.record()

	// The new handle embeds a weak reference too, so total is raised first to keep strong <= total.
	rec.total.Increment()
	rec.strong.Increment()

	return &Arc[T]{rec: rec}
}

// Returns a pointer for writing the payload if this is the only handle of any kind.
//
// Returns None if another *Arc or any *Weak exists.
// The pointer must not be used after the handle is cloned, downgraded or dropped.
func (handle *Arc[T]) GetMut() optional.Optional[*T] {
	rec := handle.record()

	// sync/atomic operations are sequentially consistent, so observing total == 1 happens-after
	// the decrements of every other handle that used to exist, including their payload accesses.
	// No other handle exists to create a new one concurrently.
	if total := rec.total.Load(); total != 1 {
		rec.observeExclusiveMiss(total)
		return optional.None[*T]()
	}

	return optional.Some(&rec.payload)
}

// Returns a weak handle to the same cell. The strong count is not affected.
//
// Aborts the process if the number of handles exceeds refcount.MaxRefs.
func (handle *Arc[T]) Downgrade() *Weak[T] {
	rec := handle.record()
	rec.total.Increment()

	return &Weak[T]{rec: rec}
}

// Releases this handle.
//
// If this was the last owning handle, the payload is destroyed on the calling goroutine.
// If this was also the last handle of any kind, the allocation is freed.
// Panics if the handle was already dropped.
func (handle *Arc[T]) Drop() {
	rec := handle.record()
	handle.rec = nil

	rec.releaseStrong()
	rec.releaseTotal()
}

// Moves the payload out of the cell if this is the only owning handle.
//
// On success the handle is consumed, the destructor is not called,
// and weak handles can no longer be upgraded.
// Returns None and leaves the handle valid otherwise.
func (handle *Arc[T]) TryUnwrap() optional.Optional[T] {
	rec := handle.record()

	// Racing upgrades either lose the swap (strong is 0) or made strong > 1 so that this swap fails.
	if !rec.strong.ReleaseIfUnique() {
		return optional.None[T]()
	}

	handle.rec = nil

	value := rec.takePayload()
	rec.releaseTotal()

	return optional.Some(value)
}

// Number of owning handles of the cell. A snapshot for diagnostics only.
func (handle *Arc[T]) StrongCount() int { return handle.record().strongCount() }

// Number of weak handles of the cell. A snapshot for diagnostics only.
func (handle *Arc[T]) WeakCount() int { return handle.record().weakCount() }

// Whether Drop or a successful TryUnwrap has been called on this handle.
func (handle *Arc[T]) IsDropped() bool { return handle == nil || handle.rec == nil }

func (handle *Arc[T]) GoString() string {
	if handle.IsDropped() {
		return fmt.Sprintf("Arc[%s](dropped)", util.TypeName[T]())
	}

	return fmt.Sprintf(
		"Arc[%s](strong=%d, weak=%d)",
		util.TypeName[T](),
		handle.StrongCount(),
		handle.WeakCount(),
	)
}

// Reports whether two owning handles refer to the same cell.
func PtrEq[T any](left, right *Arc[T]) bool {
	return left.record() == right.record()
}

// Ceiling on the number of live handles of a cell.
const MaxRefs = int(refcount.MaxRefs)
