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
	"github.com/kubewharf/sharedcell/util/optional"
)

// A non-owning handle of a shared cell.
//
// A weak handle never gives access to the payload directly.
// It keeps the allocation alive so that Upgrade can safely observe whether the payload still exists.
type Weak[T any] struct {
	rec *record[T]
}

func (handle *Weak[T]) record() *record[T] {
	if handle == nil || handle.rec == nil {
		panic("use of dropped Weak")
	}

	handle.rec.checkLive()

	return handle.rec
}

// Returns a new weak handle to the same cell.
//
// Aborts the process if the number of handles exceeds refcount.MaxRefs.
func (handle *Weak[T]) Clone() *Weak[T] {
	rec := handle.record()
	rec.total.Increment()

	return &Weak[T]{rec: rec}
}

// Attempts to obtain a new owning handle.
//
// Returns None if the payload has been destroyed.
// Once Upgrade returned None for a cell, it returns None for every weak handle of that cell forever.
func (handle *Weak[T]) Upgrade() optional.Optional[*Arc[T]] {
	rec := handle.record()

	if !rec.upgrade() {
		return optional.None[*Arc[T]]()
	}

	return optional.Some(&Arc[T]{rec: rec})
}

// Releases this handle, freeing the allocation if it was the last handle of any kind.
//
// Only the total count is decremented; a weak handle never owned the payload.
// Panics if the handle was already dropped.
func (handle *Weak[T]) Drop() {
	rec := handle.record()
	handle.rec = nil

	rec.releaseTotal()
}

// Number of owning handles of the cell. A snapshot for diagnostics only.
func (handle *Weak[T]) StrongCount() int { return handle.record().strongCount() }

// Number of weak handles of the cell, including this one. A snapshot for diagnostics only.
func (handle *Weak[T]) WeakCount() int { return handle.record().weakCount() }

// Whether Drop has been called on this handle.
func (handle *Weak[T]) IsDropped() bool { return handle == nil || handle.rec == nil }

// Reports whether two weak handles refer to the same cell.
func (handle *Weak[T]) PtrEq(other *Weak[T]) bool {
	return handle.record() == other.record()
}
