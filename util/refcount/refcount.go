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

// Package refcount provides the atomic counter underlying shared ownership handles.
package refcount

import (
	"fmt"
	"sync/atomic"

	"k8s.io/klog/v2"
)

// Upper bound of a counter.
//
// Any increment that would move a counter above MaxRefs aborts the process instead of risking wraparound.
// At least 2^30 headroom remains between MaxRefs and the int32 limit,
// so concurrent increments racing past the check still cannot overflow.
const MaxRefs int32 = 1 << 30

// Exit code used when the process is aborted due to counter overflow.
const AbortExitCode = 134

// An atomic reference counter.
//
// The zero value is a released counter; call Init before sharing it.
// A counter must never be decremented below zero;
// doing so indicates a double release and panics.
type Counter struct {
	rc atomic.Int32
}

// Sets the initial count. Must happen before the counter is visible to other goroutines.
func (counter *Counter) Init(count int32) {
	counter.rc.Store(count)
}

// Returns a snapshot of the count.
//
// The value may be stale as soon as it is returned unless the caller
// holds enough references to rule out concurrent changes.
func (counter *Counter) Load() int32 {
	return counter.rc.Load()
}

// Adds a reference to a counter the caller already holds a reference on.
//
// This increment does not need to order any other memory access:
// the caller's own reference keeps the counter alive.
//
// Aborts the process if the count exceeds MaxRefs.
// Panics if the counter was already released, which means the caller did not actually hold a reference.
func (counter *Counter) Increment() {
	newValue := counter.rc.Add(1)

	if newValue > MaxRefs {
		Abort("too many references", newValue)
	}

	if newValue <= 1 {
		panic(fmt.Sprintf("increment on released counter (count=%d)", newValue))
	}
}

// Adds a reference only if the count is nonzero.
//
// Returns false without modifying the counter if it has dropped to zero,
// which is a terminal state. `beforeSwap` and `afterSwapFailed` are invoked around each
// compare-and-swap attempt; both may be nil.
func (counter *Counter) IncrementIfNonZero(beforeSwap func(observed int32), afterSwapFailed func(observed int32)) bool {
	observed := counter.rc.Load()

	for {
		if observed == 0 {
			return false
		}

		if observed < 0 {
			panic(fmt.Sprintf("negative reference count %d", observed))
		}

		if observed >= MaxRefs {
			Abort("too many references", observed)
		}

		if beforeSwap != nil {
			beforeSwap(observed)
		}

		if counter.rc.CompareAndSwap(observed, observed+1) {
			return true
		}

		if afterSwapFailed != nil {
			afterSwapFailed(observed)
		}

		observed = counter.rc.Load()
	}
}

// Removes a reference from the counter.
//
// Returns true if this call released the last reference.
// Every release is a full barrier (sync/atomic is sequentially consistent),
// so the caller observing `true` happens-after every access made by the other holders before their release.
//
// Panics if the counter was already zero.
func (counter *Counter) Release() (last bool) {
	newValue := counter.rc.Add(-1)

	if newValue < 0 {
		panic("double release detected")
	}

	return newValue == 0
}

// Releases the only reference.
//
// Returns true if the count was exactly 1 and is now 0.
// Returns false without modifying the counter otherwise.
func (counter *Counter) ReleaseIfUnique() bool {
	return counter.rc.CompareAndSwap(1, 0)
}

// Handles a counter overflow. Must not return.
type AbortHandler func(reason string, count int32)

var abortHandler atomic.Pointer[AbortHandler]

func init() {
	handler := AbortHandler(logAndExit)
	abortHandler.Store(&handler)
}

func logAndExit(reason string, count int32) {
	klog.ErrorS(nil, "reference count overflow, aborting", "reason", reason, "count", count, "limit", MaxRefs)
	klog.FlushAndExit(klog.ExitFlushTimeout, AbortExitCode)
}

// Replaces the overflow handler and returns a function restoring the previous one.
//
// Intended for tests that need to observe an abort instead of terminating the process.
// A handler that returns normally is followed by a panic with the reason.
func SetAbortHandler(handler AbortHandler) (restore func()) {
	prev := abortHandler.Swap(&handler)

	return func() { abortHandler.Store(prev) }
}

// Terminates the process through the current AbortHandler.
func Abort(reason string, count int32) {
	(*abortHandler.Load())(reason, count)

	panic(fmt.Sprintf("abort: %s (count=%d)", reason, count))
}
