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

package util

import "golang.org/x/exp/constraints"

// Implemented by the typed atomics in sync/atomic.
type Atomic[Base any] interface {
	CompareAndSwap(oldValue, newValue Base) (swapped bool)
	Load() Base
}

// Raises the value behind ptr to other unless it already holds a value at least as large.
//
// Returns whether other was stored.
func AtomicMax[Base constraints.Ordered](ptr Atomic[Base], other Base) bool {
	for {
		current := ptr.Load()
		if current >= other {
			return false
		}

		if ptr.CompareAndSwap(current, other) {
			return true
		}
	}
}
