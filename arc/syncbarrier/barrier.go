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

package syncbarrier

// An internal interface to insert synchronization barriers into the lifecycle of a shared cell.
//
// Tests use it to pin down interleavings of the upgrade loop against concurrent drops.
// Should not be used externally.
type Interface interface {
	// Called with the strong count observed by an upgrade, right before its compare-and-swap.
	BeforeUpgradeSwap(observed int32)
	// Called after an upgrade compare-and-swap lost a race.
	AfterUpgradeSwapFailed(observed int32)

	// Called by the goroutine that released the last owning handle, before the payload is destroyed.
	BeforeDestroyPayload()
	// Called by the goroutine that released the last handle of any kind, before the allocation is freed.
	BeforeFreeAllocation()
}

type Empty struct{}

func (Empty) BeforeUpgradeSwap(int32)      {}
func (Empty) AfterUpgradeSwapFailed(int32) {}

func (Empty) BeforeDestroyPayload() {}
func (Empty) BeforeFreeAllocation() {}
