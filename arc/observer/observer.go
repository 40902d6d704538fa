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

package observer

import (
	"time"

	"github.com/kubewharf/sharedcell/util/o11y"
)

type Observer struct {
	Create         o11y.ObserveFunc[Create]
	DestroyPayload o11y.ObserveFunc[DestroyPayload]
	FreeAllocation o11y.ObserveFunc[FreeAllocation]

	UpgradeMiss   o11y.ObserveFunc[UpgradeMiss]
	ExclusiveMiss o11y.ObserveFunc[ExclusiveMiss]
}

func (Observer) ComponentName() string { return "sharedcell" }

func (observer Observer) Join(other Observer) Observer { return o11y.ReflectJoin(observer, other) }

type Create struct {
	CellName string
}

type DestroyPayload struct {
	CellName string
	Lifetime time.Duration
	// The payload was moved out through TryUnwrap instead of being passed to the destructor.
	Unwrapped bool
}

type FreeAllocation struct {
	CellName string
	Lifetime time.Duration
}

type UpgradeMiss struct {
	CellName string
}

type ExclusiveMiss struct {
	CellName   string
	TotalCount int32
}
