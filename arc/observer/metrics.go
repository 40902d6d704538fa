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
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kubewharf/sharedcell/util/o11y/metrics"
)

func NewMetrics(registry *prometheus.Registry) Observer {
	type cellTags struct {
		Cell string
	}

	type destroyTags struct {
		Cell      string
		Unwrapped bool
	}

	createHandle := metrics.Register(
		registry,
		"sharedcell_created_total",
		"Number of shared cells created.",
		metrics.IntCounter(),
		metrics.NewReflectTags[cellTags](),
	)

	destroyHandle := metrics.Register(
		registry,
		"sharedcell_payload_destroyed_total",
		"Number of shared cell payloads destroyed after the last owning handle was dropped.",
		metrics.IntCounter(),
		metrics.NewReflectTags[destroyTags](),
	)

	payloadLifetimeHandle := metrics.Register(
		registry,
		"sharedcell_payload_lifetime",
		"Time between creation of a shared cell and destruction of its payload.",
		metrics.LifetimeHistogram(),
		metrics.NewReflectTags[cellTags](),
	)

	freeHandle := metrics.Register(
		registry,
		"sharedcell_allocation_freed_total",
		"Number of shared cell allocations freed after the last handle of any kind was dropped.",
		metrics.IntCounter(),
		metrics.NewReflectTags[cellTags](),
	)

	liveHandle := metrics.Register(
		registry,
		"sharedcell_live_allocations",
		"Number of shared cell allocations not yet freed.",
		metrics.IntDeltaGauge(),
		metrics.NewReflectTags[cellTags](),
	)

	upgradeMissHandle := metrics.Register(
		registry,
		"sharedcell_upgrade_miss_total",
		"Number of weak upgrades attempted after the payload was destroyed.",
		metrics.IntCounter(),
		metrics.NewReflectTags[cellTags](),
	)

	exclusiveMissHandle := metrics.Register(
		registry,
		"sharedcell_exclusive_miss_total",
		"Number of exclusive access requests denied because other handles exist.",
		metrics.IntCounter(),
		metrics.NewReflectTags[cellTags](),
	)

	return Observer{
		Create: func(_ context.Context, arg Create) {
			tags := cellTags{Cell: arg.CellName}

			createHandle.Emit(1, tags)
			liveHandle.Emit(1, tags)
		},
		DestroyPayload: func(_ context.Context, arg DestroyPayload) {
			destroyHandle.Emit(1, destroyTags{Cell: arg.CellName, Unwrapped: arg.Unwrapped})
			payloadLifetimeHandle.Emit(arg.Lifetime, cellTags{Cell: arg.CellName})
		},
		FreeAllocation: func(_ context.Context, arg FreeAllocation) {
			tags := cellTags{Cell: arg.CellName}

			freeHandle.Emit(1, tags)
			liveHandle.Emit(-1, tags)
		},
		UpgradeMiss: func(_ context.Context, arg UpgradeMiss) {
			upgradeMissHandle.Emit(1, cellTags{Cell: arg.CellName})
		},
		ExclusiveMiss: func(_ context.Context, arg ExclusiveMiss) {
			exclusiveMissHandle.Emit(1, cellTags{Cell: arg.CellName})
		},
	}
}
