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

	"k8s.io/klog/v2"
)

// Logs lifecycle transitions through the klog logger carried by the cell context.
func NewLogging() Observer {
	return Observer{
		Create: func(ctx context.Context, arg Create) {
			klog.FromContext(ctx).V(5).WithCallDepth(1).Info("shared cell created", "cell", arg.CellName)
		},
		DestroyPayload: func(ctx context.Context, arg DestroyPayload) {
			klog.FromContext(ctx).V(4).WithCallDepth(1).Info(
				"shared cell payload destroyed",
				"cell", arg.CellName,
				"lifetime", arg.Lifetime,
				"unwrapped", arg.Unwrapped,
			)
		},
		FreeAllocation: func(ctx context.Context, arg FreeAllocation) {
			klog.FromContext(ctx).V(4).WithCallDepth(1).Info(
				"shared cell allocation freed",
				"cell", arg.CellName,
				"lifetime", arg.Lifetime,
			)
		},
		UpgradeMiss: func(ctx context.Context, arg UpgradeMiss) {
			klog.FromContext(ctx).V(5).WithCallDepth(1).Info("weak upgrade after payload destruction", "cell", arg.CellName)
		},
		ExclusiveMiss: func(ctx context.Context, arg ExclusiveMiss) {
			klog.FromContext(ctx).V(5).WithCallDepth(1).Info(
				"exclusive access denied",
				"cell", arg.CellName,
				"totalCount", arg.TotalCount,
			)
		},
	}
}
