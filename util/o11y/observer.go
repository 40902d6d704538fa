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

// Observability interfaces.
package o11y

import (
	"context"
	"reflect"

	"github.com/kubewharf/sharedcell/util/util"
)

// An observer that can be merged with other implementations.
type Observer[Self any] interface {
	// Name of this observer, used in log and metric names.
	//
	// This method must be invocable on the zero value of the type.
	ComponentName() string

	// Returns a new observer of the same struct that
	// calls the observe functions on both the receiver and `other`.
	Join(other Self) Self
}

// Observes an event.
type ObserveFunc[Arg any] func(ctx context.Context, arg Arg)

func (fn ObserveFunc[Arg]) Join(other ObserveFunc[Arg]) ObserveFunc[Arg] {
	if fn == nil {
		if other == nil {
			return func(context.Context, Arg) {}
		}

		return other
	}

	if other == nil {
		return fn
	}

	return func(ctx context.Context, arg Arg) {
		fn(ctx, arg)
		other(ctx, arg)
	}
}

// Joins two observer structs of the same type.
//
// `ObsT` must be a struct type that only contains exported fields
// of `ObserveFunc` or another `Observer` implementor.
func ReflectJoin[ObsT Observer[ObsT]](left, right ObsT) ObsT {
	ty := util.Type[ObsT]()

	output := reflect.New(ty)

	for fieldIndex := range ty.NumField() {
		leftValue := reflect.ValueOf(left).Field(fieldIndex)
		rightValue := reflect.ValueOf(right).Field(fieldIndex)
		outputValue := leftValue.MethodByName("Join").Call([]reflect.Value{rightValue})[0]
		output.Elem().Field(fieldIndex).Set(outputValue)
	}

	return output.Elem().Interface().(ObsT)
}

// Returns a no-op observer struct.
//
// `ObsT` must follow the same rules as `ReflectJoin`.
func ReflectNoop[ObsT Observer[ObsT]]() ObsT {
	return ReflectJoin(util.Zero[ObsT](), util.Zero[ObsT]())
}

// Ensures all functions in the struct are callable.
func ReflectPopulate[ObsT Observer[ObsT]](obs ObsT) ObsT {
	return ReflectJoin(obs, util.Zero[ObsT]())
}
