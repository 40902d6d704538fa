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

// Package optional provides a value type for results that may be absent.
package optional

import (
	"fmt"

	"github.com/kubewharf/sharedcell/util/util"
)

// A value that may not be present.
//
// Used instead of a nil pointer or a (value, ok) pair when the absence is a normal outcome
// that the caller is expected to branch on, e.g. a failed weak upgrade.
//
// When it is `None`, the internal `value` field is always the zero value.
type Optional[T any] struct {
	value  T
	isSome bool
}

// Returns an `Optional` representing a present value.
func Some[T any](value T) Optional[T] {
	return Optional[T]{value: value, isSome: true}
}

// Returns an `Optional` representing an absent value.
func None[T any]() Optional[T] {
	return Optional[T]{value: util.Zero[T](), isSome: false}
}

func (v Optional[T]) IsSome() bool { return v.isSome }

func (v Optional[T]) IsNone() bool { return !v.isSome }

func (v Optional[T]) GoString() string {
	if v.isSome {
		return fmt.Sprintf("Some(%#v)", v.value)
	}

	return fmt.Sprintf("None[%s]()", util.TypeName[T]())
}

// Converts to the (value, isPresent) form used by map access and type assertions.
func (v Optional[T]) Get() (T, bool) {
	return v.value, v.isSome
}

// Asserts that the receiver is `Some`, panics with the given justification otherwise.
//
// The message should state why the value must exist, e.g. "the only handle was just created".
func (v Optional[T]) MustGet(msg string) T {
	if !v.isSome {
		panic(fmt.Sprintf("value must exist: %s", msg))
	}

	return v.value
}

