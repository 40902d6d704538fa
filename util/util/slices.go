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

func FindInSlice[T comparable](input []T, needle T) int {
	for i, item := range input {
		if item == needle {
			return i
		}
	}

	return -1
}

func AppendSliceCopy[T any](immutable []T, suffix ...T) []T {
	mutable := make([]T, len(immutable)+len(suffix))

	copy(mutable, immutable)
	copy(mutable[len(immutable):], suffix)

	return mutable
}
