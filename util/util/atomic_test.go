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

package util_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kubewharf/sharedcell/util/util"
)

func TestAtomicMax(t *testing.T) {
	t.Parallel()

	value := atomic.Int32{}
	value.Store(5)

	assert.False(t, util.AtomicMax[int32](&value, 3))
	assert.Equal(t, int32(5), value.Load())

	assert.True(t, util.AtomicMax[int32](&value, 7))
	assert.Equal(t, int32(7), value.Load())

	assert.False(t, util.AtomicMax[int32](&value, 7))
}

func TestAtomicMaxConcurrent(t *testing.T) {
	t.Parallel()

	value := atomic.Int32{}

	var wg sync.WaitGroup

	for i := range int32(64) {
		wg.Add(1)

		go func() {
			defer wg.Done()
			util.AtomicMax[int32](&value, i)
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(63), value.Load())
}

func TestTypeName(t *testing.T) {
	t.Parallel()

	type named struct{}

	assert.Equal(t, "named", util.TypeName[named]())
	assert.Equal(t, "*util_test.named", util.TypeName[*named]())
	assert.Equal(t, "int", util.TypeName[int]())
}
