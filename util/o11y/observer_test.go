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

package o11y_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kubewharf/sharedcell/util/o11y"
)

type testObserver struct {
	Hit  o11y.ObserveFunc[int]
	Miss o11y.ObserveFunc[string]
}

func (testObserver) ComponentName() string { return "test" }

func (obs testObserver) Join(other testObserver) testObserver { return o11y.ReflectJoin(obs, other) }

func TestReflectJoinCallsBoth(t *testing.T) {
	t.Parallel()

	hits := []int{}

	left := testObserver{Hit: func(_ context.Context, arg int) { hits = append(hits, arg) }}
	right := testObserver{Hit: func(_ context.Context, arg int) { hits = append(hits, arg*10) }}

	joined := left.Join(right)
	joined.Hit(context.Background(), 2)
	joined.Miss(context.Background(), "never nil after join")

	assert.Equal(t, []int{2, 20}, hits)
}

func TestReflectNoop(t *testing.T) {
	t.Parallel()

	obs := o11y.ReflectNoop[testObserver]()
	assert.NotPanics(t, func() {
		obs.Hit(context.Background(), 1)
		obs.Miss(context.Background(), "")
	})
}

func TestReflectPopulateKeepsSetFields(t *testing.T) {
	t.Parallel()

	called := false
	obs := o11y.ReflectPopulate(testObserver{Miss: func(context.Context, string) { called = true }})

	obs.Hit(context.Background(), 1)
	obs.Miss(context.Background(), "x")
	assert.True(t, called)
}
