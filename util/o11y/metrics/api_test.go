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

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubewharf/sharedcell/util/o11y/metrics"
)

type CellTags struct {
	CellName string
}

type testTags struct {
	CellTags
	Result string
	hidden string
}

func TestReflectTagKeys(t *testing.T) {
	t.Parallel()

	desc := metrics.NewReflectTags[testTags]()
	assert.Equal(t, []string{"cell_name", "result"}, desc.TagKeys())
	assert.Equal(
		t,
		[]string{"a", "ok"},
		desc.TagValues(testTags{CellTags: CellTags{CellName: "a"}, Result: "ok", hidden: "x"}),
	)
}

func TestCounterEmit(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	handle := metrics.Register(registry, "test_total", "test counter", metrics.IntCounter(), metrics.NewReflectTags[testTags]())

	handle.Emit(2, testTags{CellTags: CellTags{CellName: "a"}, Result: "ok", hidden: ""})
	handle.With(testTags{CellTags: CellTags{CellName: "a"}, Result: "ok", hidden: ""}).Emit(3)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.InDelta(t, 5.0, families[0].GetMetric()[0].GetCounter().GetValue(), 1e-9)
}

func TestDeltaGauge(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	handle := metrics.Register(registry, "test_live", "test gauge", metrics.IntDeltaGauge(), metrics.NewReflectTags[CellTags]())

	tagged := handle.With(CellTags{CellName: "b"})
	tagged.Emit(1)
	tagged.Emit(1)
	tagged.Emit(-1)

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.InDelta(t, 1.0, families[0].GetMetric()[0].GetGauge().GetValue(), 1e-9)
}
