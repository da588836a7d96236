package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/batchpipe/engine/internal/pipeline/cache"
	"github.com/batchpipe/engine/internal/pipeline/plan"
)

func TestShouldCache_FanOutRequiresCaching(t *testing.T) {
	dag := &plan.DAG{
		Downstream: map[string][]string{"read": {"transformA", "transformB"}},
		Upstream:   map[string][]string{"transformA": {"read"}, "transformB": {"read"}},
	}
	assert.True(t, cache.ShouldCache("read", dag))
}

func TestShouldCache_DownstreamUnionRequiresCaching(t *testing.T) {
	dag := &plan.DAG{
		Downstream: map[string][]string{"read": {"join"}},
		Upstream:   map[string][]string{"join": {"read", "other"}},
	}
	assert.True(t, cache.ShouldCache("read", dag))
}

func TestShouldCache_LinearChainDoesNotCache(t *testing.T) {
	dag := &plan.DAG{
		Downstream: map[string][]string{"read": {"transform"}},
		Upstream:   map[string][]string{"transform": {"read"}},
	}
	assert.False(t, cache.ShouldCache("read", dag))
}

func TestShouldCache_TerminalStageDoesNotCache(t *testing.T) {
	dag := &plan.DAG{
		Downstream: map[string][]string{},
		Upstream:   map[string][]string{},
	}
	assert.False(t, cache.ShouldCache("sink", dag))
}
