package causal_test

import (
	"testing"

	"github.com/rechain/crdtreplica/pkg/causal"
	"github.com/stretchr/testify/assert"
)

func mustReplica(t *testing.T, b byte) causal.ReplicaID {
	t.Helper()
	var raw [16]byte
	raw[0] = b
	id, err := causal.ReplicaIDFromBytes(raw[:])
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestContext_AddIdempotent(t *testing.T) {
	r := mustReplica(t, 0x0a)
	ctx := causal.New().Add(causal.Dot{Origin: r, Counter: 1})
	ctx2 := ctx.Add(causal.Dot{Origin: r, Counter: 1})
	assert.True(t, causal.Equal(ctx, ctx2))
}

func TestContext_ContainsAndMaxFor(t *testing.T) {
	r := mustReplica(t, 0x0a)
	ctx := causal.New().
		Add(causal.Dot{Origin: r, Counter: 1}).
		Add(causal.Dot{Origin: r, Counter: 3})

	assert.True(t, ctx.Contains(causal.Dot{Origin: r, Counter: 1}))
	assert.False(t, ctx.Contains(causal.Dot{Origin: r, Counter: 2}))
	assert.Equal(t, causal.Counter(3), ctx.MaxFor(r))

	other := mustReplica(t, 0x0b)
	assert.Equal(t, causal.Counter(0), ctx.MaxFor(other))
}

func TestContext_JoinCommutativeAssociativeIdempotent(t *testing.T) {
	a := mustReplica(t, 1)
	b := mustReplica(t, 2)

	x := causal.New().Add(causal.Dot{Origin: a, Counter: 1}).Add(causal.Dot{Origin: a, Counter: 2})
	y := causal.New().Add(causal.Dot{Origin: b, Counter: 1})

	xy := causal.Join(x, y)
	yx := causal.Join(y, x)
	assert.True(t, causal.Equal(xy, yx))

	assert.True(t, causal.Equal(causal.Join(x, causal.New()), x))

	assert.True(t, causal.Equal(causal.Join(xy, xy), xy))
}

func TestContext_SinceSymmetry(t *testing.T) {
	a := mustReplica(t, 1)

	base := causal.New().Add(causal.Dot{Origin: a, Counter: 1})
	extra := causal.New().Add(causal.Dot{Origin: a, Counter: 2}).Add(causal.Dot{Origin: a, Counter: 3})

	joined := causal.Join(base, extra)
	since := causal.Since(joined, base)
	assert.True(t, causal.Equal(since, causal.Since(extra, base)))
}

func TestContext_SinceMissingReplicas(t *testing.T) {
	a := mustReplica(t, 1)
	b := mustReplica(t, 2)

	ctx := causal.New().Add(causal.Dot{Origin: a, Counter: 1})
	earlier := causal.New().Add(causal.Dot{Origin: b, Counter: 5})

	// earlier has a replica (b) the ctx doesn't: contributes nothing.
	since := causal.Since(ctx, earlier)
	assert.True(t, since.Contains(causal.Dot{Origin: a, Counter: 1}))
	assert.False(t, since.Contains(causal.Dot{Origin: b, Counter: 5}))
}

func TestContext_Lt(t *testing.T) {
	a := mustReplica(t, 1)

	small := causal.New().Add(causal.Dot{Origin: a, Counter: 1})
	big := small.Add(causal.Dot{Origin: a, Counter: 2})

	assert.True(t, causal.Lt(small, big))
	assert.False(t, causal.Lt(big, small))
	assert.False(t, causal.Lt(small, small))
}

func TestContext_IsEmpty(t *testing.T) {
	a := mustReplica(t, 1)
	assert.True(t, causal.New().IsEmpty())

	ctx := causal.New().Add(causal.Dot{Origin: a, Counter: 1})
	assert.False(t, ctx.IsEmpty())
}

func TestContext_FromDotsCollapsesDuplicates(t *testing.T) {
	a := mustReplica(t, 1)
	ctx := causal.FromDots([]causal.Dot{
		{Origin: a, Counter: 1},
		{Origin: a, Counter: 1},
		{Origin: a, Counter: 2},
	})
	assert.Equal(t, causal.Counter(2), ctx.MaxFor(a))
}
