package crdt_test

import (
	"testing"

	"github.com/rechain/crdtreplica/pkg/causal"
	"github.com/rechain/crdtreplica/pkg/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLWWRegister_ZeroIsUnset(t *testing.T) {
	var r crdt.LWWRegister
	assert.Nil(t, r.Value(r.Zero()))
}

func TestLWWRegister_SetAndGet(t *testing.T) {
	var r crdt.LWWRegister
	id := causal.NewReplicaID()

	state, _, err := r.Mutate(r.Zero(), crdt.SetOp{Value: "test value"}, causal.Dot{Origin: id, Counter: 1})
	require.NoError(t, err)
	assert.Equal(t, "test value", r.Value(state))
}

func TestLWWRegister_HigherCounterWins(t *testing.T) {
	var r crdt.LWWRegister
	id := causal.NewReplicaID()

	older, _, err := r.Mutate(r.Zero(), crdt.SetOp{Value: "old value"}, causal.Dot{Origin: id, Counter: 1})
	require.NoError(t, err)
	newer, _, err := r.Mutate(r.Zero(), crdt.SetOp{Value: "new value"}, causal.Dot{Origin: id, Counter: 2})
	require.NoError(t, err)

	merged, err := r.Join(older, newer)
	require.NoError(t, err)
	assert.Equal(t, "new value", r.Value(merged))

	mergedReverse, err := r.Join(newer, older)
	require.NoError(t, err)
	assert.Equal(t, "new value", r.Value(mergedReverse))
}

func TestLWWRegister_SameCounterTiesBrokenByOrigin(t *testing.T) {
	var r crdt.LWWRegister
	a := causal.NewReplicaID()
	b := causal.NewReplicaID()

	s1, _, err := r.Mutate(r.Zero(), crdt.SetOp{Value: "from a"}, causal.Dot{Origin: a, Counter: 1})
	require.NoError(t, err)
	s2, _, err := r.Mutate(r.Zero(), crdt.SetOp{Value: "from b"}, causal.Dot{Origin: b, Counter: 1})
	require.NoError(t, err)

	m1, err := r.Join(s1, s2)
	require.NoError(t, err)
	m2, err := r.Join(s2, s1)
	require.NoError(t, err)
	assert.Equal(t, r.Value(m1), r.Value(m2))
}

func TestLWWRegister_DeltaEncodeDecodeRoundTrip(t *testing.T) {
	var r crdt.LWWRegister
	id := causal.NewReplicaID()

	state, delta, err := r.Mutate(r.Zero(), crdt.SetOp{Value: "test value"}, causal.Dot{Origin: id, Counter: 1})
	require.NoError(t, err)

	data, err := r.EncodeDelta(delta)
	require.NoError(t, err)

	decoded, err := r.DecodeDelta(data)
	require.NoError(t, err)
	assert.Equal(t, r.Value(state), r.Value(decoded))
}

func TestLWWRegister_UnsetDeltaRoundTrip(t *testing.T) {
	var r crdt.LWWRegister
	data, err := r.EncodeDelta(r.Zero())
	require.NoError(t, err)
	decoded, err := r.DecodeDelta(data)
	require.NoError(t, err)
	assert.Nil(t, r.Value(decoded))
}
