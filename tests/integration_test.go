// Package tests exercises the replica, bundle, and protocol layers
// together end to end, pinning spec.md §8's scenarios S1-S6 against the
// full stack rather than any single package in isolation.
package tests

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rechain/crdtreplica/pkg/causal"
	"github.com/rechain/crdtreplica/pkg/config"
	"github.com/rechain/crdtreplica/pkg/crdt"
	"github.com/rechain/crdtreplica/pkg/digest"
	"github.com/rechain/crdtreplica/pkg/protocol"
	"github.com/rechain/crdtreplica/pkg/replica"
)

func replicaIDBytes(b byte) []byte {
	out := make([]byte, 16)
	out[15] = b
	return out
}

func newReplica(t *testing.T, idByte byte) *replica.Replica {
	t.Helper()
	r, err := replica.New(replicaIDBytes(idByte), crdt.Default(), config.DefaultPolicy())
	require.NoError(t, err)
	return r
}

// TestEndToEndConvergenceOverTheWire pins S1 and S3: replica A accrues
// local state, replica B starts empty, and the two converge purely by
// exchanging wire-encoded DigestResponse and SyncResponse envelopes — no
// in-process struct sharing between A and B.
func TestEndToEndConvergenceOverTheWire(t *testing.T) {
	a := newReplica(t, 0x0a)
	require.NoError(t, a.AddCRDT("crdt-1", "gcounter", replica.AddCRDTOptions{}))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.IncOp{N: 3}))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))

	av, err := a.Value("crdt-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), av) // S1

	b := newReplica(t, 0x0b)
	require.NoError(t, b.AddCRDT("crdt-1", "gcounter", replica.AddCRDTOptions{}))

	// B announces its (empty) digest over the wire.
	bDigestEnv, err := protocol.EncodeDigestResponse(b.Digest())
	require.NoError(t, err)
	_, bDigestPayload, err := protocol.DecodeMessage(bDigestEnv)
	require.NoError(t, err)
	bDigest := bDigestPayload.(*digest.Digest)

	// A computes its delta against B's digest and ships it as a wire bundle.
	aBundle := a.Delta(bDigest)
	items := aBundle.Items("crdt-1")
	require.Len(t, items, 3)

	wireItems := make([]protocol.WireItem, 0, len(items))
	impl, err := crdt.Default().Lookup("gcounter")
	require.NoError(t, err)
	for _, it := range items {
		encoded, err := impl.EncodeDelta(it.Delta)
		require.NoError(t, err)
		wireItems = append(wireItems, protocol.WireItem{Origin: it.Dot.Origin, Counter: it.Dot.Counter, Delta: encoded})
	}
	syncResp := protocol.SyncResponse{Bundle: protocol.WireBundle{"crdt-1": wireItems}}
	env, err := protocol.EncodeSyncResponse(syncResp)
	require.NoError(t, err)

	_, payload, err := protocol.DecodeMessage(env)
	require.NoError(t, err)
	decoded := payload.(protocol.SyncResponse)

	for _, wi := range decoded.Bundle["crdt-1"] {
		delta, err := impl.DecodeDelta(wi.Delta)
		require.NoError(t, err)
		require.NoError(t, b.ApplyRemote("crdt-1", causal.Dot{Origin: wi.Origin, Counter: wi.Counter}, delta))
	}

	bv, err := b.Value("crdt-1")
	require.NoError(t, err)
	assert.Equal(t, av, bv) // S3
}

// TestDuplicateApplyRemoteIsIdempotentAfterWireRoundTrip pins S2: a
// SyncResponse item that is decoded and applied twice leaves B's value,
// log and context unchanged on the second application.
func TestDuplicateApplyRemoteIsIdempotentAfterWireRoundTrip(t *testing.T) {
	b := newReplica(t, 0x0b)
	require.NoError(t, b.AddCRDT("crdt-1", "gcounter", replica.AddCRDTOptions{}))

	impl, err := crdt.Default().Lookup("gcounter")
	require.NoError(t, err)
	var oid causal.ReplicaID
	copy(oid[:], replicaIDBytes(0x0a))
	delta := crdt.GCounterState{oid: 1}
	encoded, err := impl.EncodeDelta(delta)
	require.NoError(t, err)

	wireBundle := protocol.WireBundle{"crdt-1": {{Origin: oid, Counter: 1, Delta: encoded}}}
	env, err := protocol.EncodeSyncResponse(protocol.SyncResponse{Bundle: wireBundle})
	require.NoError(t, err)

	apply := func() {
		_, payload, err := protocol.DecodeMessage(env)
		require.NoError(t, err)
		resp := payload.(protocol.SyncResponse)
		for _, wi := range resp.Bundle["crdt-1"] {
			d, err := impl.DecodeDelta(wi.Delta)
			require.NoError(t, err)
			require.NoError(t, b.ApplyRemote("crdt-1", causal.Dot{Origin: wi.Origin, Counter: wi.Counter}, d))
		}
	}

	apply()
	v1, err := b.Value("crdt-1")
	require.NoError(t, err)

	apply()
	v2, err := b.Value("crdt-1")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, b.Components().SinceOrigin("crdt-1", oid, 0), 1)
}

// TestPartialCatchUpOverSyncRequest pins S4 against the wire protocol: B
// requests a delta sync with an explicit digest covering counters 1-2 of
// A's stream, and only the counter-3 item comes back.
func TestPartialCatchUpOverSyncRequest(t *testing.T) {
	a := newReplica(t, 0x0a)
	require.NoError(t, a.AddCRDT("crdt-1", "gcounter", replica.AddCRDTOptions{}))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))

	partial := digest.New()
	partial.Set("crdt-1", a.ID(), 2)

	reqEnv, err := protocol.EncodeSyncRequest(protocol.SyncRequest{Type: protocol.SyncDelta, Digest: partial})
	require.NoError(t, err)
	_, reqPayload, err := protocol.DecodeMessage(reqEnv)
	require.NoError(t, err)
	req := reqPayload.(protocol.SyncRequest)

	bundle := a.Delta(req.Digest)
	items := bundle.Items("crdt-1")
	require.Len(t, items, 1)
	assert.Equal(t, causal.Counter(3), items[0].Dot.Counter)
}

// TestDigestWireRoundTripOverSyncHeader pins S5 against the protocol's
// own DigestResponse envelope rather than pkg/digest in isolation.
func TestDigestWireRoundTripOverSyncHeader(t *testing.T) {
	d := digest.New()
	var origin causal.ReplicaID
	copy(origin[:], replicaIDBytes(0x0a))
	d.Set("crdt-1", origin, 7)

	env, err := protocol.EncodeDigestResponse(d)
	require.NoError(t, err)
	h, payload, err := protocol.DecodeMessage(env)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageDigestResponse, h.Type)

	got := payload.(*digest.Digest)
	assert.True(t, digest.Eq(d, got))
	gotOrigin, gotCounter, ok := got.Entry("crdt-1")
	require.True(t, ok)
	assert.Equal(t, origin, gotOrigin)
	assert.Equal(t, causal.Counter(7), gotCounter)
}

// TestSyncResponseEnvelopeRoundTrip pins S6: a SyncResponse carrying a
// bundle and no digest survives an encode/decode cycle unchanged.
func TestSyncResponseEnvelopeRoundTrip(t *testing.T) {
	var origin causal.ReplicaID
	copy(origin[:], replicaIDBytes(0x0a))

	bundleData := protocol.WireBundle{
		"crdt-1": {{Origin: origin, Counter: 1, Delta: []byte("delta bytes")}},
	}
	env, err := protocol.EncodeSyncResponse(protocol.SyncResponse{Bundle: bundleData})
	require.NoError(t, err)

	h, payload, err := protocol.DecodeMessage(env)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageSyncResponse, h.Type)

	got := payload.(protocol.SyncResponse)
	assert.Nil(t, got.Digest)
	assert.Equal(t, bundleData, got.Bundle)
}

// TestMultiCRDTConvergenceAcrossTypes exercises a replica hosting
// multiple CRDT types (GCounter, PNCounter, ORSet, LWWRegister
// simultaneously) and confirms a single Delta/ApplyRemote pass converges
// all of them together, matching spec.md §7's "multiple CRDT instances
// of differing types coexist on one replica" requirement.
func TestMultiCRDTConvergenceAcrossTypes(t *testing.T) {
	a := newReplica(t, 0x0a)
	b := newReplica(t, 0x0b)

	require.NoError(t, a.AddCRDT("counter", "gcounter", replica.AddCRDTOptions{}))
	require.NoError(t, a.AddCRDT("balance", "pncounter", replica.AddCRDTOptions{}))
	require.NoError(t, a.AddCRDT("tags", "orset", replica.AddCRDTOptions{}))
	require.NoError(t, a.AddCRDT("title", "lwwregister", replica.AddCRDTOptions{}))
	require.NoError(t, b.AddCRDT("counter", "gcounter", replica.AddCRDTOptions{}))
	require.NoError(t, b.AddCRDT("balance", "pncounter", replica.AddCRDTOptions{}))
	require.NoError(t, b.AddCRDT("tags", "orset", replica.AddCRDTOptions{}))
	require.NoError(t, b.AddCRDT("title", "lwwregister", replica.AddCRDTOptions{}))

	require.NoError(t, a.ApplyOp("counter", crdt.Inc()))
	require.NoError(t, a.ApplyOp("balance", crdt.PNOp{Delta: -5}))
	require.NoError(t, a.ApplyOp("tags", crdt.ORAddOp{Element: "urgent"}))
	require.NoError(t, a.ApplyOp("title", crdt.SetOp{Value: "hello"}))

	emptyDigest := digest.New()
	bundle := a.Delta(emptyDigest)
	for _, crdtID := range bundle.CRDTIDs() {
		for _, it := range bundle.Items(crdtID) {
			require.NoError(t, b.ApplyRemote(crdtID, it.Dot, it.Delta))
		}
	}

	for _, crdtID := range []string{"counter", "balance", "tags", "title"} {
		av, err := a.Value(crdtID)
		require.NoError(t, err)
		bv, err := b.Value(crdtID)
		require.NoError(t, err)
		assert.Equal(t, av, bv, "crdt %q diverged", crdtID)
	}
}
