package replica_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rechain/crdtreplica/pkg/causal"
	"github.com/rechain/crdtreplica/pkg/config"
	"github.com/rechain/crdtreplica/pkg/crdt"
	"github.com/rechain/crdtreplica/pkg/digest"
	"github.com/rechain/crdtreplica/pkg/replica"
)

func id(b byte) []byte {
	out := make([]byte, 16)
	out[15] = b
	return out
}

func newTestReplica(t *testing.T, idByte byte) *replica.Replica {
	t.Helper()
	r, err := replica.New(id(idByte), crdt.Default(), config.DefaultPolicy())
	require.NoError(t, err)
	return r
}

func TestNewRejectsInvalidID(t *testing.T) {
	_, err := replica.New([]byte{1, 2, 3}, crdt.Default(), config.DefaultPolicy())
	assert.ErrorIs(t, err, causal.ErrInvalidID)
}

func TestAddCRDTAlreadyExists(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	require.NoError(t, r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{}))
	err := r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{})
	var already *replica.AlreadyExistsError
	assert.ErrorAs(t, err, &already)
}

func TestAddCRDTOverwrite(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	require.NoError(t, r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{}))
	require.NoError(t, r.ApplyOp("c1", crdt.Inc()))
	require.NoError(t, r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{Overwrite: true}))
	v, err := r.Value("c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}

func TestAddCRDTUnknownType(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	err := r.AddCRDT("c1", "nope", replica.AddCRDTOptions{})
	assert.ErrorIs(t, err, crdt.ErrUnknownType)
}

func TestEnsureCRDTIdempotent(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	require.NoError(t, r.EnsureCRDT("c1", "gcounter", replica.AddCRDTOptions{}))
	require.NoError(t, r.ApplyOp("c1", crdt.Inc()))
	require.NoError(t, r.EnsureCRDT("c1", "gcounter", replica.AddCRDTOptions{}))
	v, err := r.Value("c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v) // not reset
}

func TestFetchCRDTNotFound(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	_, err := r.FetchCRDT("missing")
	var nf *replica.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestUpdateCRDTMetaDirectMap(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	require.NoError(t, r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{}))
	require.NoError(t, r.UpdateCRDTMeta("c1", map[string]any{"label": "x"}))
	b, err := r.FetchCRDT("c1")
	require.NoError(t, err)
	assert.Equal(t, "x", b.Meta["label"])
}

func TestUpdateCRDTMetaCallback(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	require.NoError(t, r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{Meta: map[string]any{"n": 1}}))
	err := r.UpdateCRDTMeta("c1", func(cur map[string]any) any {
		return map[string]any{"n": cur["n"].(int) + 1}
	})
	require.NoError(t, err)
	b, err := r.FetchCRDT("c1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Meta["n"])
}

func TestUpdateCRDTMetaRejectsNonMap(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	require.NoError(t, r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{}))
	err := r.UpdateCRDTMeta("c1", "not a map")
	assert.ErrorIs(t, err, replica.ErrInvalidMeta)
}

// TestS1LocalIncrementsAndDigest pins spec.md scenario S1.
func TestS1LocalIncrementsAndDigest(t *testing.T) {
	a := newTestReplica(t, 0x0a)
	require.NoError(t, a.AddCRDT("crdt-1", "gcounter", replica.AddCRDTOptions{}))

	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.IncOp{N: 3}))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))

	v, err := a.Value("crdt-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), v)

	d := a.Digest()
	origin, counter, ok := d.Entry("crdt-1")
	require.True(t, ok)
	assert.Equal(t, a.ID(), origin)
	assert.Equal(t, causal.Counter(3), counter)

	entries := a.Components().SinceOrigin("crdt-1", a.ID(), 0)
	require.Len(t, entries, 3)
	assert.Equal(t, causal.Counter(1), entries[0].Counter)
	assert.Equal(t, causal.Counter(2), entries[1].Counter)
	assert.Equal(t, causal.Counter(3), entries[2].Counter)
}

// TestS2DuplicateApplyRemote pins spec.md scenario S2.
func TestS2DuplicateApplyRemote(t *testing.T) {
	b := newTestReplica(t, 0x0b)
	require.NoError(t, b.AddCRDT("crdt-1", "gcounter", replica.AddCRDTOptions{}))

	var originID causal.ReplicaID
	copy(originID[:], id(0x0a))
	dot := causal.Dot{Origin: originID, Counter: 1}
	delta := crdt.GCounterState{originID: 1}

	require.NoError(t, b.ApplyRemote("crdt-1", dot, delta))
	v1, err := b.Value("crdt-1")
	require.NoError(t, err)

	require.NoError(t, b.ApplyRemote("crdt-1", dot, delta))
	v2, err := b.Value("crdt-1")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	entries := b.Components().SinceOrigin("crdt-1", originID, 0)
	assert.Len(t, entries, 1)
}

// TestS3ConvergenceByBundle pins spec.md scenario S3.
func TestS3ConvergenceByBundle(t *testing.T) {
	a := newTestReplica(t, 0x0a)
	require.NoError(t, a.AddCRDT("crdt-1", "gcounter", replica.AddCRDTOptions{}))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.IncOp{N: 3}))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))

	b := newTestReplica(t, 0x0b)
	require.NoError(t, b.AddCRDT("crdt-1", "gcounter", replica.AddCRDTOptions{}))

	bd := b.Digest()
	bundle := a.Delta(bd)
	items := bundle.Items("crdt-1")
	require.Len(t, items, 3)

	for _, it := range items {
		require.NoError(t, b.ApplyRemote("crdt-1", it.Dot, it.Delta))
	}

	av, err := a.Value("crdt-1")
	require.NoError(t, err)
	bv, err := b.Value("crdt-1")
	require.NoError(t, err)
	assert.Equal(t, av, bv)
	assert.Equal(t, uint64(5), bv)
}

// TestS4PartialCatchUp pins spec.md scenario S4.
func TestS4PartialCatchUp(t *testing.T) {
	a := newTestReplica(t, 0x0a)
	require.NoError(t, a.AddCRDT("crdt-1", "gcounter", replica.AddCRDTOptions{}))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))
	require.NoError(t, a.ApplyOp("crdt-1", crdt.Inc()))

	b := newTestReplica(t, 0x0b)
	require.NoError(t, b.AddCRDT("crdt-1", "gcounter", replica.AddCRDTOptions{}))

	emptyDigest := digest.New()
	fullBundle := a.Delta(emptyDigest)
	items := fullBundle.Items("crdt-1")
	require.Len(t, items, 3)
	for _, it := range items {
		if it.Dot.Counter <= 2 {
			require.NoError(t, b.ApplyRemote("crdt-1", it.Dot, it.Delta))
		}
	}

	// Replica.Digest() deliberately reports only local authorship
	// (spec.md §9's Open Question), so the digest B sends back to
	// request more of A's stream must instead be built from what B's own
	// context has observed of A: (a.ID(), b.Context().MaxFor(a.ID())).
	bd := digest.New()
	bd.Set("crdt-1", a.ID(), b.Context().MaxFor(a.ID()))
	require.Equal(t, causal.Counter(2), func() causal.Counter { _, c, _ := bd.Entry("crdt-1"); return c }())

	partialBundle := a.Delta(bd)
	partialItems := partialBundle.Items("crdt-1")
	require.Len(t, partialItems, 1)
	assert.Equal(t, causal.Counter(3), partialItems[0].Dot.Counter)
}

func TestApplyOpLocalAtomicityOnInvalidOp(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	require.NoError(t, r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{}))
	before := r.Context()

	err := r.ApplyOp("c1", crdt.IncOp{N: 0})
	assert.Error(t, err)

	after := r.Context()
	assert.True(t, causal.Equal(before, after))
	entries := r.Components().SinceOrigin("c1", r.ID(), 0)
	assert.Empty(t, entries)
}

func TestApplyOpNotFound(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	err := r.ApplyOp("missing", crdt.Inc())
	var nf *replica.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestApplyRemoteInvalidDot(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	require.NoError(t, r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{}))
	badDot := causal.Dot{Origin: r.ID(), Counter: 0}
	err := r.ApplyRemote("c1", badDot, crdt.GCounterState{})
	assert.ErrorIs(t, err, causal.ErrInvalidDot)
}

func TestDotMintingMonotonicity(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	require.NoError(t, r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{}))
	for n := causal.Counter(1); n <= 5; n++ {
		require.NoError(t, r.ApplyOp("c1", crdt.Inc()))
		assert.Equal(t, n, r.Context().MaxFor(r.ID()))
	}
}

func TestListCRDTsOmitsState(t *testing.T) {
	r := newTestReplica(t, 0x0a)
	require.NoError(t, r.AddCRDT("c1", "gcounter", replica.AddCRDTOptions{Meta: map[string]any{"k": "v"}}))
	listing := r.ListCRDTs()
	b, ok := listing["c1"]
	require.True(t, ok)
	assert.Equal(t, "gcounter", b.Type)
	assert.Nil(t, b.State)
	assert.Equal(t, "v", b.Meta["k"])
}
