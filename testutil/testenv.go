package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rechain/crdtreplica/internal/storage"
	"github.com/rechain/crdtreplica/pkg/causal"
	"github.com/rechain/crdtreplica/pkg/config"
	"github.com/rechain/crdtreplica/pkg/crdt"
	"github.com/rechain/crdtreplica/pkg/replica"
)

// TestEnvironment manages the test environment for integration tests.
type TestEnvironment struct {
	T       *testing.T
	TempDir string
	Policy  config.ReplicaPolicy
	Store   storage.Store
}

// NewTestEnvironment creates a new test environment backed by a temp-dir
// BadgerStore.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "crdtreplica-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	store, err := storage.NewBadgerStore(filepath.Join(tempDir, "data"), 0, false)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("failed to create BadgerDB store: %v", err)
	}

	return &TestEnvironment{
		T:       t,
		TempDir: tempDir,
		Policy:  config.DefaultPolicy(),
		Store:   store,
	}
}

// Close cleans up the test environment.
func (env *TestEnvironment) Close() {
	env.T.Helper()

	if env.Store != nil {
		if err := env.Store.Close(); err != nil {
			env.T.Logf("error closing store: %v", err)
		}
	}

	if env.TempDir != "" {
		if err := os.RemoveAll(env.TempDir); err != nil {
			env.T.Logf("error removing temp dir: %v", err)
		}
	}
}

// MustSet sets a key-value pair in the store, failing the test on error.
func (env *TestEnvironment) MustSet(ctx context.Context, key, value []byte) {
	env.T.Helper()

	if err := env.Store.Set(ctx, key, value); err != nil {
		env.T.Fatalf("failed to set key %q: %v", key, err)
	}
}

// MustGet gets a value from the store, failing the test on error.
func (env *TestEnvironment) MustGet(ctx context.Context, key []byte) []byte {
	env.T.Helper()

	value, err := env.Store.Get(ctx, key)
	if err != nil {
		env.T.Fatalf("failed to get key %q: %v", key, err)
	}

	return value
}

// MustNotExist verifies that a key does not exist in the store.
func (env *TestEnvironment) MustNotExist(ctx context.Context, key []byte) {
	env.T.Helper()

	has, err := env.Store.Has(ctx, key)
	if err != nil {
		env.T.Fatalf("failed to check key %q: %v", key, err)
	}

	if has {
		env.T.Fatalf("key %q exists but should not", key)
	}
}

// MustNewReplicaID mints a fresh random replica id.
func (env *TestEnvironment) MustNewReplicaID() causal.ReplicaID {
	env.T.Helper()
	return causal.NewReplicaID()
}

// MustNewReplica creates a Replica bound to the environment's policy and
// the default CRDT registry, failing the test on error.
func (env *TestEnvironment) MustNewReplica(id causal.ReplicaID) *replica.Replica {
	env.T.Helper()

	r, err := replica.New(id.Bytes(), crdt.Default(), env.Policy)
	if err != nil {
		env.T.Fatalf("failed to create replica: %v", err)
	}
	return r
}

// MustApplyOp applies op to crdtID on r, failing the test on error.
func (env *TestEnvironment) MustApplyOp(r *replica.Replica, crdtID string, op any) {
	env.T.Helper()

	if err := r.ApplyOp(crdtID, op); err != nil {
		env.T.Fatalf("failed to apply op to %q: %v", crdtID, err)
	}
}

// MustApplyRemote applies a remote (dot, delta) pair to crdtID on r,
// failing the test on error.
func (env *TestEnvironment) MustApplyRemote(r *replica.Replica, crdtID string, dot causal.Dot, delta any) {
	env.T.Helper()

	if err := r.ApplyRemote(crdtID, dot, delta); err != nil {
		env.T.Fatalf("failed to apply remote delta to %q: %v", crdtID, err)
	}
}
