// Package config loads the typed shape of a replica's free-form "policy"
// options mapping (spec.md §3, §4.8, §9). The core stores these values on
// every Replica but never reads them to alter behavior — retention,
// compaction and digest-cadence decisions are deferred (spec.md §1, §9).
// Grounded on the teacher's pkg/config/config.go viper+mapstructure idiom,
// trimmed to the fields the spec's policy map actually names.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ReplicaPolicy is the typed shape of a replica's policy options mapping.
// Every field here is stored by pkg/replica.Replica and never enforced.
type ReplicaPolicy struct {
	// RetentionHint suggests how long components-log entries should be
	// kept before a future compaction pass may discard them. Unenforced.
	RetentionHint time.Duration `mapstructure:"retention_hint"`

	// DigestCadenceHint suggests how often a host should initiate
	// anti-entropy digest exchange with peers. Unenforced.
	DigestCadenceHint time.Duration `mapstructure:"digest_cadence_hint"`

	// MaxLogEntriesPerOrigin suggests an upper bound on the number of
	// components-log entries retained per (crdt_id, origin) pair before
	// compaction. Zero means unbounded. Unenforced.
	MaxLogEntriesPerOrigin int `mapstructure:"max_log_entries_per_origin"`

	// AllowOverwrite records a host's preferred default for rebinding an
	// already-bound crdt id. Unenforced: Replica.AddCRDT and EnsureCRDT
	// consult only AddCRDTOptions.Overwrite.
	AllowOverwrite bool `mapstructure:"allow_overwrite"`
}

// DefaultPolicy returns the zero-value-safe default policy: no retention
// bound, a conservative digest cadence hint, no log cap, and no implicit
// overwrite.
func DefaultPolicy() ReplicaPolicy {
	return ReplicaPolicy{
		RetentionHint:          0,
		DigestCadenceHint:      30 * time.Second,
		MaxLogEntriesPerOrigin: 0,
		AllowOverwrite:         false,
	}
}

// LoadPolicy reads a ReplicaPolicy from configPath (if non-empty) layered
// over DefaultPolicy, with RECHAIN_REPLICA_-prefixed environment variable
// overrides, matching the teacher's viper wiring in pkg/config/config.go.
func LoadPolicy(configPath string) (ReplicaPolicy, error) {
	policy := DefaultPolicy()

	v := viper.New()
	v.SetDefault("retention_hint", policy.RetentionHint)
	v.SetDefault("digest_cadence_hint", policy.DigestCadenceHint)
	v.SetDefault("max_log_entries_per_origin", policy.MaxLogEntriesPerOrigin)
	v.SetDefault("allow_overwrite", policy.AllowOverwrite)

	v.SetEnvPrefix("RECHAIN_REPLICA")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return ReplicaPolicy{}, fmt.Errorf("failed to read replica policy file: %w", err)
		}
	}

	if err := v.Unmarshal(&policy); err != nil {
		return ReplicaPolicy{}, fmt.Errorf("failed to unmarshal replica policy: %w", err)
	}
	return policy, nil
}

// AsMap renders the policy as the free-form key/value mapping spec.md §3
// describes the "policy" record field as, for hosts that want to inspect
// or log it without depending on this package's struct shape.
func (p ReplicaPolicy) AsMap() map[string]any {
	return map[string]any{
		"retention_hint":             p.RetentionHint,
		"digest_cadence_hint":        p.DigestCadenceHint,
		"max_log_entries_per_origin": p.MaxLogEntriesPerOrigin,
		"allow_overwrite":            p.AllowOverwrite,
	}
}
