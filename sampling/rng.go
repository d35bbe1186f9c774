package sampling

import (
	"hash/fnv"
	"math/rand"
)

// === RunKey ===

// RunKey identifies a reproducible generation run (or, derived from an order
// seed, a reproducible episode). Two runs with the same RunKey, instance set and
// configuration dispatch identical orders.
type RunKey int64

// NewRunKey creates a RunKey from a seed value.
func NewRunKey(seed int64) RunKey {
	return RunKey(seed)
}

// === Subsystem Constants ===

const (
	// SubsystemDispatcher drives instance choice and per-episode seeds.
	// Uses the master seed directly.
	SubsystemDispatcher = "dispatcher"

	// SubsystemSelector drives the per-decision expert/fallback coin flip.
	// Keyed by the episode seed, not the run seed.
	SubsystemSelector = "selector"

	// SubsystemPolicy drives the random scoring model used when no checkpoint is loaded.
	SubsystemPolicy = "policy"
)

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemDispatcher: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Each goroutine must own its PartitionedRNG
// (or the *rand.Rand it hands out).
type PartitionedRNG struct {
	key        RunKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a RunKey.
func NewPartitionedRNG(key RunKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemDispatcher {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the RunKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() RunKey {
	return p.key
}

// episodeRNG returns the selector stream for an episode seed.
func episodeRNG(seed uint32) *rand.Rand {
	return NewPartitionedRNG(NewRunKey(int64(seed))).ForSubsystem(SubsystemSelector)
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
