package ecs

import "log/slog"

// DebugChecks enables the engine's debug-only invariant assertions
// (spec.md §9's "invariant violations are assertion-checked in debug
// builds and undefined in release"; supplemented from Astra's
// ASTRA_BUILD_DEBUG gate per SPEC_FULL.md §6). When true, Storage methods
// re-check the spec.md §8 universal invariants after each structural
// mutation and panic on violation. Default false, matching release-build
// behavior; tests flip it on.
var DebugChecks = false

// Config configures a new Storage.
type Config struct {
	// ChunkPool supplies chunk memory for every archetype. Defaults to
	// NewChunkPool() when nil.
	ChunkPool *ChunkPool
	// Logger receives structured diagnostics (archetype creation, cleanup
	// sweeps). Defaults to slog.Default() when nil.
	Logger *slog.Logger
}

// DefaultConfig returns an empty Config; NewStorage then uses a default
// chunk pool and slog.Default() in place of the nil fields.
func DefaultConfig() Config {
	return Config{}
}

// CleanupOptions parameterizes Storage.CleanupEmptyArchetypes (spec.md
// §4.6's archetype cleanup sweep).
type CleanupOptions struct {
	// EmptyGenerations is the minimum consecutive observed-empty sweep
	// count before an archetype becomes a cleanup candidate. Default 1.
	EmptyGenerations int
	// PeakBound excludes archetypes whose peak entity count exceeded this
	// value from cleanup (a high-water-mark archetype is likely to be
	// refilled soon). Zero means unbounded.
	PeakBound int
	// MaxToRemove caps how many archetypes one call removes. Zero means
	// unbounded.
	MaxToRemove int
	// MinToKeep is a floor on the number of archetypes (including root)
	// left standing after the sweep.
	MinToKeep int
}
