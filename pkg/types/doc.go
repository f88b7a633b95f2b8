// Package types defines the core data structures shared across the
// orchestrator: Asset and AssetVersion (the dependency graph), Task and
// TaskRequirements (a dispatchable unit of work and its resolved resource
// needs), Volume and VolumeRuntime (disk accounting), and the provider
// wire payloads (ProviderConnect, JobProgress, StartJob, ...). See spec §3
// for the authoritative invariants; this package holds data and small
// ordering/parsing helpers only.
package types
