// Package volume resolves khfile:// URIs against the configured set of
// named volumes and reports per-volume host placement (spec §4.4). It holds
// the static volume list loaded at startup; runtime free-space and
// reservation accounting live in types.VolumeRuntime, owned by the resource
// manager.
package volume
