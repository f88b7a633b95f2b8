// Package wire implements the fixed-header control protocol used between
// every pair of processes in the system: clients to the asset manager,
// the resource manager to resource providers, and provider to resource
// manager. See the package comment in wire.go for the exact frame layout.
package wire
