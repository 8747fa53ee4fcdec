// Package types defines the shared domain types of the asset-priority
// service: the three configuration dimensions (diameter, material, engine
// parameters), the read-only network asset, the computation request with its
// configuration snapshot, and the persisted score result.
// These are the canonical in-memory representations, separate from the HTTP
// and storage wire formats.
package types
