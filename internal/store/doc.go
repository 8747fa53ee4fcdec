// Package store is the relational persistence layer: the three scoring
// configuration tables (diameter, material, engine), the read-only asset
// source table, the leak history, the result catalog with its per-asset
// score records, and the per-user main/comparison result selectors.
//
// Configuration table saves are all-or-nothing replacements; result creation
// re-checks name uniqueness inside its transaction so a stale validation
// cannot produce a duplicate name.
package store
