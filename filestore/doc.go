// Package filestore provides content-addressed audio storage with
// deduplication, quota enforcement and reference-counted deletion.
//
// Uploads stream through an incremental SHA-256 hash into a temp file,
// so whole files are never buffered in memory and cancellation is
// honored at chunk boundaries. Identical bytes resolve to one stored
// object regardless of original name. The quota check, the dedup lookup
// and the file row insert share one transaction, so two concurrent
// uploads cannot jointly exceed the quota or double-store a hash.
//
// Stored objects live in a date-partitioned layout:
//
//	<base>/<year>/<month>/<content-hash>.<ext>
package filestore
