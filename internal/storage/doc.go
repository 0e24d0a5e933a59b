// Package storage owns the on-disk layout of the media cache: one file per
// cache key under a single root directory, named by a digest of the key. Writes
// always land in a temp file inside the root first and are renamed into place,
// so readers never observe a half-written download. Higher layers (fetch,
// cache) decide when to write or delete; this package only provides the
// filesystem primitives plus free-space queries.
package storage
