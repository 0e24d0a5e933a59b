// Package server hosts the Fiber HTTP front of the media cache. It attaches
// request-ID and recover middlewares, streams resolved files from /media, and
// exposes diagnostics plus prefetch/invalidate endpoints under /-/. The cache
// is injected through the MediaCache interface so handlers can be exercised
// against a real Manager in tests.
package server
