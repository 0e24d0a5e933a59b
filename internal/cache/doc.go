// Package cache implements the remote-media cache: a Manager resolves content
// URIs to local files, downloading each one at most once at a time, coalescing
// concurrent requests for the same key, and evicting the least recently used
// ready entries once the configured capacity is exceeded.
//
// Every key maps to one entry with an Idle/Downloading/Ready/Failed state
// machine. Callers interact with entries through Handles: GetFile delivers the
// local path (or the failure) to a callback, File blocks until it is known.
// Callbacks for one entry are delivered in the order GetFile was called and
// never while the Manager holds a lock. Failed entries stay in the index and
// are retried by the next GetFile.
//
// Downloads run on a bounded worker pool; once started they are never
// cancelled, since other waiters may still need the result.
package cache
