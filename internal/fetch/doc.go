// Package fetch implements the downloader behind the media cache. A fetch
// streams one remote resource (http, https, or s3 via an S3-compatible client)
// into a temp file inside the cache root and renames it into place, reporting
// progress while it copies. Failures are classified as network or storage
// errors so the cache can record them on the entry; retrying is left to the
// caller.
package fetch
