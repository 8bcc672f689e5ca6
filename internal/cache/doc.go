// Package cache defines the disk-backed store that maps a (hostname, resource
// path) pair to <StoragePath>/<hostname><resourcePath> files. A payload file
// holds the raw origin response bytes; an optional sibling "<payload>.meta"
// file records cached_at/expires_at/max_age and drives freshness. Metadata
// problems fail open: an unreadable or corrupt .meta file is logged and the
// payload is treated as fresh; only expires_at decides freshness. Storing a
// payload without metadata removes any older .meta for that key so a stale TTL
// never applies to the new payload. The proxy orchestrator only talks to this
// package through Store and PolicyWriter and never touches the files itself.
package cache
