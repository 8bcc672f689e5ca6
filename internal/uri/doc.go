// Package uri turns the request line a client sends to the forward proxy into
// the origin hostname and resource path the rest of the proxy works with.
// Sanitization is textual: scheme prefixes are dropped once and every literal
// "/.." is deleted. Encoded traversal ("%2e%2e"), "/./" segments and
// sequences that re-form after the strip (for example "//..../" becoming
// "/../") pass through untouched, so callers must not treat ResourcePath as a
// normalized path.
package uri
