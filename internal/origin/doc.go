// Package origin performs the cache-miss leg of the proxy: resolve the target
// hostname, dial it on the HTTP port, send a freshly built request line plus a
// Host header, and read the answer with a single bounded read. Client headers
// are not forwarded, and the read does not follow Content-Length or chunked
// framing; responses larger than one read are truncated.
package origin
