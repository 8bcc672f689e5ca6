package uri

import (
	"errors"
	"testing"
)

func TestParseTargets(t *testing.T) {
	testCases := []struct {
		name     string
		line     string
		hostname string
		resource string
	}{
		{"absolute root", "GET http://example.com/ HTTP/1.1", "example.com", "/"},
		{"absolute no slash", "GET http://example.com HTTP/1.1", "example.com", "/"},
		{"https scheme", "GET https://example.com/a/b.html HTTP/1.1", "example.com", "/a/b.html"},
		{"leading slash scheme", "GET /http://example.com/index.html HTTP/1.0", "example.com", "/index.html"},
		{"bare host path", "GET /example.com/x HTTP/1.1", "", "/example.com/x"},
		{"host form", "GET example.com/x HTTP/1.1", "example.com", "/x"},
		{"traversal stripped", "GET http://example.com/a/../b HTTP/1.1", "example.com", "/a/b"},
		{"repeated traversal", "GET http://example.com/../../etc/passwd HTTP/1.1", "example.com", "/etc/passwd"},
		{"dot segment kept", "GET http://example.com/a/./b HTTP/1.1", "example.com", "/a/./b"},
		{"encoded traversal kept", "GET http://example.com/%2e%2e/b HTTP/1.1", "example.com", "/%2e%2e/b"},
		{"partial dots left", "GET http://example.com/a/.../b HTTP/1.1", "example.com", "/a./b"},
		{"traversal re-forms", "GET http://example.com/a//..../b HTTP/1.1", "example.com", "/a/../b"},
		{"uppercase scheme kept", "GET HTTP://example.com/ HTTP/1.1", "HTTP:", "//example.com/"},
		{"scheme stripped once", "GET http://http://example.com/ HTTP/1.1", "http:", "//example.com/"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := Parse(tc.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Hostname != tc.hostname {
				t.Fatalf("hostname mismatch: want %q got %q", tc.hostname, req.Hostname)
			}
			if req.ResourcePath != tc.resource {
				t.Fatalf("resource mismatch: want %q got %q", tc.resource, req.ResourcePath)
			}
		})
	}
}

func TestParseKeepsMethodAndVersion(t *testing.T) {
	req, err := Parse("HEAD http://example.com/x HTTP/1.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "HEAD" || req.Version != "HTTP/1.0" || req.RawTarget != "http://example.com/x" {
		t.Fatalf("unexpected parse result: %+v", req)
	}
	if req.String() != "HEAD example.com/x" {
		t.Fatalf("unexpected String(): %s", req.String())
	}
}

func TestParseMalformed(t *testing.T) {
	for _, line := range []string{"", "GET", "GET http://example.com/"} {
		if _, err := Parse(line); !errors.Is(err, ErrMalformedRequest) {
			t.Fatalf("expected ErrMalformedRequest for %q, got %v", line, err)
		}
	}
}

func TestParseRequestUsesFirstLine(t *testing.T) {
	raw := []byte("GET http://example.com/page HTTP/1.1\r\nHost: example.com\r\nUser-Agent: test\r\n\r\n")
	req, err := ParseRequest(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Hostname != "example.com" || req.ResourcePath != "/page" || req.Version != "HTTP/1.1" {
		t.Fatalf("unexpected parse result: %+v", req)
	}

	if _, err := ParseRequest([]byte("GET /\r\nHost: example.com\r\n\r\n")); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("headers must not fill a short request line, got %v", err)
	}
}
