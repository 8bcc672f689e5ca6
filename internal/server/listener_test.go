package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newDiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func startTestListener(t *testing.T, handler ProxyHandler) (*Listener, <-chan error) {
	t.Helper()

	l, err := NewListener(ListenerOptions{
		Logger:     newDiscardLogger(),
		Proxy:      handler,
		BufferSize: 1024,
	})
	if err != nil {
		t.Fatalf("NewListener error: %v", err)
	}
	if err := l.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- l.Serve(context.Background())
	}()
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l, done
}

func roundTrip(t *testing.T, addr net.Addr, payload string) string {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatalf("write error: %v", err)
	}
	body, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	return string(body)
}

func TestListenerRelaysHandlerOutput(t *testing.T) {
	received := make(chan string, 2)
	handler := ProxyHandlerFunc(func(ctx context.Context, raw []byte, w io.Writer) error {
		received <- string(raw)
		_, err := w.Write([]byte("HTTP/1.1 200 OK\r\n\r\nok"))
		return err
	})
	l, _ := startTestListener(t, handler)

	got := roundTrip(t, l.Addr(), "GET http://example.com/ HTTP/1.1\r\n\r\n")
	if got != "HTTP/1.1 200 OK\r\n\r\nok" {
		t.Fatalf("unexpected response: %q", got)
	}

	// 串行处理：第二个连接在第一个结束后依然可用。
	got = roundTrip(t, l.Addr(), "GET http://example.com/b HTTP/1.1\r\n\r\n")
	if got != "HTTP/1.1 200 OK\r\n\r\nok" {
		t.Fatalf("unexpected second response: %q", got)
	}
	if first := <-received; first != "GET http://example.com/ HTTP/1.1\r\n\r\n" {
		t.Fatalf("unexpected first request: %q", first)
	}
}

func TestListenerClosesConnectionOnHandlerError(t *testing.T) {
	handler := ProxyHandlerFunc(func(ctx context.Context, raw []byte, w io.Writer) error {
		return errors.New("origin down")
	})
	l, _ := startTestListener(t, handler)

	if got := roundTrip(t, l.Addr(), "GET http://nowhere/ HTTP/1.1\r\n\r\n"); got != "" {
		t.Fatalf("expected empty response, got %q", got)
	}
}

func TestListenerRecoversFromPanic(t *testing.T) {
	var calls atomic.Int32
	handler := ProxyHandlerFunc(func(ctx context.Context, raw []byte, w io.Writer) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		_, err := w.Write([]byte("fine"))
		return err
	})
	l, _ := startTestListener(t, handler)

	_ = roundTrip(t, l.Addr(), "GET http://a/ HTTP/1.1\r\n\r\n")
	if got := roundTrip(t, l.Addr(), "GET http://a/ HTTP/1.1\r\n\r\n"); got != "fine" {
		t.Fatalf("listener should survive a panic, got %q", got)
	}
}

func TestListenerServeReturnsNilAfterClose(t *testing.T) {
	handler := ProxyHandlerFunc(func(ctx context.Context, raw []byte, w io.Writer) error { return nil })
	l, done := startTestListener(t, handler)

	if err := l.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve should return nil after close, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after close")
	}
}

func TestListenerBindFailure(t *testing.T) {
	handler := ProxyHandlerFunc(func(ctx context.Context, raw []byte, w io.Writer) error { return nil })
	l, _ := startTestListener(t, handler)

	other, err := NewListener(ListenerOptions{Logger: newDiscardLogger(), Proxy: handler})
	if err != nil {
		t.Fatalf("NewListener error: %v", err)
	}
	if err := other.Listen(l.Addr().String()); err == nil {
		_ = other.Close()
		t.Fatalf("expected bind failure on occupied port")
	}
}

func TestNewListenerRequiresDependencies(t *testing.T) {
	if _, err := NewListener(ListenerOptions{}); err == nil {
		t.Fatalf("expected error without logger")
	}
	if _, err := NewListener(ListenerOptions{Logger: newDiscardLogger()}); err == nil {
		t.Fatalf("expected error without proxy handler")
	}
}

type flakyListener struct {
	net.Listener
	failures int
	accepts  int
}

func (f *flakyListener) Accept() (net.Conn, error) {
	f.accepts++
	if f.accepts <= f.failures {
		return nil, errors.New("accept: too many open files")
	}
	return nil, net.ErrClosed
}

func (f *flakyListener) Close() error { return nil }

func (f *flakyListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestListenerBacksOffOnAcceptErrors(t *testing.T) {
	handler := ProxyHandlerFunc(func(ctx context.Context, raw []byte, w io.Writer) error { return nil })
	l, err := NewListener(ListenerOptions{Logger: newDiscardLogger(), Proxy: handler})
	if err != nil {
		t.Fatalf("NewListener error: %v", err)
	}
	flaky := &flakyListener{failures: 10}
	l.ln = flaky

	var delays []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) bool {
		delays = append(delays, d)
		return true
	}

	if err := l.Serve(context.Background()); err != nil {
		t.Fatalf("Serve error: %v", err)
	}
	if len(delays) != 10 {
		t.Fatalf("expected one wait per accept failure, got %d", len(delays))
	}
	if delays[0] != minAcceptDelay || delays[1] != 2*minAcceptDelay {
		t.Fatalf("backoff should start at %s and double, got %v", minAcceptDelay, delays[:2])
	}
	if delays[len(delays)-1] != maxAcceptDelay {
		t.Fatalf("backoff should cap at %s, got %s", maxAcceptDelay, delays[len(delays)-1])
	}
}

func TestListenerStopsBackoffOnCancel(t *testing.T) {
	handler := ProxyHandlerFunc(func(ctx context.Context, raw []byte, w io.Writer) error { return nil })
	l, err := NewListener(ListenerOptions{Logger: newDiscardLogger(), Proxy: handler})
	if err != nil {
		t.Fatalf("NewListener error: %v", err)
	}
	l.ln = &flakyListener{failures: 1_000_000}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve should return nil on cancel, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve kept retrying after cancel")
	}
}
