package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component that turns one client request into
// response bytes. It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(ctx context.Context, raw []byte, w io.Writer) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(ctx context.Context, raw []byte, w io.Writer) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(ctx context.Context, raw []byte, w io.Writer) error {
	return f(ctx, raw, w)
}

const defaultClientBufferSize = 1000000

// ListenerOptions controls the accept loop.
type ListenerOptions struct {
	Logger     *logrus.Logger
	Proxy      ProxyHandler
	BufferSize int
}

// Listener 逐个接受客户端连接：读取一次、交给 ProxyHandler、半关闭写端后关闭连接。
type Listener struct {
	logger     *logrus.Logger
	proxy      ProxyHandler
	bufferSize int

	mu sync.Mutex
	ln net.Listener

	// sleep 替换 accept 退避等待，仅测试使用。
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewListener validates options and returns an unbound listener.
func NewListener(opts ListenerOptions) (*Listener, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	size := opts.BufferSize
	if size <= 0 {
		size = defaultClientBufferSize
	}
	return &Listener{
		logger:     opts.Logger,
		proxy:      opts.Proxy,
		bufferSize: size,
	}, nil
}

// Listen 绑定 TCP 地址，失败直接返回给调用方。
func (l *Listener) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()
	return nil
}

// Addr 返回实际监听地址，端口为 0 时可用于获取系统分配的端口。
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve 运行串行 accept 循环。监听器被关闭或 ctx 取消时返回 nil。
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return errors.New("listener not bound")
	}

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	l.logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   ln.Addr().String(),
	}).Info("proxy_listening")

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			delay = nextAcceptDelay(delay)
			l.logger.WithError(err).WithFields(logrus.Fields{
				"action":   "accept",
				"retry_in": delay.String(),
			}).Warn("accept_failed")
			if !l.wait(ctx, delay) {
				return nil
			}
			continue
		}
		delay = 0
		l.serveConn(ctx, conn)
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// nextAcceptDelay 按 5ms 起步指数退避，上限 1s。
func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev <= 0 {
		return minAcceptDelay
	}
	next := prev * 2
	if next > maxAcceptDelay {
		return maxAcceptDelay
	}
	return next
}

// wait 等待 d 或 ctx 取消，取消时返回 false。
func (l *Listener) wait(ctx context.Context, d time.Duration) bool {
	if l.sleep != nil {
		return l.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close 关闭监听器，使 Serve 返回。
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

type closeWriter interface {
	CloseWrite() error
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	fields := logrus.Fields{
		"action": "connection",
		"remote": conn.RemoteAddr().String(),
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithFields(fields).WithField("panic", r).Error("connection_panic")
		}
		_ = conn.Close()
	}()

	buf := make([]byte, l.bufferSize)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		l.logger.WithError(err).WithFields(fields).Warn("client_read_failed")
		return
	}
	if n == 0 {
		l.logger.WithFields(fields).Debug("client_empty_request")
		return
	}

	// 请求级错误已由处理器记录，这里只保证连接被正确收尾。
	_ = l.proxy.Handle(ctx, buf[:n], conn)

	if cw, ok := conn.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
}
