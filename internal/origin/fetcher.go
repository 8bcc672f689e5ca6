package origin

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/any-hub/proxycache/internal/config"
	"github.com/any-hub/proxycache/internal/uri"
)

const (
	defaultPort       = 80
	defaultBufferSize = 1000000
)

// Resolver 将主机名解析为地址列表，*net.Resolver 满足该接口。
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Dialer 建立到源站的连接，*net.Dialer 满足该接口。
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options 控制 Fetcher 的端口、读取上限与依赖注入。
type Options struct {
	Port        int
	BufferSize  int
	DialTimeout time.Duration
	Resolver    Resolver
	Dialer      Dialer
}

// OptionsFromConfig 从全局配置派生 Fetcher 选项。
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		Port:        cfg.Global.OriginPort,
		BufferSize:  cfg.Global.OriginBufferSize,
		DialTimeout: cfg.Global.DialTimeout.DurationValue(),
	}
}

// Response 是一次回源得到的原始字节以及实际连接的地址。
type Response struct {
	Raw     []byte
	Address string
}

// Fetcher 每次调用新建一条连接，不复用、不并发。
type Fetcher struct {
	port       int
	bufferSize int
	resolver   Resolver
	dialer     Dialer
}

// NewFetcher 构造 Fetcher；零值字段使用 80 端口、1MB 读取上限与系统解析器。
func NewFetcher(opts Options) *Fetcher {
	if opts.Port <= 0 {
		opts.Port = defaultPort
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{Timeout: opts.DialTimeout}
	}
	return &Fetcher{
		port:       opts.Port,
		bufferSize: opts.BufferSize,
		resolver:   opts.Resolver,
		dialer:     opts.Dialer,
	}
}

// Fetch 解析主机、连接源站、发送重建的请求并读取一次响应。
func (f *Fetcher) Fetch(ctx context.Context, req uri.ParsedRequest) (*Response, error) {
	if req.Hostname == "" {
		return nil, &ConnectError{Err: ErrEmptyHostname}
	}

	addrs, err := f.resolver.LookupHost(ctx, req.Hostname)
	if err != nil {
		return nil, &ConnectError{Hostname: req.Hostname, Err: err}
	}
	if len(addrs) == 0 {
		return nil, &ConnectError{Hostname: req.Hostname, Err: errors.New("no addresses")}
	}

	address := net.JoinHostPort(addrs[0], strconv.Itoa(f.port))
	conn, err := f.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &ConnectError{Hostname: req.Hostname, Address: address, Err: err}
	}
	defer conn.Close()

	if _, err := conn.Write(BuildRequest(req)); err != nil {
		return nil, &TransferError{Hostname: req.Hostname, Op: "send", Err: err}
	}

	buf := make([]byte, f.bufferSize)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &TransferError{Hostname: req.Hostname, Op: "read", Err: err}
	}

	return &Response{
		Raw:     append([]byte(nil), buf[:n]...),
		Address: address,
	}, nil
}

// BuildRequest 生成发往源站的请求：仅保留方法与资源路径，并补充 Host 头。
func BuildRequest(req uri.ParsedRequest) []byte {
	return []byte(req.Method + " " + req.ResourcePath + " HTTP/1.1\r\nHost: " + req.Hostname + "\r\n\r\n")
}
