package origin

import (
	"errors"
	"fmt"
)

// ErrEmptyHostname 表示请求中没有可连接的主机名。
var ErrEmptyHostname = errors.New("empty hostname")

// ConnectError 表示地址解析或建立连接失败。
type ConnectError struct {
	Hostname string
	Address  string
	Err      error
}

func (e *ConnectError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("connect %s: %v", e.Hostname, e.Err)
	}
	return fmt.Sprintf("connect %s (%s): %v", e.Hostname, e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TransferError 表示连接建立后发送请求或读取响应失败。
type TransferError struct {
	Hostname string
	Op       string
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Hostname, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
