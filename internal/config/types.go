package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述代理进程的全部运行参数。
type GlobalConfig struct {
	ListenHost       string   `mapstructure:"ListenHost"`
	ListenPort       int      `mapstructure:"ListenPort"`
	AdminListenPort  int      `mapstructure:"AdminListenPort"`
	LogLevel         string   `mapstructure:"LogLevel"`
	LogFilePath      string   `mapstructure:"LogFilePath"`
	LogMaxSize       int      `mapstructure:"LogMaxSize"`
	LogMaxBackups    int      `mapstructure:"LogMaxBackups"`
	LogCompress      bool     `mapstructure:"LogCompress"`
	StoragePath      string   `mapstructure:"StoragePath"`
	OriginPort       int      `mapstructure:"OriginPort"`
	ClientBufferSize int      `mapstructure:"ClientBufferSize"`
	OriginBufferSize int      `mapstructure:"OriginBufferSize"`
	DialTimeout      Duration `mapstructure:"DialTimeout"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}

// ListenAddress 返回 host:port 形式的监听地址。
func (g GlobalConfig) ListenAddress() string {
	return net.JoinHostPort(g.ListenHost, strconv.Itoa(g.ListenPort))
}

// AdminEnabled 表示是否需要启动诊断端口。
func (g GlobalConfig) AdminEnabled() bool {
	return g.AdminListenPort > 0
}

// AdminAddress 返回诊断服务监听地址，与代理共用 ListenHost。
func (g GlobalConfig) AdminAddress() string {
	return net.JoinHostPort(g.ListenHost, strconv.Itoa(g.AdminListenPort))
}

// OverrideListen 使用 CLI 位置参数覆盖监听地址，随后需重新 Validate。
func (c *Config) OverrideListen(host, port string) error {
	if c == nil {
		return fmt.Errorf("配置为空")
	}
	if host != "" {
		c.Global.ListenHost = host
	}
	if port == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil {
		return newFieldError("ListenPort", fmt.Sprintf("无法解析端口 %q", port))
	}
	c.Global.ListenPort = parsed
	return nil
}
