package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultListenPort       = 8888
	defaultOriginPort       = 80
	defaultBufferSize       = 1000000
	defaultStoragePath      = "./cache"
	defaultConfigFileName   = "config.toml"
	defaultLogMaxSizeMB     = 100
	defaultLogMaxBackupKeep = 10
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑；文件必须存在。
func Load(path string) (*Config, error) {
	return load(path, true)
}

// LoadOptional 与 Load 相同，但文件缺失时直接使用默认值。
func LoadOptional(path string) (*Config, error) {
	return load(path, false)
}

// Default 返回纯默认值构成的配置，主要用于测试与无配置文件启动。
func Default() *Config {
	cfg := &Config{}
	applyGlobalDefaults(&cfg.Global)
	cfg.Global.LogLevel = "info"
	cfg.Global.StoragePath = defaultStoragePath
	cfg.Global.LogMaxSize = defaultLogMaxSizeMB
	cfg.Global.LogMaxBackups = defaultLogMaxBackupKeep
	cfg.Global.LogCompress = true
	return cfg
}

func load(path string, required bool) (*Config, error) {
	if path == "" {
		path = defaultConfigFileName
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if required || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenHost", "")
	v.SetDefault("ListenPort", defaultListenPort)
	v.SetDefault("AdminListenPort", 0)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", defaultLogMaxSizeMB)
	v.SetDefault("LogMaxBackups", defaultLogMaxBackupKeep)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", defaultStoragePath)
	v.SetDefault("OriginPort", defaultOriginPort)
	v.SetDefault("ClientBufferSize", defaultBufferSize)
	v.SetDefault("OriginBufferSize", defaultBufferSize)
	v.SetDefault("DialTimeout", "0s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = defaultListenPort
	}
	if g.OriginPort == 0 {
		g.OriginPort = defaultOriginPort
	}
	if g.ClientBufferSize == 0 {
		g.ClientBufferSize = defaultBufferSize
	}
	if g.OriginBufferSize == 0 {
		g.OriginBufferSize = defaultBufferSize
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
