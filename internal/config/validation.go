package config

import (
	"errors"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if err := validatePort("ListenPort", g.ListenPort); err != nil {
		return err
	}
	if g.AdminListenPort < 0 || g.AdminListenPort > 65535 {
		return newFieldError(globalField("AdminListenPort"), "必须在 0-65535，0 表示关闭")
	}
	if g.AdminListenPort > 0 && g.AdminListenPort == g.ListenPort {
		return newFieldError(globalField("AdminListenPort"), "不能与 ListenPort 相同")
	}
	if strings.TrimSpace(g.StoragePath) == "" {
		return newFieldError(globalField("StoragePath"), "不能为空")
	}
	if err := validatePort("OriginPort", g.OriginPort); err != nil {
		return err
	}
	if g.ClientBufferSize <= 0 {
		return newFieldError(globalField("ClientBufferSize"), "必须大于 0")
	}
	if g.OriginBufferSize <= 0 {
		return newFieldError(globalField("OriginBufferSize"), "必须大于 0")
	}
	if g.DialTimeout.DurationValue() < 0 {
		return newFieldError(globalField("DialTimeout"), "不能为负数")
	}
	if g.LogMaxSize < 0 || g.LogMaxBackups < 0 {
		return newFieldError(globalField("LogMaxSize/LogMaxBackups"), "不能为负数")
	}
	return nil
}

func validatePort(field string, port int) error {
	if port <= 0 || port > 65535 {
		return newFieldError(globalField(field), "必须在 1-65535")
	}
	return nil
}
