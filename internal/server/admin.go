package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const contextKeyRequestID = "_proxycache_request_id"

// AdminOptions controls the diagnostics application.
type AdminOptions struct {
	Logger *logrus.Logger
}

// NewAdminApp builds the Fiber diagnostics application with request ID and
// panic recovery middlewares. Routes are registered by the routes package.
func NewAdminApp(opts AdminOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  adminErrorHandler(opts.Logger),
	})
	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	return app, nil
}

// adminErrorHandler 以 JSON 返回错误，并把 5xx 记录到日志。
func adminErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"action":     "admin",
				"path":       c.Path(),
				"request_id": RequestID(c),
			}).Error("admin_request_failed")
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}

// requestIDMiddleware 为每个诊断请求生成请求 ID 并回写到响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// ListenAdmin 同步绑定诊断端口，端口冲突等错误在启动阶段暴露。
func ListenAdmin(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen admin %s: %w", addr, err)
	}
	return ln, nil
}

// ServeAdmin 在 ln 上阻塞提供诊断服务，ctx 取消后关闭应用并返回 nil。
func ServeAdmin(ctx context.Context, app *fiber.App, ln net.Listener, logger *logrus.Logger) error {
	stop := context.AfterFunc(ctx, func() {
		_ = app.Shutdown()
	})
	defer stop()

	logger.WithFields(logrus.Fields{
		"action": "admin_listen",
		"addr":   ln.Addr().String(),
	}).Info("admin_listening")

	err := app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
