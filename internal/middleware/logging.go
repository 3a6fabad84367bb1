package middleware

import (
	"context"
	"log/slog"
	"time"

	"parley/internal/observability"

	"github.com/gofiber/fiber/v2"
)

const traceIDLocal = "traceID"

// requestContext copies the request id, trace id and authenticated user from
// fiber locals into ctx so service-layer log records carry them.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
		ctx = context.WithValue(ctx, observability.RequestIDKey, rid)
	}
	if tid, ok := c.Locals(traceIDLocal).(string); ok && tid != "" {
		ctx = context.WithValue(ctx, observability.TraceIDKey, tid)
	}
	if uid := CurrentUserID(c); uid != 0 {
		ctx = observability.WithUserID(ctx, uid)
	}
	return ctx
}

// ContextMiddleware stores requestContext as the request's user context.
// It runs once globally and again after AuthRequired so the user id is included.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.SetUserContext(requestContext(c))
		return c.Next()
	}
}

// StructuredLogger writes one slog record per request once the handler chain returns.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if route := c.Route(); route != nil && route.Path != c.Path() {
			attrs = append(attrs, slog.String("route", route.Path))
		}

		ctx := requestContext(c)
		switch {
		case err != nil:
			attrs = append(attrs, slog.String("error", err.Error()))
			observability.Logger.ErrorContext(ctx, "request failed", attrs...)
		case status >= fiber.StatusInternalServerError:
			observability.Logger.ErrorContext(ctx, "request failed", attrs...)
		case status >= fiber.StatusBadRequest:
			observability.Logger.WarnContext(ctx, "request rejected", attrs...)
		default:
			observability.Logger.InfoContext(ctx, "request handled", attrs...)
		}
		return err
	}
}
