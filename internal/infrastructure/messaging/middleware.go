package messaging

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// chain applies middlewares so that the first one is outermost.
func chain(h shared.EventHandler, middlewares []Middleware) shared.EventHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RecoveryMiddleware turns a handler panic into an error.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic recovered",
						"event_type", event.EventType(),
						"panic", r,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs every handler run at debug level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			logger.Debug("handler completed",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"duration", time.Since(start),
				"ok", err == nil,
			)
			return err
		}
	}
}

// TimeoutMiddleware stops waiting for a handler after timeout. The handler
// goroutine keeps running until it returns on its own.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			done := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- fmt.Errorf("handler panic: %v", r)
					}
				}()
				done <- next(event)
			}()

			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case err := <-done:
				return err
			case <-timer.C:
				return fmt.Errorf("handler timeout after %v", timeout)
			}
		}
	}
}
