// Package command contains write operations (CQRS - Commands).
// Every command runs its state changes in one store.UnitOfWork and publishes
// domain events only after the unit of work commits.
package command

import (
	"strings"

	"github.com/superheroes-club/luz-engine/internal/domain/shared"
	"github.com/superheroes-club/luz-engine/pkg/logger"
)

// publishEvents hands events to the bus after commit. Failures are logged and
// never reach the caller: the state change has already happened.
func publishEvents(log *logger.Logger, pub shared.EventPublisher, events ...shared.Event) {
	if pub == nil {
		return
	}
	for _, e := range events {
		if err := pub.Publish(e); err != nil {
			log.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.String("aggregate_id", e.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// required returns a validation error when value is blank.
func required(domain, op, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return shared.NewDomainError(domain, op, shared.ErrValidation, field+" is required")
	}
	return nil
}

func orNop(l *logger.Logger) *logger.Logger {
	if l == nil {
		return logger.Nop()
	}
	return l
}

func orSystemClock(c shared.Clock) shared.Clock {
	if c == nil {
		return shared.SystemClock{}
	}
	return c
}
