package sim

import (
	"go.opentelemetry.io/otel/trace"

	"netsync/internal/telemetry"
	"netsync/logging"
)

// Deps carries shared infrastructure dependencies required by the tick loop.
type Deps struct {
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Clock   logging.Clock
	Tracer  trace.Tracer
}
