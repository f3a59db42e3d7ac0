package orchestrator

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/callsense/callsense/internal/orchestrator"

var tracer = otel.Tracer(scopeName)
