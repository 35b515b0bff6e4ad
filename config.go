package actionmw

import (
	"log/slog"

	"github.com/Keksclan/actionmw/metrics"
	"github.com/Keksclan/actionmw/tracing"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	logger              *slog.Logger
	recovery            bool
	routeContractErrors bool
	tracing             *tracing.Config
	metrics             *metrics.Collector
}
