package connlayer

import (
	"time"

	"github.com/aytixel/dwitch/internal/protocol"
)

// Timing is the resolved set of §4 liveness/backoff constants. Callers
// building a Server or Connector supply this explicitly so an operator's
// optional TOML overrides (spec §10.3) reach the connection layer instead
// of being silently ignored in favor of the hardcoded defaults.
type Timing struct {
	PingInterval  time.Duration
	PingTimeout   time.Duration
	ConnectRetry  time.Duration
	AcceptBackoff time.Duration
}

// DefaultTiming returns the §4 constants unmodified.
func DefaultTiming() Timing {
	return Timing{
		PingInterval:  protocol.PingInterval,
		PingTimeout:   protocol.PingTimeout,
		ConnectRetry:  protocol.ConnectRetryInterval,
		AcceptBackoff: protocol.AcceptBackoff,
	}
}
