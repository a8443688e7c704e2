package messaging

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// LogGateway writes notifications to the log instead of sending them. It is
// used when no SMS credentials are configured.
type LogGateway struct {
	log *logger.Logger
	seq atomic.Int64
}

var _ domain.MessagingGateway = (*LogGateway)(nil)

// NewLogGateway creates a log-only gateway.
func NewLogGateway(log *logger.Logger) *LogGateway {
	return &LogGateway{log: log}
}

// Send logs the message and returns a local id.
func (g *LogGateway) Send(_ context.Context, to, from, body string) (string, error) {
	id := fmt.Sprintf("log-%d", g.seq.Add(1))
	g.log.Info("[sms %s] to=%s from=%s: %s", id, to, from, body)
	return id, nil
}
