package billing

import (
	"context"
	"fmt"
)

type GatewayRequest struct {
	IdempotencyKey string
	Amount         int64
	Refund         bool
	// OriginalRef is the gateway reference of the charge a refund reverses.
	OriginalRef string
	Description string
}

type GatewayAck struct {
	Reference string
}

// Gateway moves money. Implementations must treat IdempotencyKey as the
// identity of the request so retries never double charge.
type Gateway interface {
	Charge(ctx context.Context, req GatewayRequest) (GatewayAck, error)
}

// StubGateway accepts every request. It is used when no real provider is
// configured and for cash or insurance desks that settle offline.
type StubGateway struct{}

func (StubGateway) Charge(ctx context.Context, req GatewayRequest) (GatewayAck, error) {
	if err := ctx.Err(); err != nil {
		return GatewayAck{}, err
	}
	prefix := "stub_ch_"
	if req.Refund {
		prefix = "stub_re_"
	}
	return GatewayAck{Reference: fmt.Sprintf("%s%s", prefix, req.IdempotencyKey)}, nil
}
