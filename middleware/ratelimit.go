package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
	"github.com/interledger/go-ilp-connector/store"
)

// BucketPeriod is the fixed window packet-count and amount buckets
// are counted against.
const BucketPeriod = time.Minute

// AccountLimits is the subset of account fields the rate limiter
// needs, kept narrow so middleware doesn't import account directly
// for every service.
type AccountLimits struct {
	PacketsPerMinute uint64
	AmountPerMinute  uint64
}

// RateLimit enforces a two-dimension token bucket (packet count and
// amount, both per minute), refunding the amount bucket — never the
// packet bucket — on a downstream Reject.
type RateLimit struct {
	Inner      service.IncomingService
	Store      store.RateLimitStore
	OurAddress ilpwire.Address

	LimitsOf func(accountID uuid.UUID) AccountLimits
}

func (r *RateLimit) HandleIncoming(ctx context.Context, req service.IncomingRequest) service.Result {
	limits := r.LimitsOf(req.From)

	if err := r.Store.Consume(ctx, req.From, store.DimensionPackets, 1, limits.PacketsPerMinute, BucketPeriod); err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeRateLimited, r.OurAddress, "exceeded packets per minute limit"))
	}

	if err := r.Store.Consume(ctx, req.From, store.DimensionAmount, req.Prepare.Amount, limits.AmountPerMinute, BucketPeriod); err != nil {
		// Packet-count consumption above is intentionally not refunded:
		// only the amount bucket failed, and the packet itself never
		// reaches the inner chain.
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeRateLimited, r.OurAddress, "exceeded amount per minute limit"))
	}

	res := r.Inner.HandleIncoming(ctx, req)

	if !res.IsFulfill() {
		// Downstream reject: refund the throughput (amount) bucket.
		// The packet-count bucket is never refunded.
		if err := r.Store.Refund(ctx, req.From, store.DimensionAmount, req.Prepare.Amount, BucketPeriod); err != nil {
			log.Errorf("failed to refund rate limit bucket for %s: %v", req.From, err)
		}
	}

	return res
}
