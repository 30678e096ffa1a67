// Package exchangerate implements the outgoing exchange-rate
// conversion service and its background rate fetcher.
package exchangerate

import (
	"context"
	"math"
	"sync"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// log is the package's subsystem logger, wired by the connector.
var log = slog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(l slog.Logger) {
	log = l
}

// Rates is the process-wide "units per USD" map. Callers only ever
// see it through Service/Fetcher, never as a package-level global.
type Rates struct {
	mu   sync.RWMutex
	rate map[string]float64
}

// NewRates returns an empty rate map.
func NewRates() *Rates {
	return &Rates{rate: make(map[string]float64)}
}

// Replace atomically swaps the entire rate map.
func (r *Rates) Replace(rates map[string]float64) {
	cp := make(map[string]float64, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	r.mu.Lock()
	r.rate = cp
	r.mu.Unlock()
}

// Clear empties the rate map, so a provider outage starves outgoing
// conversions instead of forwarding at stale rates.
func (r *Rates) Clear() {
	r.mu.Lock()
	r.rate = make(map[string]float64)
	r.mu.Unlock()
}

func (r *Rates) get(asset string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.rate[asset]
	return v, ok
}

// AssetInfo is the subset of account fields needed to convert between
// assets.
type AssetInfo struct {
	AssetCode  string
	AssetScale uint8
}

// Service converts a Prepare's amount from the source account's asset
// to the destination account's asset before forwarding it.
type Service struct {
	Inner      service.OutgoingService
	Rates      *Rates
	OurAddress ilpwire.Address
	Spread     float64

	AssetInfoOf func(accountID uuid.UUID) (AssetInfo, bool)
}

func (s *Service) HandleOutgoing(ctx context.Context, req service.OutgoingRequest) service.Result {
	if req.Prepare.Amount == 0 {
		return s.Inner.HandleOutgoing(ctx, req)
	}

	from, ok := s.AssetInfoOf(req.From)
	if !ok {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, s.OurAddress, "unknown source account"))
	}
	to, ok := s.AssetInfoOf(req.To)
	if !ok {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, s.OurAddress, "unknown destination account"))
	}

	var rate float64
	if from.AssetCode == to.AssetCode {
		rate = 1.0
	} else {
		fromRate, fOk := s.Rates.get(from.AssetCode)
		toRate, tOk := s.Rates.get(to.AssetCode)
		if !fOk || !tOk {
			return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, s.OurAddress, "no exchange rate available"))
		}
		rate = fromRate / toRate
	}

	rate *= 1 - s.Spread
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		rate = 0
	}

	scale := math.Pow(10, float64(int(to.AssetScale)-int(from.AssetScale)))
	outF := float64(req.Prepare.Amount) * rate * scale
	out := uint64(math.Trunc(outF))

	if out == 0 && req.Prepare.Amount > 0 {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeAmountTooLarge, s.OurAddress, "amount too large"))
	}
	if outF > math.MaxUint64 {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeAmountTooLarge, s.OurAddress, "amount too large"))
	}

	forwarded := *req.Prepare
	forwarded.Amount = out
	next := req
	next.Prepare = &forwarded
	return s.Inner.HandleOutgoing(ctx, next)
}
