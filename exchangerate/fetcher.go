package exchangerate

import (
	"context"
	"time"
)

// Provider fetches a fresh "asset code -> units per USD" map from a
// third-party rate source. CoinCapProvider and CryptoCompareProvider
// are the two implementations this interface stands in for.
type Provider interface {
	FetchRates(ctx context.Context) (map[string]float64, error)
}

// DefaultMaxConsecutiveFailures is how many consecutive fetch
// failures Fetcher tolerates before clearing the rate map.
const DefaultMaxConsecutiveFailures = 5

// Fetcher polls a Provider on an interval and replaces Rates
// atomically, clearing the map after too many consecutive failures.
type Fetcher struct {
	Rates    *Rates
	Provider Provider
	Interval time.Duration

	MaxConsecutiveFailures int

	failures int
}

func (f *Fetcher) maxFailures() int {
	if f.MaxConsecutiveFailures != 0 {
		return f.MaxConsecutiveFailures
	}
	return DefaultMaxConsecutiveFailures
}

// Run polls until ctx is cancelled. It performs one fetch immediately
// before entering the interval loop.
func (f *Fetcher) Run(ctx context.Context) {
	f.tick(ctx)

	ticker := time.NewTicker(f.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *Fetcher) tick(ctx context.Context) {
	rates, err := f.Provider.FetchRates(ctx)
	if err != nil {
		f.failures++
		log.Warnf("exchange rate fetch failed (%d consecutive): %v", f.failures, err)
		if f.failures >= f.maxFailures() {
			log.Errorf("clearing exchange rate map after %d consecutive failures", f.failures)
			f.Rates.Clear()
		}
		return
	}

	f.failures = 0
	f.Rates.Replace(rates)
}
