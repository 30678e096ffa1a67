package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// SettlePrefix is the destination prefix that routes a Prepare's data
// to the sending account's settlement engine instead of forwarding it.
const SettlePrefix = ilpwire.Address("peer.settle")

// SettlementEngineClient posts a settlement payload to an account's
// configured settlement engine and returns its reply body.
type SettlementEngineClient interface {
	Do(ctx context.Context, accountID uuid.UUID, body []byte) ([]byte, error)
}

// SettlementMessage relays "peer.settle*" Prepares to the sending
// account's settlement engine over HTTP.
type SettlementMessage struct {
	Inner      service.IncomingService
	OurAddress ilpwire.Address
	Client     SettlementEngineClient
}

func (s *SettlementMessage) HandleIncoming(ctx context.Context, req service.IncomingRequest) service.Result {
	if !req.Prepare.Destination.HasPrefix(SettlePrefix) {
		return s.Inner.HandleIncoming(ctx, req)
	}

	reply, err := s.Client.Do(ctx, req.From, req.Prepare.Data)
	if err != nil {
		log.Errorf("settlement engine call failed for %s: %v", req.From, err)
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, s.OurAddress, "settlement engine request failed"))
	}

	return service.FulfillResult(&ilpwire.Fulfill{Data: reply})
}

// HTTPSettlementEngineClient is the default SettlementEngineClient,
// resolving one settlement engine base URL per account.
type HTTPSettlementEngineClient struct {
	HTTP    *http.Client
	URLOf   func(accountID uuid.UUID) (string, bool)
}

func (c *HTTPSettlementEngineClient) Do(ctx context.Context, accountID uuid.UUID, body []byte) ([]byte, error) {
	base, ok := c.URLOf(accountID)
	if !ok {
		return nil, ErrNoSettlementEngine
	}

	url := strings.TrimRight(base, "/") + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// ErrNoSettlementEngine is returned when the sending account has no
// settlement engine configured.
var ErrNoSettlementEngine = errNoSettlementEngine{}

type errNoSettlementEngine struct{}

func (errNoSettlementEngine) Error() string { return "middleware: account has no settlement engine configured" }
