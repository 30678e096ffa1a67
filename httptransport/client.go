// Package httptransport implements ILP-over-HTTP client and server.
package httptransport

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// AccountEndpoint is the subset of account fields the outgoing client
// needs to reach a peer over HTTP.
type AccountEndpoint struct {
	URL   string
	Token string
}

// Client POSTs a raw Prepare to the account's outgoing URL with
// bearer auth, mapping any non-2xx or malformed reply to a
// peer-unreachable Reject.
type Client struct {
	HTTP       *http.Client
	OurAddress ilpwire.Address

	EndpointOf func(accountID uuid.UUID) (AccountEndpoint, bool)
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) HandleOutgoing(ctx context.Context, req service.OutgoingRequest) service.Result {
	endpoint, ok := c.EndpointOf(req.To)
	if !ok {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodePeerUnreachable, c.OurAddress, "no http endpoint configured"))
	}

	body, err := ilpwire.EncodeToBytes(req.Prepare)
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, c.OurAddress, "failed to encode prepare"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodePeerUnreachable, c.OurAddress, "failed to build request"))
	}
	httpReq.Header.Set("Content-Type", "application/octet-stream")
	if endpoint.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+endpoint.Token)
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodePeerUnreachable, c.OurAddress, "http request failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodePeerUnreachable, c.OurAddress, "non-2xx response from peer"))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodePeerUnreachable, c.OurAddress, "failed to read response body"))
	}

	parsed, err := ilpwire.ReadPacket(bytes.NewReader(respBody))
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodePeerUnreachable, c.OurAddress, "invalid ilp packet in response"))
	}

	switch v := parsed.(type) {
	case *ilpwire.Fulfill:
		return service.FulfillResult(v)
	case *ilpwire.Reject:
		return service.RejectResult(v)
	default:
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodePeerUnreachable, c.OurAddress, "unexpected packet type in response"))
	}
}
