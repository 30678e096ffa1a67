package connector

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/interledger/go-ilp-connector/account"
	"github.com/interledger/go-ilp-connector/ccp"
	"github.com/interledger/go-ilp-connector/config"
	"github.com/interledger/go-ilp-connector/exchangerate"
	"github.com/interledger/go-ilp-connector/httptransport"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/middleware"
	"github.com/interledger/go-ilp-connector/secret"
	"github.com/interledger/go-ilp-connector/service"
)

func (n *Node) accountByID(id uuid.UUID) (*account.Account, bool) {
	a, err := n.Store.GetAccount(context.Background(), id)
	if err != nil {
		return nil, false
	}
	return a, true
}

func (n *Node) assetInfoOf(id uuid.UUID) (exchangerate.AssetInfo, bool) {
	a, ok := n.accountByID(id)
	if !ok {
		return exchangerate.AssetInfo{}, false
	}
	return exchangerate.AssetInfo{AssetCode: a.AssetCode, AssetScale: a.AssetScale}, true
}

func (n *Node) thresholdsOf(id uuid.UUID) middleware.BalanceThresholds {
	a, ok := n.accountByID(id)
	if !ok {
		return middleware.BalanceThresholds{}
	}
	return middleware.BalanceThresholds{
		MinBalance:      a.MinBalance,
		SettleThreshold: a.SettleThreshold,
		SettleTo:        a.SettleTo,
	}
}

func (n *Node) limitsOf(id uuid.UUID) middleware.AccountLimits {
	a, ok := n.accountByID(id)
	if !ok {
		return middleware.AccountLimits{}
	}
	return middleware.AccountLimits{
		PacketsPerMinute: a.PacketsPerMinuteLimit,
		AmountPerMinute:  a.AmountPerMinuteLimit,
	}
}

func (n *Node) maxPacketAmountOf(id uuid.UUID) (uint64, bool) {
	a, ok := n.accountByID(id)
	if !ok || a.MaxPacketAmount == 0 {
		return 0, false
	}
	return a.MaxPacketAmount, true
}

func (n *Node) senderInfoOf(id uuid.UUID) (middleware.SenderInfo, bool) {
	a, ok := n.accountByID(id)
	if !ok {
		return middleware.SenderInfo{}, false
	}
	return middleware.SenderInfo{Username: a.Username, AssetScale: a.AssetScale, AssetCode: a.AssetCode}, true
}

func (n *Node) roundTripTimeOf(req service.OutgoingRequest) uint64 {
	a, ok := n.accountByID(req.To)
	if !ok {
		return 0
	}
	return a.RoundTripTime
}

func (n *Node) settlementEndpointOf(id uuid.UUID) (string, bool) {
	a, ok := n.accountByID(id)
	if !ok || a.SettlementEngineURL == "" {
		return "", false
	}
	return a.SettlementEngineURL, true
}

func (n *Node) httpEndpointOf(id uuid.UUID) (httptransport.AccountEndpoint, bool) {
	a, ok := n.accountByID(id)
	if !ok || a.OutgoingHTTPURL == "" {
		return httptransport.AccountEndpoint{}, false
	}
	return httptransport.AccountEndpoint{URL: a.OutgoingHTTPURL, Token: a.OutgoingHTTPToken.Reveal()}, true
}

// AuthenticateBTPToken implements btp.AccountAuthenticator.
func (n *Node) AuthenticateBTPToken(ctx context.Context, token string) (uuid.UUID, bool) {
	a, err := n.Store.GetAccountByIncomingBTPToken(ctx, token)
	if err != nil {
		return uuid.UUID{}, false
	}
	return a.ID, true
}

// AuthenticateIncomingHTTP implements httptransport.AccountAuthenticator.
func (n *Node) AuthenticateIncomingHTTP(ctx context.Context, username, bearerToken string) (*account.Account, bool) {
	a, err := n.Store.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, false
	}
	if !a.IncomingHTTPToken.Equal(bearerToken) {
		return nil, false
	}
	return a, true
}

func (n *Node) ccpAccountsOf() []ccp.AccountInfo {
	accounts, err := n.Store.ListAccounts(context.Background())
	if err != nil {
		return nil
	}
	infos := make([]ccp.AccountInfo, 0, len(accounts))
	for _, a := range accounts {
		infos = append(infos, toCCPAccountInfo(a))
	}
	return infos
}

func (n *Node) ccpAccountByID(id uuid.UUID) (ccp.AccountInfo, bool) {
	a, ok := n.accountByID(id)
	if !ok {
		return ccp.AccountInfo{}, false
	}
	return toCCPAccountInfo(a), true
}

func toCCPAccountInfo(a *account.Account) ccp.AccountInfo {
	return ccp.AccountInfo{
		ID:              a.ID,
		ILPAddress:      a.ILPAddress,
		RoutingRelation: a.RoutingRelation,
		SendRoutes:      a.SendRoutes,
		ReceiveRoutes:   a.ReceiveRoutes,
	}
}

func secretAEAD(cfg *config.Config) (*secret.AEAD, error) {
	return secret.NewAEAD([]byte(cfg.RootSecret))
}

// ccpSender adapts Node to ccp.Sender: a route broadcast is addressed
// to an already-known peer account, so it skips straight to the
// control outgoing chain rather than going through router.Router —
// control traffic carries no balance or settlement implications of
// its own.
type ccpSender struct{ n *Node }

func (s *ccpSender) Send(ctx context.Context, accountID uuid.UUID, prepare *ilpwire.Prepare) service.Result {
	return s.n.controlOutgoing.HandleOutgoing(ctx, service.OutgoingRequest{
		To:             accountID,
		Prepare:        prepare,
		OriginalAmount: prepare.Amount,
	})
}

// echoSender adapts Node to middleware.EchoSender: an echo bounce is
// addressed by ILP address, so it is resolved through the routing
// table like any other forwarded packet, then sent over the same
// control outgoing chain the CCP manager uses.
type echoSender struct{ n *Node }

func (s *echoSender) Send(ctx context.Context, destination ilpwire.Address, amount uint64, data []byte) service.Result {
	to, ok := s.n.Table.Load().Lookup(string(destination))
	if !ok {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeUnreachable, s.n.OurAddress, "no route to echo destination"))
	}

	prepare := &ilpwire.Prepare{
		Amount:             amount,
		Destination:        destination,
		ExecutionCondition: middleware.EchoCondition(data),
		ExpiresAt:          time.Now().Add(30 * time.Second),
		Data:               data,
	}

	return s.n.controlOutgoing.HandleOutgoing(ctx, service.OutgoingRequest{
		To:             to,
		Prepare:        prepare,
		OriginalAmount: amount,
	})
}
