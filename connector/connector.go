// Package connector wires the independently-testable pieces (router,
// middleware, ccp, exchangerate, stream, btp, httptransport,
// settlement) into the node's incoming and outgoing service chains:
// one place builds every subsystem and starts/stops them together.
package connector

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/interledger/go-ilp-connector/btp"
	"github.com/interledger/go-ilp-connector/ccp"
	"github.com/interledger/go-ilp-connector/config"
	"github.com/interledger/go-ilp-connector/exchangerate"
	"github.com/interledger/go-ilp-connector/httptransport"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/middleware"
	"github.com/interledger/go-ilp-connector/router"
	"github.com/interledger/go-ilp-connector/service"
	"github.com/interledger/go-ilp-connector/settlement"
	"github.com/interledger/go-ilp-connector/store"
	"github.com/interledger/go-ilp-connector/store/boltstore"
	"github.com/interledger/go-ilp-connector/store/memstore"
	"github.com/interledger/go-ilp-connector/stream"
)

// Node owns every subsystem of one connector process.
type Node struct {
	Config     *config.Config
	OurAddress ilpwire.Address
	RootSecret []byte

	Store store.Store

	Table   *router.AtomicTable
	Builder *router.Builder

	Rates       *exchangerate.Rates
	RateFetcher *exchangerate.Fetcher

	CCPManager *ccp.Manager
	BTP        *btp.Service
	Settlement *settlement.Client

	incoming        service.IncomingService
	fullOutgoing    service.OutgoingService
	controlOutgoing service.OutgoingService

	httpServer *http.Server
	btpServer  *http.Server
}

// New builds a Node from cfg without starting anything.
func New(cfg *config.Config) (*Node, error) {
	ourAddress, err := ilpwire.ParseAddress(cfg.ILPAddress)
	if err != nil {
		return nil, fmt.Errorf("connector: invalid ilp_address: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	n := &Node{
		Config:     cfg,
		OurAddress: ourAddress,
		RootSecret: []byte(cfg.RootSecret),
		Store:      st,
		Table:      router.NewAtomicTable(),
		Builder:    router.NewBuilder(),
		Rates:      exchangerate.NewRates(),
	}

	if err := n.loadStaticRoutes(context.Background()); err != nil {
		return nil, err
	}

	n.BTP = btp.NewService(256)

	settlementClient, err := settlement.NewClient(http.DefaultClient, n.settlementEndpointOf, st, 1024)
	if err != nil {
		return nil, fmt.Errorf("connector: building settlement client: %w", err)
	}
	n.Settlement = settlementClient

	n.RateFetcher = &exchangerate.Fetcher{
		Rates:    n.Rates,
		Provider: rateProvider(cfg),
		Interval: cfg.ExchangeRateInterval,
	}

	n.CCPManager = ccp.NewManager(ourAddress, n.Table, n.Builder, &ccpSender{n}, n.ccpAccountsOf)
	n.CCPManager.BroadcastInterval = cfg.CCPBroadcastInterval

	n.buildChains()

	n.httpServer = &http.Server{
		Addr: cfg.HTTPListenAddress,
		Handler: (&httptransport.Server{
			Auth:    n,
			Handler: n.incoming,
		}).Router(),
	}
	n.btpServer = &http.Server{
		Addr:    cfg.BTPListenAddress,
		Handler: &btp.Server{Service: n.BTP, Auth: n},
	}

	return n, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.StorePath == "" {
		return memstore.New(), nil
	}
	aead, err := secretAEAD(cfg)
	if err != nil {
		return nil, err
	}
	return boltstore.Open(cfg.StorePath, aead)
}

func rateProvider(cfg *config.Config) exchangerate.Provider {
	if cfg.ExchangeRateProvider == "cryptocompare" {
		return &exchangerate.CryptoCompareProvider{}
	}
	return &exchangerate.CoinCapProvider{}
}

// buildChains assembles the incoming chain (RateLimit -> Validator(in)
// -> MaxPacketAmount -> ILDCP -> SettlementMessage -> Echo ->
// CCP-RouteManager -> Router) and the outgoing chain (ExchangeRate ->
// Balance -> StreamReceiver -> ExpiryShortener -> Validator(out) ->
// transport). Node-originated control traffic (CCP broadcasts, echo
// bounces) uses a second, shorter outgoing chain that skips
// ExchangeRate/Balance/StreamReceiver: those three exist to account
// for customer payment traffic, and control packets carry no balance
// or settlement implications of their own.
func (n *Node) buildChains() {
	httpClient := &httptransport.Client{OurAddress: n.OurAddress, EndpointOf: n.httpEndpointOf}
	transport := &btp.OutgoingDispatcher{Service: n.BTP, OurAddress: n.OurAddress, Fallback: httpClient}

	controlTerminal := &middleware.OutgoingValidator{Inner: transport, OurAddress: n.OurAddress}
	n.controlOutgoing = &middleware.ExpiryShortener{
		Inner:                controlTerminal,
		OurAddress:           n.OurAddress,
		NextHopRoundTripTime: n.roundTripTimeOf,
	}

	fullTerminal := &middleware.OutgoingValidator{Inner: transport, OurAddress: n.OurAddress}
	expiry := &middleware.ExpiryShortener{
		Inner:                fullTerminal,
		OurAddress:           n.OurAddress,
		NextHopRoundTripTime: n.roundTripTimeOf,
	}
	receiver := &stream.ReceiverService{Inner: expiry, OurAddress: n.OurAddress, RootSecret: n.RootSecret}
	balance := &middleware.Balance{
		Inner:        receiver,
		Store:        n.Store,
		OurAddress:   n.OurAddress,
		ThresholdsOf: n.thresholdsOf,
		Settlement:   n.Settlement,
	}
	n.fullOutgoing = &exchangerate.Service{
		Inner:       balance,
		Rates:       n.Rates,
		OurAddress:  n.OurAddress,
		Spread:      n.Config.ExchangeRateSpread,
		AssetInfoOf: n.assetInfoOf,
	}

	routerSvc := &router.Router{Table: n.Table, Outgoing: n.fullOutgoing, OurAddress: n.OurAddress}
	routeManager := &ccp.RouteManagerService{Inner: routerSvc, Manager: n.CCPManager, AccountByID: n.ccpAccountByID}
	echo := &middleware.Echo{Inner: routeManager, OurAddress: n.OurAddress, Sender: &echoSender{n}}
	settlementMsg := &middleware.SettlementMessage{
		Inner:      echo,
		OurAddress: n.OurAddress,
		Client:     &middleware.HTTPSettlementEngineClient{HTTP: http.DefaultClient, URLOf: n.settlementEndpointOf},
	}
	ildcp := &middleware.ILDCP{Inner: settlementMsg, OurAddress: n.OurAddress, SenderInfoOf: n.senderInfoOf}
	maxPacket := &middleware.MaxPacketAmount{Inner: ildcp, OurAddress: n.OurAddress, MaxPacketAmountOf: n.maxPacketAmountOf}
	validator := &middleware.IncomingValidator{Inner: maxPacket}
	n.incoming = &middleware.RateLimit{Inner: validator, Store: n.Store, OurAddress: n.OurAddress, LimitsOf: n.limitsOf}
}

// Run starts every background subsystem and blocks until ctx is
// cancelled or one of them fails.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n.CCPManager.Run(gctx)
		return nil
	})
	g.Go(func() error {
		n.RateFetcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		n.dispatchBTPIncoming(gctx)
		return nil
	})
	g.Go(func() error {
		return runHTTPServer(gctx, n.httpServer)
	})
	g.Go(func() error {
		return runHTTPServer(gctx, n.btpServer)
	})
	g.Go(func() error {
		n.dialConfiguredPeers(gctx)
		return nil
	})

	return g.Wait()
}

func runHTTPServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// dispatchBTPIncoming drains BTP-delivered Prepares through the
// incoming chain and writes the result back over the same connection.
func (n *Node) dispatchBTPIncoming(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-n.BTP.Incoming:
			res := n.incoming.HandleIncoming(ctx, service.IncomingRequest{From: env.From, Prepare: env.Prepare})
			if err := n.BTP.Respond(env, res); err != nil {
				cnctLog.Warnf("failed to respond to btp request from %s: %v", env.From, err)
			}
		}
	}
}

// dialConfiguredPeers opens the bootstrap outgoing BTP connections
// listed in cfg.Peers.
func (n *Node) dialConfiguredPeers(ctx context.Context) {
	for _, peer := range n.Config.Peers {
		if peer.BTPURL == "" {
			continue
		}
		id, err := uuid.Parse(peer.AccountID)
		if err != nil {
			cnctLog.Errorf("invalid peer account_id %q: %v", peer.AccountID, err)
			continue
		}
		if err := btp.Dial(ctx, n.BTP, id, peer.BTPURL, peer.BTPToken); err != nil {
			cnctLog.Warnf("failed to dial btp peer %s: %v", peer.AccountID, err)
		}
	}
}

func (n *Node) loadStaticRoutes(ctx context.Context) error {
	routes, err := n.Store.ListStaticRoutes(ctx)
	if err != nil {
		return err
	}
	n.Builder.SetLayer(router.LayerStatic, routes)
	if defaultAccount, ok, err := n.Store.GetDefaultRoute(ctx); err == nil && ok {
		local := map[string]uuid.UUID{"": defaultAccount}
		n.Builder.SetLayer(router.LayerLocal, local)
	}
	n.Table.Store(n.Builder.Build())
	return nil
}
