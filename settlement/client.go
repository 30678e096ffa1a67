// Package settlement implements the outgoing side of the connector's
// settlement-engine plumbing: idempotent HTTP calls from the Balance
// service's fire-and-forget enqueue to each account's configured
// settlement engine.
package settlement

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/interledger/go-ilp-connector/store"
)

// log is the package's subsystem logger, wired by the connector.
var log = slog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(l slog.Logger) {
	log = l
}

// Message is the body posted to a settlement engine.
type Message struct {
	AccountID uuid.UUID `json:"accountId"`
	Amount    int64     `json:"amount"`
}

// EngineEndpointOf resolves an account's settlement engine base URL.
type EngineEndpointOf func(accountID uuid.UUID) (string, bool)

// Client posts settlement messages to each account's settlement
// engine, deduplicating retries via an idempotency key fronted by an
// in-memory LRU cache over the durable store.IdempotencyStore.
type Client struct {
	HTTP       *http.Client
	EndpointOf EngineEndpointOf
	Store      store.IdempotencyStore

	cache *lru.Cache
}

// NewClient returns a Client with an LRU front-cache of the given
// size over the idempotency store.
func NewClient(httpClient *http.Client, endpointOf EngineEndpointOf, idempotency store.IdempotencyStore, cacheSize int) (*Client, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{HTTP: httpClient, EndpointOf: endpointOf, Store: idempotency, cache: cache}, nil
}

// EnqueueSettlement posts amount for accountID to its settlement
// engine. Failures are logged, never propagated to the forwarding
// path: this runs well after the packet that triggered it has
// already been fulfilled or rejected.
func (c *Client) EnqueueSettlement(accountID uuid.UUID, amount int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.settle(ctx, accountID, amount); err != nil {
			log.Errorf("settlement: failed to settle %d for account %s: %v", amount, accountID, err)
		}
	}()
}

func (c *Client) settle(ctx context.Context, accountID uuid.UUID, amount int64) error {
	base, ok := c.EndpointOf(accountID)
	if !ok {
		return fmt.Errorf("settlement: no engine configured for account %s", accountID)
	}

	body, err := json.Marshal(Message{AccountID: accountID, Amount: amount})
	if err != nil {
		return err
	}

	key := idempotencyKey(accountID, body)
	if cached, ok := c.lookupCached(ctx, key); ok {
		if cached.StatusCode >= 200 && cached.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("settlement: cached failure for key %s (status %d)", key, cached.StatusCode)
	}

	url := strings.TrimRight(base, "/") + "/settlements"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	rec := store.IdempotencyRecord{
		StatusCode: resp.StatusCode,
		BodyHash:   hashOf(body),
		Response:   respBody,
	}
	c.cache.Add(key, rec)
	if err := c.Store.Put(ctx, key, rec); err != nil {
		log.Warnf("settlement: failed to persist idempotency record for %s: %v", key, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("settlement: engine returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) lookupCached(ctx context.Context, key string) (store.IdempotencyRecord, bool) {
	if v, ok := c.cache.Get(key); ok {
		return v.(store.IdempotencyRecord), true
	}
	rec, ok, err := c.Store.Get(ctx, key)
	if err != nil || !ok {
		return store.IdempotencyRecord{}, false
	}
	c.cache.Add(key, rec)
	return rec, true
}

func idempotencyKey(accountID uuid.UUID, body []byte) string {
	h := sha256.Sum256(append([]byte(accountID.String()+":"), body...))
	return hex.EncodeToString(h[:])
}

func hashOf(body []byte) string {
	h := sha256.Sum256(body)
	return hex.EncodeToString(h[:])
}
