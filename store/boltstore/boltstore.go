// Package boltstore is a bbolt-backed store.Store, used for
// single-node deployments. It exercises the atomicity guarantees
// store.Store documents against a real transactional KV store rather
// than only an in-process mutex.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/interledger/go-ilp-connector/account"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/secret"
	"github.com/interledger/go-ilp-connector/store"
)

var (
	bucketAccounts     = []byte("accounts")
	bucketUsernames    = []byte("usernames")
	bucketIncomingHTTP = []byte("incoming_http_tokens")
	bucketIncomingBTP  = []byte("incoming_btp_tokens")
	bucketBalances     = []byte("balances")
	bucketRateLimits   = []byte("rate_limits")
	bucketStaticRoutes = []byte("routes_static")
	bucketMeta         = []byte("meta")
	bucketIdempotency  = []byte("idempotency")
	bucketUncredited   = []byte("uncredited")

	keyDefaultRoute = []byte("routes_default")
)

// Store is a bbolt-backed store.Store. Account tokens are encrypted
// at rest with aead before being written.
type Store struct {
	db   *bolt.DB
	aead *secret.AEAD
}

// Open opens (creating if absent) a bbolt database at path and
// ensures every top-level bucket exists.
func Open(path string, aead *secret.AEAD) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	s := &Store{db: db, aead: aead}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketAccounts, bucketUsernames, bucketIncomingHTTP, bucketIncomingBTP,
			bucketBalances, bucketRateLimits, bucketStaticRoutes, bucketMeta,
			bucketIdempotency, bucketUncredited,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// accountRecord is the on-disk shape of an Account: secret.Secret's
// own (String/MarshalJSON) always redacts, by design, so persistence
// goes through this plain-string mirror with AEAD-sealed token blobs
// instead of json.Marshal(*account.Account) directly.
type accountRecord struct {
	ID       uuid.UUID
	Username string

	AssetCode  string
	AssetScale uint8

	ILPAddress string

	OutgoingHTTPURL     string
	OutgoingHTTPTokenCT string
	OutgoingBTPURL      string
	OutgoingBTPTokenCT  string
	IncomingHTTPTokenCT string
	IncomingBTPTokenCT  string

	RoutingRelation int

	MaxPacketAmount uint64
	MinBalance      int64
	SettleThreshold int64
	SettleTo        int64

	RoundTripTime         uint64
	AmountPerMinuteLimit  uint64
	PacketsPerMinuteLimit uint64

	SettlementEngineURL string

	ReceiveRoutes bool
	SendRoutes    bool

	// Plaintext index tokens, stored alongside the sealed blob so
	// lookups can happen without decrypting every account. These are
	// the *incoming* tokens, which the account holder itself already
	// has in clear text; only outgoing tokens and the at-rest copies
	// of incoming tokens are meaningfully secret from someone who can
	// read the database file, hence the encryption above.
	IncomingHTTPTokenIndex string
	IncomingBTPTokenIndex  string
}

func (s *Store) seal(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	return s.aead.Seal(v)
}

func (s *Store) open(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	return s.aead.Open(v)
}

func (s *Store) toRecord(a *account.Account) (*accountRecord, error) {
	r := &accountRecord{
		ID:                    a.ID,
		Username:              a.Username,
		AssetCode:             a.AssetCode,
		AssetScale:            a.AssetScale,
		ILPAddress:            string(a.ILPAddress),
		OutgoingHTTPURL:       a.OutgoingHTTPURL,
		OutgoingBTPURL:        a.OutgoingBTPURL,
		RoutingRelation:       int(a.RoutingRelation),
		MaxPacketAmount:       a.MaxPacketAmount,
		MinBalance:            a.MinBalance,
		SettleThreshold:       a.SettleThreshold,
		SettleTo:              a.SettleTo,
		RoundTripTime:         a.RoundTripTime,
		AmountPerMinuteLimit:  a.AmountPerMinuteLimit,
		PacketsPerMinuteLimit: a.PacketsPerMinuteLimit,
		SettlementEngineURL:   a.SettlementEngineURL,
		ReceiveRoutes:         a.ReceiveRoutes,
		SendRoutes:            a.SendRoutes,
		IncomingHTTPTokenIndex: a.IncomingHTTPToken.Reveal(),
		IncomingBTPTokenIndex:  a.IncomingBTPToken.Reveal(),
	}
	var err error
	if r.OutgoingHTTPTokenCT, err = s.seal(a.OutgoingHTTPToken.Reveal()); err != nil {
		return nil, err
	}
	if r.OutgoingBTPTokenCT, err = s.seal(a.OutgoingBTPToken.Reveal()); err != nil {
		return nil, err
	}
	if r.IncomingHTTPTokenCT, err = s.seal(a.IncomingHTTPToken.Reveal()); err != nil {
		return nil, err
	}
	if r.IncomingBTPTokenCT, err = s.seal(a.IncomingBTPToken.Reveal()); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) fromRecord(r *accountRecord) (*account.Account, error) {
	var addr ilpwire.Address
	if r.ILPAddress != "" {
		var err error
		addr, err = ilpwire.ParseAddress(r.ILPAddress)
		if err != nil {
			return nil, err
		}
	}
	outHTTP, err := s.open(r.OutgoingHTTPTokenCT)
	if err != nil {
		return nil, err
	}
	outBTP, err := s.open(r.OutgoingBTPTokenCT)
	if err != nil {
		return nil, err
	}
	inHTTP, err := s.open(r.IncomingHTTPTokenCT)
	if err != nil {
		return nil, err
	}
	inBTP, err := s.open(r.IncomingBTPTokenCT)
	if err != nil {
		return nil, err
	}
	return &account.Account{
		ID:                    r.ID,
		Username:              r.Username,
		AssetCode:             r.AssetCode,
		AssetScale:            r.AssetScale,
		ILPAddress:            addr,
		OutgoingHTTPURL:       r.OutgoingHTTPURL,
		OutgoingHTTPToken:     secret.New(outHTTP),
		OutgoingBTPURL:        r.OutgoingBTPURL,
		OutgoingBTPToken:      secret.New(outBTP),
		IncomingHTTPToken:     secret.New(inHTTP),
		IncomingBTPToken:      secret.New(inBTP),
		RoutingRelation:       account.RoutingRelation(r.RoutingRelation),
		MaxPacketAmount:       r.MaxPacketAmount,
		MinBalance:            r.MinBalance,
		SettleThreshold:       r.SettleThreshold,
		SettleTo:              r.SettleTo,
		RoundTripTime:         r.RoundTripTime,
		AmountPerMinuteLimit:  r.AmountPerMinuteLimit,
		PacketsPerMinuteLimit: r.PacketsPerMinuteLimit,
		SettlementEngineURL:   r.SettlementEngineURL,
		ReceiveRoutes:         r.ReceiveRoutes,
		SendRoutes:            r.SendRoutes,
	}, nil
}

func (s *Store) PutAccount(ctx context.Context, a *account.Account) error {
	rec, err := s.toRecord(a)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketAccounts).Put(idKey(a.ID), buf); err != nil {
			return err
		}
		if err := tx.Bucket(bucketUsernames).Put([]byte(a.Username), idKey(a.ID)); err != nil {
			return err
		}
		if rec.IncomingHTTPTokenIndex != "" {
			if err := tx.Bucket(bucketIncomingHTTP).Put([]byte(rec.IncomingHTTPTokenIndex), idKey(a.ID)); err != nil {
				return err
			}
		}
		if rec.IncomingBTPTokenIndex != "" {
			if err := tx.Bucket(bucketIncomingBTP).Put([]byte(rec.IncomingBTPTokenIndex), idKey(a.ID)); err != nil {
				return err
			}
		}
		bb := tx.Bucket(bucketBalances)
		if bb.Get(idKey(a.ID)) == nil {
			return putBalance(bb, a.ID, store.Balance{})
		}
		return nil
	})
}

func (s *Store) getRecord(tx *bolt.Tx, id uuid.UUID) (*accountRecord, error) {
	buf := tx.Bucket(bucketAccounts).Get(idKey(id))
	if buf == nil {
		return nil, store.ErrNotFound
	}
	var rec accountRecord
	if err := json.Unmarshal(buf, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	var rec *accountRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		r, err := s.getRecord(tx, id)
		rec = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.fromRecord(rec)
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*account.Account, error) {
	var id uuid.UUID
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketUsernames).Get([]byte(username))
		if raw == nil {
			return store.ErrNotFound
		}
		var err error
		id, err = uuid.FromBytes(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) lookupByToken(bucket []byte, token string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get([]byte(token))
		if raw == nil {
			return store.ErrNotFound
		}
		var err error
		id, err = uuid.FromBytes(raw)
		return err
	})
	return id, err
}

func (s *Store) GetAccountByIncomingHTTPToken(ctx context.Context, token string) (*account.Account, error) {
	id, err := s.lookupByToken(bucketIncomingHTTP, token)
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) GetAccountByIncomingBTPToken(ctx context.Context, token string) (*account.Account, error) {
	id, err := s.lookupByToken(bucketIncomingBTP, token)
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	var out []*account.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(k, v []byte) error {
			var rec accountRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			a, err := s.fromRecord(&rec)
			if err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
	})
	return out, err
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec, err := s.getRecord(tx, id)
		if err != nil {
			return err
		}
		tx.Bucket(bucketAccounts).Delete(idKey(id))
		tx.Bucket(bucketUsernames).Delete([]byte(rec.Username))
		if rec.IncomingHTTPTokenIndex != "" {
			tx.Bucket(bucketIncomingHTTP).Delete([]byte(rec.IncomingHTTPTokenIndex))
		}
		if rec.IncomingBTPTokenIndex != "" {
			tx.Bucket(bucketIncomingBTP).Delete([]byte(rec.IncomingBTPTokenIndex))
		}
		tx.Bucket(bucketBalances).Delete(idKey(id))
		return nil
	})
}

// --- balances ---

func putBalance(b *bolt.Bucket, id uuid.UUID, bal store.Balance) error {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(bal.Balance))
	binary.BigEndian.PutUint64(buf[8:16], uint64(bal.PrepaidAmount))
	return b.Put(idKey(id), buf[:])
}

func getBalance(b *bolt.Bucket, id uuid.UUID) store.Balance {
	buf := b.Get(idKey(id))
	if buf == nil {
		return store.Balance{}
	}
	return store.Balance{
		Balance:       int64(binary.BigEndian.Uint64(buf[0:8])),
		PrepaidAmount: int64(binary.BigEndian.Uint64(buf[8:16])),
	}
}

func (s *Store) GetBalance(ctx context.Context, id uuid.UUID) (store.Balance, error) {
	var bal store.Balance
	err := s.db.View(func(tx *bolt.Tx) error {
		bal = getBalance(tx.Bucket(bucketBalances), id)
		return nil
	})
	return bal, err
}

func (s *Store) Reserve(ctx context.Context, id uuid.UUID, amount uint64, minBalance int64) (store.Balance, error) {
	var out store.Balance
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBalances)
		cur := getBalance(b, id)
		next := store.Balance{Balance: cur.Balance - int64(amount), PrepaidAmount: cur.PrepaidAmount}
		if next.EffectiveBalance() < minBalance {
			out = cur
			return store.ErrInsufficientBalance
		}
		out = next
		return putBalance(b, id, next)
	})
	return out, err
}

func (s *Store) Credit(ctx context.Context, id uuid.UUID, amount uint64) (store.Balance, error) {
	var out store.Balance
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBalances)
		cur := getBalance(b, id)
		cur.Balance += int64(amount)
		out = cur
		return putBalance(b, id, cur)
	})
	return out, err
}

func (s *Store) Rollback(ctx context.Context, id uuid.UUID, amount uint64) (store.Balance, error) {
	return s.Credit(ctx, id, amount)
}

// --- rate limits ---

type rateBucket struct {
	Total     uint64
	ExpiresAt int64
}

func rateKey(id uuid.UUID, dim store.RateLimitDimension) []byte {
	return []byte(id.String() + "/" + string(dim))
}

func (s *Store) Consume(ctx context.Context, id uuid.UUID, dim store.RateLimitDimension, amount, limit uint64, period time.Duration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRateLimits)
		key := rateKey(id, dim)
		now := time.Now()
		var rb rateBucket
		if raw := b.Get(key); raw != nil {
			json.Unmarshal(raw, &rb)
		}
		if rb.ExpiresAt == 0 || now.Unix() > rb.ExpiresAt {
			rb = rateBucket{Total: 0, ExpiresAt: now.Add(period).Unix()}
		}
		newTotal := rb.Total + amount
		if limit > 0 && newTotal > limit {
			return store.ErrRateLimited
		}
		rb.Total = newTotal
		buf, err := json.Marshal(rb)
		if err != nil {
			return err
		}
		return b.Put(key, buf)
	})
}

func (s *Store) Refund(ctx context.Context, id uuid.UUID, dim store.RateLimitDimension, amount uint64, period time.Duration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRateLimits)
		key := rateKey(id, dim)
		raw := b.Get(key)
		if raw == nil {
			return nil
		}
		var rb rateBucket
		if err := json.Unmarshal(raw, &rb); err != nil {
			return err
		}
		if time.Now().Unix() > rb.ExpiresAt {
			return nil
		}
		if amount >= rb.Total {
			rb.Total = 0
		} else {
			rb.Total -= amount
		}
		buf, err := json.Marshal(rb)
		if err != nil {
			return err
		}
		return b.Put(key, buf)
	})
}

// --- routes ---

func (s *Store) PutStaticRoute(ctx context.Context, prefix string, accountID uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStaticRoutes).Put([]byte(prefix), idKey(accountID))
	})
}

func (s *Store) DeleteStaticRoute(ctx context.Context, prefix string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStaticRoutes).Delete([]byte(prefix))
	})
}

func (s *Store) ListStaticRoutes(ctx context.Context) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStaticRoutes).ForEach(func(k, v []byte) error {
			id, err := uuid.FromBytes(v)
			if err != nil {
				return err
			}
			out[string(k)] = id
			return nil
		})
	})
	return out, err
}

func (s *Store) SetDefaultRoute(ctx context.Context, accountID uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyDefaultRoute, idKey(accountID))
	})
}

func (s *Store) GetDefaultRoute(ctx context.Context) (uuid.UUID, bool, error) {
	var id uuid.UUID
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keyDefaultRoute)
		if raw == nil {
			return nil
		}
		var err error
		id, err = uuid.FromBytes(raw)
		found = err == nil
		return err
	})
	return id, found, err
}

// --- idempotency / uncredited ---

func (s *Store) Get(ctx context.Context, key string) (store.IdempotencyRecord, bool, error) {
	var rec store.IdempotencyRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketIdempotency).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	return rec, found, err
}

func (s *Store) Put(ctx context.Context, key string, rec store.IdempotencyRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Put([]byte(key), buf)
	})
}

func (s *Store) GetUncredited(ctx context.Context, id uuid.UUID) (uint64, uint8, error) {
	var amount uint64
	var scale uint8
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketUncredited).Get(idKey(id))
		if raw == nil || len(raw) != 9 {
			return nil
		}
		amount = binary.BigEndian.Uint64(raw[:8])
		scale = raw[8]
		return nil
	})
	return amount, scale, err
}

func (s *Store) SetUncredited(ctx context.Context, id uuid.UUID, amount uint64, scale uint8) error {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint64(buf[:8], amount)
	buf[8] = scale
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUncredited).Put(idKey(id), buf)
	})
}

func idKey(id uuid.UUID) []byte {
	b := id
	return b[:]
}

var _ store.Store = (*Store)(nil)
