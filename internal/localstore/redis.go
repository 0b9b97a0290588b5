// Package localstore is the per-session durable storage of the kiosk: the
// identity used to restore a session and the in-flight payment state that
// must survive the gateway redirect.
package localstore

import (
	"context" // Request contexts
	"errors"  // Error matching
	"time"    // Key lifetime

	"kiosk_system/internal/domain" // Persisted models
	"kiosk_system/internal/utils"  // JSON cache helpers

	"github.com/redis/go-redis/v9" // Redis client
)

// Key names inside a session's keyspace
const (
	KeyTID            = "tid"              // Gateway transaction id
	KeyPartnerOrderID = "partner_order_id" // Our order id
	KeyOrderDetails   = "orderDetails"     // Frozen cart, JSON
	KeyReceipt        = "receipt"          // Unacknowledged receipt, JSON
	KeyIdentity       = "identity"         // Identity for session restore, JSON
)

// Store is implemented by both backends
type Store interface {
	SaveIdentity(ctx context.Context, sid string, id domain.Identity) error
	LoadIdentity(ctx context.Context, sid string) (*domain.Identity, error)
	DeleteIdentity(ctx context.Context, sid string) error
	SavePending(ctx context.Context, sid string, tx domain.Transaction) error
	LoadPending(ctx context.Context, sid string) (*domain.Transaction, error)
	TakeIdentifiers(ctx context.Context, sid string) (tid, partnerOrderID string, err error)
	LoadOrderDetails(ctx context.Context, sid string) (*domain.OrderDetails, error)
	SaveReceipt(ctx context.Context, sid string, r domain.Receipt) error
	LoadReceipt(ctx context.Context, sid string) (*domain.Receipt, error)
	ClearTransaction(ctx context.Context, sid string) error
}

var (
	_ Store = (*Redis)(nil)
	_ Store = (*Memory)(nil)
)

// Key builds the Redis key for name in session sid
func Key(sid, name string) string {
	return "kiosk:session:" + sid + ":" + name
}

// Redis stores session state in Redis; every key expires after ttl
type Redis struct {
	rdb redis.Cmdable // Redis client or pipeline
	ttl time.Duration // Applied to every write
}

// NewRedis creates a store; ttl bounds how long an abandoned session lingers
func NewRedis(rdb redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// SaveIdentity persists the identity for session restore
func (s *Redis) SaveIdentity(ctx context.Context, sid string, id domain.Identity) error {
	return utils.SetCache(ctx, s.rdb, Key(sid, KeyIdentity), id, s.ttl)
}

// LoadIdentity returns nil when nothing is stored
func (s *Redis) LoadIdentity(ctx context.Context, sid string) (*domain.Identity, error) {
	var id domain.Identity
	found, err := utils.GetCache(ctx, s.rdb, Key(sid, KeyIdentity), &id)
	if err != nil || !found {
		return nil, err
	}
	return &id, nil
}

// DeleteIdentity forgets the session identity
func (s *Redis) DeleteIdentity(ctx context.Context, sid string) error {
	return utils.DeleteCache(ctx, s.rdb, Key(sid, KeyIdentity))
}

// SavePending writes tid, partner_order_id and orderDetails in one MULTI
func (s *Redis) SavePending(ctx context.Context, sid string, tx domain.Transaction) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, Key(sid, KeyTID), tx.GatewayTransactionID, s.ttl)
		pipe.Set(ctx, Key(sid, KeyPartnerOrderID), tx.PartnerOrderID, s.ttl)
		return utils.SetCache(ctx, pipe, Key(sid, KeyOrderDetails), tx.OrderDetails, s.ttl)
	})
	return err
}

// LoadPending returns the in-flight transaction, or nil if either identifier is missing
func (s *Redis) LoadPending(ctx context.Context, sid string) (*domain.Transaction, error) {
	vals, err := s.rdb.MGet(ctx, Key(sid, KeyTID), Key(sid, KeyPartnerOrderID)).Result()
	if err != nil {
		return nil, err
	}
	tid, _ := vals[0].(string)  // nil when missing
	poid, _ := vals[1].(string) // nil when missing
	if tid == "" || poid == "" {
		return nil, nil // Half a pair is no transaction
	}
	details, err := s.LoadOrderDetails(ctx, sid)
	if err != nil {
		return nil, err
	}
	tx := &domain.Transaction{GatewayTransactionID: tid, PartnerOrderID: poid, Status: domain.StatusPending}
	if details != nil {
		tx.OrderDetails = *details
	}
	return tx, nil
}

// TakeIdentifiers atomically reads and deletes tid and partner_order_id.
// Exactly one caller observes a given pair.
func (s *Redis) TakeIdentifiers(ctx context.Context, sid string) (string, string, error) {
	var tidCmd, poidCmd *redis.StringCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		tidCmd = pipe.GetDel(ctx, Key(sid, KeyTID))             // Read and delete
		poidCmd = pipe.GetDel(ctx, Key(sid, KeyPartnerOrderID)) // in the same MULTI
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", "", err
	}
	tid, err := optional(tidCmd)
	if err != nil {
		return "", "", err
	}
	poid, err := optional(poidCmd)
	if err != nil {
		return "", "", err
	}
	return tid, poid, nil
}

func optional(cmd *redis.StringCmd) (string, error) {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// LoadOrderDetails returns the frozen cart, nil if absent
func (s *Redis) LoadOrderDetails(ctx context.Context, sid string) (*domain.OrderDetails, error) {
	var details domain.OrderDetails
	found, err := utils.GetCache(ctx, s.rdb, Key(sid, KeyOrderDetails), &details)
	if err != nil || !found {
		return nil, err
	}
	return &details, nil
}

// SaveReceipt keeps the receipt until it is acknowledged
func (s *Redis) SaveReceipt(ctx context.Context, sid string, r domain.Receipt) error {
	return utils.SetCache(ctx, s.rdb, Key(sid, KeyReceipt), r, s.ttl)
}

// LoadReceipt returns nil when no unacknowledged receipt exists
func (s *Redis) LoadReceipt(ctx context.Context, sid string) (*domain.Receipt, error) {
	var r domain.Receipt
	found, err := utils.GetCache(ctx, s.rdb, Key(sid, KeyReceipt), &r)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

// ClearTransaction deletes every payment key of the session
func (s *Redis) ClearTransaction(ctx context.Context, sid string) error {
	return utils.DeleteCache(ctx, s.rdb,
		Key(sid, KeyTID),
		Key(sid, KeyPartnerOrderID),
		Key(sid, KeyOrderDetails),
		Key(sid, KeyReceipt),
	)
}
