// Package ledger holds the contract state: per-(address, asset) balances,
// per-order cumulative fills, per-asset fee pools, and the canceled-order
// bookkeeping. Everything lives behind a narrow KV interface so the backing
// store is pluggable (Pebble in production, in-memory in tests).
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aschplatform/aschex/pkg/storage"
)

var (
	// ErrInsufficientBalance is returned by debits that exceed the
	// current balance. Balances are never allowed to go negative.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBalanceOverflow is returned when a credit would overflow the
	// 64-bit balance.
	ErrBalanceOverflow = errors.New("balance overflow")
)

// Key prefixes. Values are 8-byte big-endian uint64 except the canceled-ID
// marker, which is a single byte.
const (
	prefixBalance  = "bal:"
	prefixFill     = "fil:"
	prefixFee      = "fee:"
	prefixCanceled = "cxl:"
	prefixSalt     = "slt:"
)

func balanceKey(addr, asset string) []byte { return []byte(prefixBalance + addr + ":" + asset) }
func fillKey(orderID string) []byte        { return []byte(prefixFill + orderID) }
func feeKey(asset string) []byte           { return []byte(prefixFee + asset) }
func canceledKey(addr, orderID string) []byte {
	return []byte(prefixCanceled + addr + ":" + orderID)
}
func saltKey(addr string) []byte { return []byte(prefixSalt + addr) }

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// Store is the persistent contract state. Reads never fail on missing keys;
// unknown balances, fills and fees are zero.
type Store struct {
	kv storage.KV
}

func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

func (s *Store) getUint64(key []byte) uint64 {
	raw, ok, err := s.kv.Get(key)
	if err != nil || !ok || len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// Balance returns the balance for (address, asset); zero for unknown keys.
func (s *Store) Balance(addr, asset string) uint64 {
	return s.getUint64(balanceKey(addr, asset))
}

// Filled returns the cumulative filled amount recorded for an order ID.
func (s *Store) Filled(orderID string) uint64 {
	return s.getUint64(fillKey(orderID))
}

// FeePool returns the accrued protocol fee for an asset.
func (s *Store) FeePool(asset string) uint64 {
	return s.getUint64(feeKey(asset))
}

// Credit increments a balance unconditionally (overflow excepted).
func (s *Store) Credit(addr, asset string, amount uint64) error {
	cur := s.Balance(addr, asset)
	next := cur + amount
	if next < cur {
		return ErrBalanceOverflow
	}
	return s.kv.Set(balanceKey(addr, asset), encodeUint64(next))
}

// Debit decrements a balance, failing when the balance cannot cover it.
func (s *Store) Debit(addr, asset string, amount uint64) error {
	cur := s.Balance(addr, asset)
	if cur < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, cur, amount)
	}
	return s.kv.Set(balanceKey(addr, asset), encodeUint64(cur-amount))
}

// IsCanceled reports whether the order ID was explicitly canceled by its
// owner. Cancellations are scoped per address so one account cannot
// invalidate another's orders.
func (s *Store) IsCanceled(addr, orderID string) bool {
	_, ok, err := s.kv.Get(canceledKey(addr, orderID))
	return err == nil && ok
}

// MarkCanceled records explicit order-ID cancellations for addr atomically.
func (s *Store) MarkCanceled(addr string, orderIDs []string) error {
	b := s.kv.Batch()
	for _, id := range orderIDs {
		b.Set(canceledKey(addr, id), []byte{1})
	}
	return b.Commit()
}

// SaltWatermark returns the highest canceled salt for an address. Orders
// with salt at or below the watermark are invalid.
func (s *Store) SaltWatermark(addr string) uint32 {
	return uint32(s.getUint64(saltKey(addr)))
}

// SetSaltWatermark raises the canceled-salt watermark for an address.
func (s *Store) SetSaltWatermark(addr string, salt uint32) error {
	return s.kv.Set(saltKey(addr), encodeUint64(uint64(salt)))
}

// Begin opens a deal-scoped transaction over the store.
func (s *Store) Begin() *Tx {
	return &Tx{
		store:    s,
		balances: make(map[string]uint64),
		fills:    make(map[string]uint64),
		fees:     make(map[string]uint64),
	}
}
