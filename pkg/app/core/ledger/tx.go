package ledger

import "fmt"

// Tx stages ledger mutations for one Deal. Reads see staged values first,
// falling through to the committed store, so sufficiency checks observe the
// effect of earlier transfers in the same Deal. Nothing touches the backing
// KV until Commit, which applies every staged write in a single batch:
// a Deal either settles in full or leaves no trace.
type Tx struct {
	store    *Store
	balances map[string]uint64 // staged absolute balances, by balance key
	fills    map[string]uint64 // staged absolute fills, by order ID
	fees     map[string]uint64 // staged absolute fee pools, by asset
}

// Balance returns the effective balance inside the transaction.
func (tx *Tx) Balance(addr, asset string) uint64 {
	if v, ok := tx.balances[string(balanceKey(addr, asset))]; ok {
		return v
	}
	return tx.store.Balance(addr, asset)
}

// Filled returns the effective cumulative fill inside the transaction.
func (tx *Tx) Filled(orderID string) uint64 {
	if v, ok := tx.fills[orderID]; ok {
		return v
	}
	return tx.store.Filled(orderID)
}

// Credit stages a balance increment.
func (tx *Tx) Credit(addr, asset string, amount uint64) error {
	cur := tx.Balance(addr, asset)
	next := cur + amount
	if next < cur {
		return ErrBalanceOverflow
	}
	tx.balances[string(balanceKey(addr, asset))] = next
	return nil
}

// Debit stages a balance decrement, failing when the effective balance
// cannot cover it.
func (tx *Tx) Debit(addr, asset string, amount uint64) error {
	cur := tx.Balance(addr, asset)
	if cur < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, cur, amount)
	}
	tx.balances[string(balanceKey(addr, asset))] = cur - amount
	return nil
}

// AddFill stages a cumulative fill increment for an order.
func (tx *Tx) AddFill(orderID string, amount uint64) error {
	cur := tx.Filled(orderID)
	next := cur + amount
	if next < cur {
		return ErrBalanceOverflow
	}
	tx.fills[orderID] = next
	return nil
}

// AccrueFee stages a fee-pool increment for an asset.
func (tx *Tx) AccrueFee(asset string, amount uint64) error {
	cur, ok := tx.fees[asset]
	if !ok {
		cur = tx.store.FeePool(asset)
	}
	next := cur + amount
	if next < cur {
		return ErrBalanceOverflow
	}
	tx.fees[asset] = next
	return nil
}

// Commit applies all staged writes atomically. A Tx must not be reused
// after Commit.
func (tx *Tx) Commit() error {
	b := tx.store.kv.Batch()
	for key, v := range tx.balances {
		b.Set([]byte(key), encodeUint64(v))
	}
	for id, v := range tx.fills {
		b.Set(fillKey(id), encodeUint64(v))
	}
	for asset, v := range tx.fees {
		b.Set(feeKey(asset), encodeUint64(v))
	}
	return b.Commit()
}
