package order

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Side is the order direction on the wire: bid buys base with quote,
// ask sells base for quote.
type Side uint8

const (
	Bid Side = 0
	Ask Side = 1
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Opposite returns the matching side.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// Order is a signed trading intent. All economic fields are covered by the
// canonical encoding; ID is the hex sha256 of that encoding, and Signature
// is an ed25519 signature over the same digest.
//
// Price is the exact rational PriceNume / 10^PriceDeno quote units per base
// unit. Amounts are integer base units.
type Order struct {
	ID           string `json:"id"`
	Contract     string `json:"contract"`
	Pair         string `json:"pair"`
	Side         Side   `json:"type"`
	Timestamp    uint32 `json:"timestamp"`
	PriceNume    uint32 `json:"priceNume"`
	PriceDeno    uint8  `json:"priceDeno"`
	Amount       uint64 `json:"amount,string"`
	FilledAmount uint64 `json:"filledAmount,string"`
	ExpiredAt    int64  `json:"expiredAt"`
	Salt         uint32 `json:"salt"`
	Address      string `json:"address"`
	PublicKey    string `json:"publicKey"`
	Signature    string `json:"signature"`
}

// Deal is a proposed settlement: one taker against an ordered maker list.
// TakeAmount caps how much of the taker's remaining amount this call may
// fill; PartialAmount, when positive, caps the last maker's fill below its
// remaining capacity. A Deal is transient and never persisted.
type Deal struct {
	TakerOrder    Order   `json:"takerOrder"`
	MakerOrders   []Order `json:"makerOrders"`
	TakeAmount    uint64  `json:"takeAmount,string"`
	PartialAmount uint64  `json:"partialAmount,string"`
}

// Result reports the realized fill totals of a settled Deal.
type Result struct {
	TotalDealQuote uint64 `json:"totalDealQuote,string"`
	TotalDealBase  uint64 `json:"totalDealBase,string"`
}

// EncodeSigned produces the canonical byte encoding of the order's economic
// fields. The layout is fixed by the chain wire format: big-endian, strings
// length-prefixed with a uint32. Signatures and order IDs both derive from
// exactly these bytes, so the encoding must never change.
func (o *Order) EncodeSigned() []byte {
	var buf bytes.Buffer
	writeIString(&buf, o.Contract)
	writeIString(&buf, o.Pair)
	buf.WriteByte(byte(o.Side))
	writeUint32(&buf, o.Timestamp)
	writeUint32(&buf, o.PriceNume)
	buf.WriteByte(o.PriceDeno)
	writeIString(&buf, strconv.FormatUint(o.Amount, 10))
	writeIString(&buf, strconv.FormatUint(o.FilledAmount, 10))
	writeUint32(&buf, o.Salt)
	writeIString(&buf, o.Address)
	return buf.Bytes()
}

// Digest returns the sha256 of the canonical encoding. This is the message
// the owner signs.
func (o *Order) Digest() [sha256.Size]byte {
	return sha256.Sum256(o.EncodeSigned())
}

// ComputeID returns the content-addressed order identifier.
func (o *Order) ComputeID() string {
	d := o.Digest()
	return hex.EncodeToString(d[:])
}

// Remaining returns the unfilled amount claimed by the signed fields.
// Orders with filledAmount beyond amount claim nothing.
func (o *Order) Remaining() uint64 {
	rem, err := CheckedSub(o.Amount, o.FilledAmount)
	if err != nil {
		return 0
	}
	return rem
}

func writeIString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// ParsePair splits a trading pair of the form "BASE/QUOTE".
func ParsePair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed pair %q", pair)
	}
	return parts[0], parts[1], nil
}
