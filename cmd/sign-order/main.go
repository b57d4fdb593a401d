package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aschplatform/aschex/pkg/app/core/order"
	"github.com/aschplatform/aschex/pkg/app/exchange"
	"github.com/aschplatform/aschex/pkg/crypto"
)

// sign-order builds a signed order from the command line and prints the
// JSON ready for POST /api/v1/deals. With no secret it generates a fresh
// keypair.
func main() {
	var (
		secret = flag.String("secret", "", "secret phrase to derive the keypair from (empty: generate)")
		pair   = flag.String("pair", "XAS/USDT", "trading pair BASE/QUOTE")
		side   = flag.String("side", "ask", "order side: bid or ask")
		nume   = flag.Uint("nume", 1, "price numerator")
		deno   = flag.Uint("deno", 0, "price denominator exponent (price = nume / 10^deno)")
		amount = flag.Uint64("amount", 100, "order amount in base units")
		salt   = flag.Uint("salt", 1, "order salt")
		expiry = flag.Int64("expiry", 0, "expiry as unix seconds, 0 for none")
	)
	flag.Parse()

	var signer *crypto.Signer
	var err error
	if *secret != "" {
		signer = crypto.FromSecret(*secret)
	} else {
		fmt.Println("Generating new keypair...")
		signer, err = crypto.GenerateKey()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	var s order.Side
	switch *side {
	case "bid":
		s = order.Bid
	case "ask":
		s = order.Ask
	default:
		fmt.Printf("Error: side must be bid or ask, got %q\n", *side)
		os.Exit(1)
	}

	o := order.Order{
		Contract:  exchange.Name,
		Pair:      *pair,
		Side:      s,
		Timestamp: uint32(time.Now().Unix()),
		PriceNume: uint32(*nume),
		PriceDeno: uint8(*deno),
		Amount:    *amount,
		ExpiredAt: *expiry,
		Salt:      uint32(*salt),
		Address:   signer.Address(),
		PublicKey: signer.PublicKeyHex(),
	}

	digest := o.Digest()
	sig, err := signer.SignDigest(digest[:])
	if err != nil {
		fmt.Printf("Error signing: %v\n", err)
		os.Exit(1)
	}
	o.Signature = hex.EncodeToString(sig)
	o.ID = o.ComputeID()

	fmt.Println("Order Details:")
	fmt.Printf("  Address: %s\n", o.Address)
	fmt.Printf("  Pair: %s\n", o.Pair)
	fmt.Printf("  Side: %s\n", o.Side)
	fmt.Printf("  Price: %d / 10^%d\n", o.PriceNume, o.PriceDeno)
	fmt.Printf("  Amount: %d\n", o.Amount)
	fmt.Printf("  ID: %s\n\n", o.ID)

	if !crypto.VerifyDigest(mustHex(o.PublicKey), digest[:], sig) {
		fmt.Println("signature self-check failed")
		os.Exit(1)
	}

	out, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Signed Order (JSON):")
	fmt.Println(string(out))
	fmt.Println()
	fmt.Println("Submit a deal containing this order:")
	fmt.Println("  POST http://localhost:8080/api/v1/deals")
	fmt.Println("  Content-Type: application/json")
	fmt.Println(`  Body: {"takerOrder": <order>, "makerOrders": [...], "takeAmount": "<n>"}`)
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return b
}
