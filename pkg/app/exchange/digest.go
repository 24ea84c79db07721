package exchange

import (
	"encoding/binary"
	"hash"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// StateDigest returns a Keccak-256 commitment over balances, open orders,
// holdings and the trade log. Two exchanges that went through the same
// operations produce the same digest.
func (e *Exchange) StateDigest() common.Hash {
	e.ledgerMu.RLock()
	defer e.ledgerMu.RUnlock()
	e.engineMu.RLock()
	defer e.engineMu.RUnlock()

	h := sha3.NewLegacyKeccak256()

	users := e.ledger.Users()
	putInt(h, int64(len(users)))
	for _, u := range users {
		b, _ := e.ledger.Balance(u)
		putString(h, u)
		putInt(h, b)
	}

	orders := e.ledger.OpenOrders()
	putInt(h, int64(len(orders)))
	for _, o := range orders {
		putInt(h, o.ID)
		putString(h, o.UserID)
		putInt(h, int64(o.Side))
		putString(h, o.Symbol)
		putInt(h, o.Price)
		putInt(h, o.Quantity)
	}

	holders := e.engine.Holders()
	putInt(h, int64(len(holders)))
	for _, u := range holders {
		holdings := e.engine.Holdings(u)
		symbols := make([]string, 0, len(holdings))
		for s := range holdings {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)

		putString(h, u)
		putInt(h, int64(len(symbols)))
		for _, s := range symbols {
			putString(h, s)
			putInt(h, holdings[s])
		}
	}

	trades := e.engine.Trades()
	putInt(h, int64(len(trades)))
	for _, t := range trades {
		putString(h, t.Symbol)
		putInt(h, t.Price)
		putInt(h, t.Quantity)
		putInt(h, t.BuyOrderID)
		putInt(h, t.SellOrderID)
	}

	return common.BytesToHash(h.Sum(nil))
}

func putInt(h hash.Hash, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}

// length-prefixed so adjacent strings cannot collide
func putString(h hash.Hash, s string) {
	putInt(h, int64(len(s)))
	h.Write([]byte(s))
}
