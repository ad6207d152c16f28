// Package economy integrates the ledger with the external economy service
// that holds user balances. The ledger never stores currency itself; every
// payout and debit is delegated through the Bridge.
package economy

import "context"

// Balance is a user's holdings as reported by the economy service.
type Balance struct {
	Cash int64 `json:"cash"`
	Bank int64 `json:"bank"`
}

// Total returns the combined cash and bank holdings.
func (b Balance) Total() int64 {
	return b.Cash + b.Bank
}

// Edit is a relative adjustment to a user's balance. Both deltas may be
// negative. Reason is recorded by the economy service for auditability.
type Edit struct {
	Cash   int64  `json:"cash"`
	Bank   int64  `json:"bank"`
	Reason string `json:"reason"`
}

// Bridge is the boundary to the external economy service. Implementations
// must treat every call as fallible: the service is remote and may be down.
type Bridge interface {
	// FetchBalance reads the current balance for a user in a guild.
	FetchBalance(ctx context.Context, guildID, userID string) (Balance, error)
	// EditBalance applies a relative adjustment to a user's balance.
	EditBalance(ctx context.Context, guildID, userID string, edit Edit) error
}
