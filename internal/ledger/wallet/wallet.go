// Package wallet tracks per-identity ownership of celery ids.
package wallet

import (
	"sort"

	apperrors "github.com/artunion/celerychain/internal/platform/errors"
)

// ErrNotOwner indicates an ownership precondition failed.
var ErrNotOwner = apperrors.New(apperrors.CodeNotOwner, "wallet does not own celery")

// Wallet holds the celery ids owned by one identity. OwnedCeleries has set
// semantics and stays sorted for stable rendering.
type Wallet struct {
	ID            string `json:"id"`
	OwnedCeleries []int  `json:"ownedCeleries"`
}

// Owns reports whether the wallet contains the celery id.
func (w Wallet) Owns(celeryID int) bool {
	for _, id := range w.OwnedCeleries {
		if id == celeryID {
			return true
		}
	}
	return false
}

// Book is the ownership registry, keyed by identity. Wallets are created
// lazily the first time an identity needs to hold a celery and never deleted.
type Book map[string]Wallet

// NewBook provisions a registry with the two a-priori wallets: the ledger's
// root identity, pre-seeded with the genesis celery, and the empty custodial
// wallet that receives exchanged celeries.
func NewBook(rootID, custodialID string) Book {
	book := Book{
		rootID:      {ID: rootID, OwnedCeleries: []int{0}},
		custodialID: {ID: custodialID, OwnedCeleries: []int{}},
	}
	return book
}

// Ensure returns the wallet for id, creating an empty one if absent.
func (b Book) Ensure(id string) Wallet {
	if w, ok := b[id]; ok {
		return w
	}
	w := Wallet{ID: id, OwnedCeleries: []int{}}
	b[id] = w
	return w
}

// AddCelery adds celeryID to the identified wallet with set semantics,
// creating the wallet if absent. Adding an id twice is a no-op.
func (b Book) AddCelery(walletID string, celeryID int) {
	w := b.Ensure(walletID)
	if w.Owns(celeryID) {
		return
	}
	w.OwnedCeleries = append(w.OwnedCeleries, celeryID)
	sort.Ints(w.OwnedCeleries)
	b[walletID] = w
}

// RemoveCelery deletes celeryID from the identified wallet if present.
func (b Book) RemoveCelery(walletID string, celeryID int) {
	w, ok := b[walletID]
	if !ok {
		return
	}
	for i, id := range w.OwnedCeleries {
		if id == celeryID {
			w.OwnedCeleries = append(w.OwnedCeleries[:i], w.OwnedCeleries[i+1:]...)
			b[walletID] = w
			return
		}
	}
}

// Transfer moves celeryID from one wallet to another. It fails with
// ErrNotOwner when the source wallet does not contain the id; on success the
// id is removed from the source and idempotently added to the destination,
// so the single-owner invariant is preserved.
func (b Book) Transfer(fromID, toID string, celeryID int) error {
	from, ok := b[fromID]
	if !ok || !from.Owns(celeryID) {
		return apperrors.WithMetadata(apperrors.CodeNotOwner, "wallet does not own celery", map[string]string{
			"wallet_id": fromID,
		})
	}
	b.RemoveCelery(fromID, celeryID)
	b.AddCelery(toID, celeryID)
	return nil
}

// OwnerOf returns the identity owning celeryID, if any.
func (b Book) OwnerOf(celeryID int) (string, bool) {
	for id, w := range b {
		if w.Owns(celeryID) {
			return id, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the registry. Mutating operations work on a
// clone and commit it only after persistence succeeds.
func (b Book) Clone() Book {
	clone := make(Book, len(b))
	for id, w := range b {
		owned := make([]int, len(w.OwnedCeleries))
		copy(owned, w.OwnedCeleries)
		clone[id] = Wallet{ID: w.ID, OwnedCeleries: owned}
	}
	return clone
}

// Payout maps a rarity tier to the exchange credit amount. Tiers one through
// four pay fixed amounts; five and up scale linearly.
func Payout(rarityTier int) int64 {
	switch {
	case rarityTier <= 0:
		return 0
	case rarityTier <= 4:
		return int64(rarityTier) * 10
	default:
		return 50 + 10*int64(rarityTier)
	}
}
