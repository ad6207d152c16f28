// Package service exposes the ledger's operations behind a single-writer
// façade. The in-memory chain and wallet registry are the authoritative
// state; every mutation is serialized under one mutex, applied to a working
// copy, persisted, and only then committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/artunion/celerychain/internal/economy"
	"github.com/artunion/celerychain/internal/ledger/chain"
	"github.com/artunion/celerychain/internal/ledger/wallet"
	"github.com/artunion/celerychain/internal/namegen"
	apperrors "github.com/artunion/celerychain/internal/platform/errors"
	"github.com/artunion/celerychain/internal/storage"
	"github.com/artunion/celerychain/internal/telemetry"
)

// Config carries the ledger's tunables. All numeric fields are typed and
// validated up front so threshold comparisons never touch strings.
type Config struct {
	// Marker is the candidate token scanned for in submitted text.
	Marker string
	// RarityCap bounds the uniform draw for the next admission threshold.
	RarityCap int
	// CandidateSlack multiplies the current threshold to cap how many
	// candidates one message may score.
	CandidateSlack int
	// RenameCost is the flat currency price of a display-name change.
	RenameCost int64
	// RootID owns the genesis celery.
	RootID string
	// CustodialID is the reserved wallet that absorbs exchanged celeries.
	CustodialID string
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Marker) == "" {
		return fmt.Errorf("marker token is required")
	}
	if c.RarityCap < 1 {
		return fmt.Errorf("rarity cap must be at least 1, got %d", c.RarityCap)
	}
	if c.CandidateSlack < 1 {
		return fmt.Errorf("candidate slack must be at least 1, got %d", c.CandidateSlack)
	}
	if c.RenameCost < 1 {
		return fmt.Errorf("rename cost must be at least 1, got %d", c.RenameCost)
	}
	if strings.TrimSpace(c.RootID) == "" {
		return fmt.Errorf("root wallet id is required")
	}
	if strings.TrimSpace(c.CustodialID) == "" {
		return fmt.Errorf("custodial wallet id is required")
	}
	if c.RootID == c.CustodialID {
		return fmt.Errorf("root and custodial wallet ids must differ")
	}
	return nil
}

// Deps are the service's collaborators. Scorer and Minter default to seeded
// production instances when nil; tests inject deterministic ones.
type Deps struct {
	Store     storage.Store
	Bridge    economy.Bridge
	Names     namegen.Generator
	Telemetry *telemetry.Emitter
	Scorer    *chain.Scorer
	Minter    *chain.Minter
	Seed      int64
}

// MintOutcome reports the result of scoring one submitted message.
type MintOutcome struct {
	Minted   bool                     `json:"minted"`
	Entry    chain.Entry              `json:"entry,omitzero"`
	Accepted int                      `json:"accepted"`
	Required int                      `json:"required"`
	Records  []chain.ValidationRecord `json:"records,omitempty"`
}

// Service is the single authoritative writer over the chain and wallets.
type Service struct {
	cfg    Config
	store  storage.Store
	bridge economy.Bridge
	names  namegen.Generator
	events *telemetry.Emitter
	scorer *chain.Scorer
	minter *chain.Minter
	tracer trace.Tracer

	mu sync.Mutex
	// chain and book are only read or replaced while holding mu.
	chain []chain.Entry
	book  wallet.Book
}

// New creates a Service. Call Init before serving operations.
func New(cfg Config, deps Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate ledger config: %w", err)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("economy bridge is required")
	}
	if deps.Names == nil {
		return nil, fmt.Errorf("name generator is required")
	}

	scorer := deps.Scorer
	if scorer == nil {
		scorer = chain.NewScorer(deps.Seed)
	}
	minter := deps.Minter
	if minter == nil {
		minter = chain.NewMinter(cfg.RarityCap, deps.Seed+1)
	}
	return &Service{
		cfg:    cfg,
		store:  deps.Store,
		bridge: deps.Bridge,
		names:  deps.Names,
		events: deps.Telemetry,
		scorer: scorer,
		minter: minter,
		tracer: otel.Tracer("celerychain/ledger"),
	}, nil
}

// Init loads the persisted snapshot into memory. A fresh deployment is
// self-healing: when nothing was saved yet, Init writes the genesis chain
// and the a-priori wallets. A snapshot that fails chain verification is
// rejected rather than silently served.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		snap = storage.Snapshot{
			Chain:   []chain.Entry{chain.Genesis(s.cfg.RootID)},
			Wallets: wallet.NewBook(s.cfg.RootID, s.cfg.CustodialID),
		}
		if err := s.store.Save(ctx, snap); err != nil {
			return fmt.Errorf("persist genesis snapshot: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load ledger snapshot: %w", err)
	}

	if err := chain.Verify(snap.Chain); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalInconsistency, "persisted chain failed verification", err)
	}
	if snap.Wallets == nil {
		snap.Wallets = wallet.NewBook(s.cfg.RootID, s.cfg.CustodialID)
	}

	s.chain = snap.Chain
	s.book = wallet.Book(snap.Wallets)
	return nil
}

// SubmitCandidates scores the marker tokens in text and mints a new celery
// when enough of them pass the admission draw. Non-minting submissions are
// not errors; the outcome reports how close the message came.
func (s *Service) SubmitCandidates(ctx context.Context, text, authorID string, contextSize int) (MintOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.SubmitCandidates")
	defer span.End()

	if err := s.validMinter(authorID); err != nil {
		return MintOutcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	required := s.tail().Block.MintReq
	candidates := ExtractCandidates(text, s.cfg.Marker)
	if contextSize < 1 {
		contextSize = ContextSize(text, s.cfg.Marker)
	}

	records := s.scorer.Score(candidates, contextSize, required*s.cfg.CandidateSlack)
	accepted := chain.Accepted(records)
	outcome := MintOutcome{
		Accepted: len(accepted),
		Required: required,
		Records:  records,
	}

	entry, ok, err := s.minter.TryMint(s.chain, authorID, s.names.Generate(namegen.Options{
		Syllables:  3,
		Complexity: len(accepted),
	}), accepted)
	if err != nil {
		return MintOutcome{}, err
	}
	if !ok {
		return outcome, nil
	}

	if err := s.commitMint(ctx, entry, authorID); err != nil {
		return MintOutcome{}, err
	}
	outcome.Minted = true
	outcome.Entry = entry
	return outcome, nil
}

// MintDummy appends a privileged synthetic block named "dummy" for authorID.
// The caller is responsible for the capability check. Two dummy mints may
// not land back to back.
func (s *Service) MintDummy(ctx context.Context, authorID string) (chain.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.MintDummy")
	defer span.End()

	if err := s.validMinter(authorID); err != nil {
		return chain.Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tail := s.tail()
	if tail.DisplayName == chain.DummyName {
		return chain.Entry{}, apperrors.New(apperrors.CodeConsecutiveDummyMint, "a dummy mint may not follow another dummy mint")
	}

	records, err := s.minter.SynthesizeRecords(tail.Block.MintReq, s.cfg.Marker)
	if err != nil {
		return chain.Entry{}, err
	}
	entry, ok, err := s.minter.TryMint(s.chain, authorID, chain.DummyName, records)
	if err != nil {
		return chain.Entry{}, err
	}
	if !ok {
		return chain.Entry{}, apperrors.New(apperrors.CodeInternalInconsistency, "synthesized records did not clear the admission threshold")
	}

	if err := s.commitMint(ctx, entry, authorID); err != nil {
		return chain.Entry{}, err
	}
	return entry, nil
}

// GetCelery returns the chain entry for id.
func (s *Service) GetCelery(id int) (chain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id < 0 || id >= len(s.chain) {
		return chain.Entry{}, apperrors.WithMetadata(apperrors.CodeNotFound, "celery not found", map[string]string{
			"celery_id": strconv.Itoa(id),
		})
	}
	return s.chain[id], nil
}

// ListOwned returns the celery ids held by identity, ascending. An identity
// without a wallet owns nothing; that is not an error.
func (s *Service) ListOwned(identity string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.book[identity]
	if !ok {
		return []int{}
	}
	owned := make([]int, len(w.OwnedCeleries))
	copy(owned, w.OwnedCeleries)
	return owned
}

// Give transfers celeryID from one identity to another. The custodial
// wallet takes part in exchanges only; it can neither give nor receive here,
// otherwise a give into it would poison the exchange idempotence guard and
// burn the owner's payout.
func (s *Service) Give(ctx context.Context, fromID, toID string, celeryID int) error {
	ctx, span := s.tracer.Start(ctx, "ledger.Give")
	defer span.End()

	if strings.TrimSpace(fromID) == "" || strings.TrimSpace(toID) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "both wallet ids are required")
	}
	if fromID == s.cfg.CustodialID || toID == s.cfg.CustodialID {
		return apperrors.New(apperrors.CodeInvalidArgument, "the custodial wallet only trades through exchange")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if celeryID < 0 || celeryID >= len(s.chain) {
		return apperrors.WithMetadata(apperrors.CodeNotFound, "celery not found", map[string]string{
			"celery_id": strconv.Itoa(celeryID),
		})
	}

	book := s.book.Clone()
	if err := book.Transfer(fromID, toID, celeryID); err != nil {
		return err
	}
	if err := s.persist(ctx, s.chain, book); err != nil {
		return err
	}
	s.book = book

	s.events.Emit(ctx, storage.TelemetryEvent{
		Kind:     telemetry.KindGive,
		Actor:    fromID,
		CeleryID: celeryID,
		Detail:   "to=" + toID,
	})
	return nil
}

// Exchange redeems celeryID for currency. The celery moves to the custodial
// wallet, the move is persisted, and only then is the payout credited via
// the economy bridge. A failed credit rolls the move back and reports the
// operation as retryable.
func (s *Service) Exchange(ctx context.Context, authorID string, celeryID int, guildID string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Exchange")
	defer span.End()

	if strings.TrimSpace(authorID) == "" || authorID == s.cfg.CustodialID {
		return 0, apperrors.New(apperrors.CodeInvalidArgument, "a user wallet id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if celeryID < 0 || celeryID >= len(s.chain) {
		return 0, apperrors.WithMetadata(apperrors.CodeNotFound, "celery not found", map[string]string{
			"celery_id": strconv.Itoa(celeryID),
		})
	}
	if s.book[s.cfg.CustodialID].Owns(celeryID) {
		return 0, apperrors.New(apperrors.CodeAlreadyExchanged, "celery has already been exchanged")
	}

	book := s.book.Clone()
	if err := book.Transfer(authorID, s.cfg.CustodialID, celeryID); err != nil {
		return 0, err
	}
	if err := s.persist(ctx, s.chain, book); err != nil {
		return 0, err
	}
	s.book = book

	amount := wallet.Payout(s.chain[celeryID].Block.Rarity)
	err := s.bridge.EditBalance(ctx, guildID, authorID, economy.Edit{
		Cash:   amount,
		Reason: fmt.Sprintf("celery %d exchange", celeryID),
	})
	if err != nil {
		// Compensate: the credit never happened, so the celery goes back.
		reverted := s.book.Clone()
		if revertErr := reverted.Transfer(s.cfg.CustodialID, authorID, celeryID); revertErr != nil {
			return 0, apperrors.Wrap(apperrors.CodeInternalInconsistency, "revert exchanged celery", revertErr)
		}
		if persistErr := s.persist(ctx, s.chain, reverted); persistErr != nil {
			return 0, apperrors.Wrap(apperrors.CodeInternalInconsistency, "persist exchange rollback", persistErr)
		}
		s.book = reverted
		return 0, apperrors.Wrap(apperrors.CodeServiceUnavailable, "economy credit failed, exchange rolled back", err)
	}

	s.events.Emit(ctx, storage.TelemetryEvent{
		Kind:     telemetry.KindExchange,
		Actor:    authorID,
		CeleryID: celeryID,
		Detail:   fmt.Sprintf("payout=%d", amount),
	})
	return amount, nil
}

// Rename sets a new display name on an owned celery for a flat fee. The
// block itself never changes. The debit lands before the name commit; a
// persistence failure after a successful debit is reported as an internal
// inconsistency for operator attention rather than silently retried.
func (s *Service) Rename(ctx context.Context, authorID string, celeryID int, newName, guildID string) error {
	ctx, span := s.tracer.Start(ctx, "ledger.Rename")
	defer span.End()

	if strings.TrimSpace(newName) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "new display name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if celeryID < 0 || celeryID >= len(s.chain) {
		return apperrors.WithMetadata(apperrors.CodeNotFound, "celery not found", map[string]string{
			"celery_id": strconv.Itoa(celeryID),
		})
	}
	if !s.book[authorID].Owns(celeryID) {
		return apperrors.WithMetadata(apperrors.CodeNotOwner, "wallet does not own celery", map[string]string{
			"wallet_id": authorID,
		})
	}

	balance, err := s.bridge.FetchBalance(ctx, guildID, authorID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeServiceUnavailable, "economy balance query failed", err)
	}
	if balance.Total() < s.cfg.RenameCost {
		return apperrors.WithMetadata(apperrors.CodeInsufficientFunds, "rename requires more funds", map[string]string{
			"required": strconv.FormatInt(s.cfg.RenameCost, 10),
			"balance":  strconv.FormatInt(balance.Total(), 10),
		})
	}

	edit := economy.Edit{Reason: fmt.Sprintf("celery %d rename", celeryID)}
	if balance.Cash >= s.cfg.RenameCost {
		edit.Cash = -s.cfg.RenameCost
	} else {
		edit.Cash = -balance.Cash
		edit.Bank = -(s.cfg.RenameCost - balance.Cash)
	}
	if err := s.bridge.EditBalance(ctx, guildID, authorID, edit); err != nil {
		return apperrors.Wrap(apperrors.CodeServiceUnavailable, "economy debit failed", err)
	}

	updated := make([]chain.Entry, len(s.chain))
	copy(updated, s.chain)
	updated[celeryID].DisplayName = newName
	if err := s.persist(ctx, updated, s.book); err != nil {
		return apperrors.Wrap(apperrors.CodeInternalInconsistency, "rename debited but could not be persisted", err)
	}
	s.chain = updated

	s.events.Emit(ctx, storage.TelemetryEvent{
		Kind:     telemetry.KindRename,
		Actor:    authorID,
		CeleryID: celeryID,
		Detail:   "name=" + newName,
	})
	return nil
}

// Verify recomputes the chain's hash links over the current snapshot.
func (s *Service) Verify() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return chain.Verify(s.chain)
}

// validMinter rejects identities that may not author a mint: blank ids and
// the custodial wallet, which holds celeries only through exchange.
func (s *Service) validMinter(authorID string) error {
	if strings.TrimSpace(authorID) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "author id is required")
	}
	if authorID == s.cfg.CustodialID {
		return apperrors.New(apperrors.CodeInvalidArgument, "the custodial wallet cannot mint")
	}
	return nil
}

// tail returns the last chain entry. The caller holds mu; Init guarantees a
// non-empty chain.
func (s *Service) tail() chain.Entry {
	return s.chain[len(s.chain)-1]
}

// commitMint appends entry, assigns ownership, persists both collections,
// and commits to memory. The caller holds mu.
func (s *Service) commitMint(ctx context.Context, entry chain.Entry, authorID string) error {
	updated := make([]chain.Entry, len(s.chain), len(s.chain)+1)
	copy(updated, s.chain)
	updated = append(updated, entry)

	book := s.book.Clone()
	book.AddCelery(authorID, entry.Block.ID)

	if err := s.persist(ctx, updated, book); err != nil {
		return err
	}
	s.chain = updated
	s.book = book

	s.events.Emit(ctx, storage.TelemetryEvent{
		Kind:     telemetry.KindMint,
		Actor:    authorID,
		CeleryID: entry.Block.ID,
		Detail:   fmt.Sprintf("rarity=%d name=%s", entry.Block.Rarity, entry.Block.Name),
	})
	return nil
}

func (s *Service) persist(ctx context.Context, entries []chain.Entry, book wallet.Book) error {
	err := s.store.Save(ctx, storage.Snapshot{Chain: entries, Wallets: book})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeServiceUnavailable, "persist ledger snapshot", err)
	}
	return nil
}

// ExtractCandidates returns one candidate token per case-insensitive
// occurrence of marker in text.
func ExtractCandidates(text, marker string) []string {
	if marker == "" {
		return nil
	}
	lowerText := strings.ToLower(text)
	lowerMarker := strings.ToLower(marker)

	candidates := make([]string, strings.Count(lowerText, lowerMarker))
	for i := range candidates {
		candidates[i] = lowerMarker
	}
	return candidates
}

// ContextSize counts the non-marker, non-whitespace runes in text. It is the
// fallback density denominator when the connector does not supply one.
func ContextSize(text, marker string) int {
	stripped := strings.ReplaceAll(strings.ToLower(text), strings.ToLower(marker), "")
	size := 0
	for _, r := range stripped {
		if !unicode.IsSpace(r) {
			size++
		}
	}
	return size
}
