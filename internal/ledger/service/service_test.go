package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/artunion/celerychain/internal/economy"
	"github.com/artunion/celerychain/internal/ledger/chain"
	"github.com/artunion/celerychain/internal/namegen"
	apperrors "github.com/artunion/celerychain/internal/platform/errors"
	"github.com/artunion/celerychain/internal/storage"
	"github.com/artunion/celerychain/internal/telemetry"
)

type memStore struct {
	snap     storage.Snapshot
	saved    bool
	failSave bool
	events   []storage.TelemetryEvent
}

func (m *memStore) Load(context.Context) (storage.Snapshot, error) {
	if !m.saved {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	return m.snap, nil
}

func (m *memStore) Save(_ context.Context, snap storage.Snapshot) error {
	if m.failSave {
		return errors.New("disk detached")
	}
	m.snap = snap
	m.saved = true
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) AppendTelemetryEvent(_ context.Context, evt storage.TelemetryEvent) error {
	m.events = append(m.events, evt)
	return nil
}

type fakeBridge struct {
	balance    economy.Balance
	balanceErr error
	editErr    error
	edits      []economy.Edit
}

func (f *fakeBridge) FetchBalance(context.Context, string, string) (economy.Balance, error) {
	return f.balance, f.balanceErr
}

func (f *fakeBridge) EditBalance(_ context.Context, _, _ string, edit economy.Edit) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, edit)
	return nil
}

func testConfig() Config {
	return Config{
		Marker:         "celery",
		RarityCap:      1,
		CandidateSlack: 2,
		RenameCost:     10,
		RootID:         "root",
		CustodialID:    "vault",
	}
}

// newTestService wires a service over an in-memory store with a forced
// uniform draw. draw 1.0 accepts every candidate; draw below the rejection
// band rejects.
func newTestService(t *testing.T, bridge *fakeBridge, draw float64) (*Service, *memStore) {
	t.Helper()

	store := &memStore{}
	svc, err := New(testConfig(), Deps{
		Store:  store,
		Bridge: bridge,
		Names:  namegen.NewPhonetic(1),
		Scorer: chain.NewScorerWithDraw(func() float64 { return draw }),
		Seed:   1,
	})
	if err != nil {
		t.Fatalf("expected service, got %v", err)
	}
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("expected init to succeed, got %v", err)
	}
	return svc, store
}

// mintOne forces a successful mint and returns the new entry.
func mintOne(t *testing.T, svc *Service, authorID string) chain.Entry {
	t.Helper()

	outcome, err := svc.SubmitCandidates(context.Background(), "celery", authorID, 12)
	if err != nil {
		t.Fatalf("expected submission to succeed, got %v", err)
	}
	if !outcome.Minted {
		t.Fatalf("expected a mint, got %+v", outcome)
	}
	return outcome.Entry
}

// TestConfigValidate verifies the configuration invariants.
func TestConfigValidate(t *testing.T) {
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	broken := map[string]func(*Config){
		"blank marker":        func(c *Config) { c.Marker = " " },
		"zero rarity cap":     func(c *Config) { c.RarityCap = 0 },
		"zero slack":          func(c *Config) { c.CandidateSlack = 0 },
		"zero rename cost":    func(c *Config) { c.RenameCost = 0 },
		"blank root":          func(c *Config) { c.RootID = "" },
		"blank custodial":     func(c *Config) { c.CustodialID = "" },
		"root equals custody": func(c *Config) { c.CustodialID = "root" },
	}
	for name, mutate := range broken {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected %s to fail validation", name)
		}
	}
}

// TestInitSelfHealsGenesis verifies a fresh deployment initializes and
// persists the genesis chain and a-priori wallets.
func TestInitSelfHealsGenesis(t *testing.T) {
	svc, store := newTestService(t, &fakeBridge{}, 1)

	entry, err := svc.GetCelery(0)
	if err != nil {
		t.Fatalf("expected genesis entry, got %v", err)
	}
	if entry.Block.Name != chain.GenesisName || entry.Block.ID != 0 {
		t.Fatalf("unexpected genesis block %+v", entry.Block)
	}
	if got := svc.ListOwned("root"); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("expected root to own the genesis celery, got %v", got)
	}
	if !store.saved {
		t.Fatal("expected the genesis snapshot to be persisted")
	}
}

// TestInitRejectsTamperedChain verifies a snapshot with broken hash links
// fails verification instead of being served.
func TestInitRejectsTamperedChain(t *testing.T) {
	svc, store := newTestService(t, &fakeBridge{}, 1)
	mintOne(t, svc, "user-1")

	store.snap.Chain[1].Block.Minter = "intruder"

	fresh, err := New(testConfig(), Deps{
		Store:  store,
		Bridge: &fakeBridge{},
		Names:  namegen.NewPhonetic(1),
	})
	if err != nil {
		t.Fatalf("expected service, got %v", err)
	}
	if err := fresh.Init(context.Background()); !apperrors.IsCode(err, apperrors.CodeInternalInconsistency) {
		t.Fatalf("expected inconsistency from tampered chain, got %v", err)
	}
}

// TestSubmitCandidatesMints verifies a forced-accept submission grows the
// chain by one correctly linked block owned by the author.
func TestSubmitCandidatesMints(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)

	entry := mintOne(t, svc, "user-1")

	if entry.Block.ID != 1 {
		t.Fatalf("expected block id 1, got %d", entry.Block.ID)
	}
	prev, err := chain.Digest(chain.Genesis("root").Block)
	if err != nil {
		t.Fatalf("expected genesis digest, got %v", err)
	}
	if entry.Block.PreviousCelery != prev {
		t.Fatalf("expected previousCelery %s, got %s", prev, entry.Block.PreviousCelery)
	}
	if got := svc.ListOwned("user-1"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("expected user-1 to own celery 1, got %v", got)
	}
	if err := svc.Verify(); err != nil {
		t.Fatalf("expected chain to verify, got %v", err)
	}
}

// TestSubmitCandidatesBelowThreshold verifies a markerless message reports
// insufficiency without error or mutation.
func TestSubmitCandidatesBelowThreshold(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)

	outcome, err := svc.SubmitCandidates(context.Background(), "nothing to see here", "user-1", 0)
	if err != nil {
		t.Fatalf("expected submission to succeed, got %v", err)
	}
	if outcome.Minted {
		t.Fatal("expected no mint without marker tokens")
	}
	if outcome.Required != 1 || outcome.Accepted != 0 {
		t.Fatalf("expected required 1 accepted 0, got %+v", outcome)
	}
	if _, err := svc.GetCelery(1); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected chain to remain at genesis, got %v", err)
	}
}

// TestSubmitCandidatesRequiresAuthor verifies blank author ids are rejected.
func TestSubmitCandidatesRequiresAuthor(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)

	if _, err := svc.SubmitCandidates(context.Background(), "celery", "  ", 0); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

// TestGiveMovesOwnership verifies a transfer between identities, with the
// target wallet created lazily.
func TestGiveMovesOwnership(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)
	mintOne(t, svc, "user-1")

	if err := svc.Give(context.Background(), "user-1", "user-2", 1); err != nil {
		t.Fatalf("expected give to succeed, got %v", err)
	}
	if got := svc.ListOwned("user-1"); len(got) != 0 {
		t.Fatalf("expected user-1 to own nothing, got %v", got)
	}
	if got := svc.ListOwned("user-2"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("expected user-2 to own celery 1, got %v", got)
	}
}

// TestGiveRejectsNonOwner verifies a transfer from a non-owner fails and
// mutates nothing.
func TestGiveRejectsNonOwner(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)
	mintOne(t, svc, "user-1")

	if err := svc.Give(context.Background(), "user-2", "user-3", 1); !apperrors.IsCode(err, apperrors.CodeNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
	if got := svc.ListOwned("user-1"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("expected user-1 to still own celery 1, got %v", got)
	}
	if got := svc.ListOwned("user-3"); len(got) != 0 {
		t.Fatalf("expected user-3 to own nothing, got %v", got)
	}
}

// TestGiveCannotReachCustodialWallet verifies a give into the custodial
// wallet is rejected, so the owner's later exchange still pays out instead
// of tripping the already-exchanged guard.
func TestGiveCannotReachCustodialWallet(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)
	mintOne(t, svc, "user-1")

	if err := svc.Give(context.Background(), "user-1", "vault", 1); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if got := svc.ListOwned("vault"); len(got) != 0 {
		t.Fatalf("expected custodial wallet to stay empty, got %v", got)
	}

	amount, err := svc.Exchange(context.Background(), "user-1", 1, "guild-1")
	if err != nil {
		t.Fatalf("expected exchange to still succeed, got %v", err)
	}
	if amount < 10 {
		t.Fatalf("expected a payout, got %d", amount)
	}
}

// TestGiveCannotDrainCustodialWallet verifies exchanged celeries cannot be
// pulled back out through give.
func TestGiveCannotDrainCustodialWallet(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)
	mintOne(t, svc, "user-1")
	if _, err := svc.Exchange(context.Background(), "user-1", 1, "guild-1"); err != nil {
		t.Fatalf("expected exchange to succeed, got %v", err)
	}

	if err := svc.Give(context.Background(), "vault", "user-1", 1); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if got := svc.ListOwned("vault"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("expected custodial wallet to keep celery 1, got %v", got)
	}
}

// TestGiveRequiresIdentities verifies blank wallet ids are rejected without
// creating stray wallets.
func TestGiveRequiresIdentities(t *testing.T) {
	svc, store := newTestService(t, &fakeBridge{}, 1)
	mintOne(t, svc, "user-1")

	if err := svc.Give(context.Background(), "user-1", "  ", 1); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument for blank target, got %v", err)
	}
	if err := svc.Give(context.Background(), "", "user-2", 1); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument for blank source, got %v", err)
	}
	if got := svc.ListOwned("user-1"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("expected user-1 to still own celery 1, got %v", got)
	}
	if _, ok := store.snap.Wallets[""]; ok {
		t.Fatal("expected no wallet for the blank identity")
	}
}

// TestExchangeRequiresUserAuthor verifies blank and custodial author ids are
// rejected before any state moves.
func TestExchangeRequiresUserAuthor(t *testing.T) {
	bridge := &fakeBridge{}
	svc, _ := newTestService(t, bridge, 1)
	mintOne(t, svc, "user-1")

	if _, err := svc.Exchange(context.Background(), "", 1, "guild-1"); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument for blank author, got %v", err)
	}
	if _, err := svc.Exchange(context.Background(), "vault", 1, "guild-1"); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument for custodial author, got %v", err)
	}
	if len(bridge.edits) != 0 {
		t.Fatalf("expected no credits, got %+v", bridge.edits)
	}
}

// TestCustodialWalletCannotMint verifies the custodial identity is rejected
// as a mint author on both mint paths.
func TestCustodialWalletCannotMint(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)

	if _, err := svc.SubmitCandidates(context.Background(), "celery", "vault", 12); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument from submit, got %v", err)
	}
	if _, err := svc.MintDummy(context.Background(), "vault"); !apperrors.IsCode(err, apperrors.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument from dummy mint, got %v", err)
	}
	if _, err := svc.GetCelery(1); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected chain to remain at genesis, got %v", err)
	}
}

// TestGiveUnknownCelery verifies out-of-range ids report not found.
func TestGiveUnknownCelery(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)

	if err := svc.Give(context.Background(), "user-1", "user-2", 99); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// TestExchangeCreditsPayout verifies a successful exchange moves the celery
// to custody and credits the tier payout.
func TestExchangeCreditsPayout(t *testing.T) {
	bridge := &fakeBridge{}
	svc, _ := newTestService(t, bridge, 1)
	entry := mintOne(t, svc, "user-1")

	amount, err := svc.Exchange(context.Background(), "user-1", 1, "guild-1")
	if err != nil {
		t.Fatalf("expected exchange to succeed, got %v", err)
	}
	if want := int64(entry.Block.Rarity) * 10; amount != want {
		t.Fatalf("expected payout %d for rarity %d, got %d", want, entry.Block.Rarity, amount)
	}
	if len(bridge.edits) != 1 || bridge.edits[0].Cash != amount {
		t.Fatalf("expected one credit of %d, got %+v", amount, bridge.edits)
	}
	if got := svc.ListOwned("user-1"); len(got) != 0 {
		t.Fatalf("expected user-1 to own nothing after exchange, got %v", got)
	}
	if got := svc.ListOwned("vault"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("expected custodial wallet to hold celery 1, got %v", got)
	}
}

// TestExchangeTwiceIsGuarded verifies the idempotence guard on the custodial
// transfer.
func TestExchangeTwiceIsGuarded(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)
	mintOne(t, svc, "user-1")

	if _, err := svc.Exchange(context.Background(), "user-1", 1, "guild-1"); err != nil {
		t.Fatalf("expected first exchange to succeed, got %v", err)
	}
	if _, err := svc.Exchange(context.Background(), "user-1", 1, "guild-1"); !apperrors.IsCode(err, apperrors.CodeAlreadyExchanged) {
		t.Fatalf("expected already exchanged, got %v", err)
	}
}

// TestExchangeRollsBackOnBridgeFailure verifies the compensating transfer
// when the economy credit fails.
func TestExchangeRollsBackOnBridgeFailure(t *testing.T) {
	bridge := &fakeBridge{editErr: errors.New("economy offline")}
	svc, store := newTestService(t, bridge, 1)
	mintOne(t, svc, "user-1")

	if _, err := svc.Exchange(context.Background(), "user-1", 1, "guild-1"); !apperrors.IsCode(err, apperrors.CodeServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
	if got := svc.ListOwned("user-1"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("expected ownership to revert to user-1, got %v", got)
	}
	if got := svc.ListOwned("vault"); len(got) != 0 {
		t.Fatalf("expected custodial wallet to be empty after rollback, got %v", got)
	}
	if store.snap.Wallets["vault"].Owns(1) {
		t.Fatal("expected the rollback to be persisted")
	}
}

// TestMintDummyGuardsConsecutiveMints verifies the back-to-back dummy guard.
func TestMintDummyGuardsConsecutiveMints(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)

	entry, err := svc.MintDummy(context.Background(), "staff-1")
	if err != nil {
		t.Fatalf("expected dummy mint to succeed, got %v", err)
	}
	if entry.Block.Name != chain.DummyName || entry.DisplayName != chain.DummyName {
		t.Fatalf("expected dummy naming, got %+v", entry)
	}
	if got := svc.ListOwned("staff-1"); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("expected staff-1 to own celery 1, got %v", got)
	}

	if _, err := svc.MintDummy(context.Background(), "staff-1"); !apperrors.IsCode(err, apperrors.CodeConsecutiveDummyMint) {
		t.Fatalf("expected consecutive dummy guard, got %v", err)
	}

	// A regular mint in between re-arms the dummy mint.
	mintOne(t, svc, "user-1")
	if _, err := svc.MintDummy(context.Background(), "staff-1"); err != nil {
		t.Fatalf("expected dummy mint after a regular mint, got %v", err)
	}
}

// TestRenameDebitsAndCommits verifies the cash-first debit and the
// display-name change.
func TestRenameDebitsAndCommits(t *testing.T) {
	bridge := &fakeBridge{balance: economy.Balance{Cash: 25, Bank: 5}}
	svc, _ := newTestService(t, bridge, 1)
	mintOne(t, svc, "user-1")

	if err := svc.Rename(context.Background(), "user-1", 1, "Longbottom", "guild-1"); err != nil {
		t.Fatalf("expected rename to succeed, got %v", err)
	}
	if len(bridge.edits) != 1 {
		t.Fatalf("expected one debit, got %+v", bridge.edits)
	}
	if edit := bridge.edits[0]; edit.Cash != -10 || edit.Bank != 0 {
		t.Fatalf("expected a cash-only debit of 10, got %+v", edit)
	}

	entry, err := svc.GetCelery(1)
	if err != nil {
		t.Fatalf("expected entry, got %v", err)
	}
	if entry.DisplayName != "Longbottom" {
		t.Fatalf("expected renamed entry, got %q", entry.DisplayName)
	}
}

// TestRenameSplitsDebitAcrossBank verifies the combined cash+bank debit when
// cash alone cannot cover the fee.
func TestRenameSplitsDebitAcrossBank(t *testing.T) {
	bridge := &fakeBridge{balance: economy.Balance{Cash: 4, Bank: 20}}
	svc, _ := newTestService(t, bridge, 1)
	mintOne(t, svc, "user-1")

	if err := svc.Rename(context.Background(), "user-1", 1, "Split", "guild-1"); err != nil {
		t.Fatalf("expected rename to succeed, got %v", err)
	}
	if edit := bridge.edits[0]; edit.Cash != -4 || edit.Bank != -6 {
		t.Fatalf("expected a 4/6 split debit, got %+v", edit)
	}
}

// TestRenameRequiresFunds verifies the threshold check over cash plus bank.
func TestRenameRequiresFunds(t *testing.T) {
	bridge := &fakeBridge{balance: economy.Balance{Cash: 4, Bank: 5}}
	svc, _ := newTestService(t, bridge, 1)
	mintOne(t, svc, "user-1")

	err := svc.Rename(context.Background(), "user-1", 1, "Broke", "guild-1")
	if !apperrors.IsCode(err, apperrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if len(bridge.edits) != 0 {
		t.Fatalf("expected no debit, got %+v", bridge.edits)
	}
}

// TestRenameNeverTouchesBlock verifies the block is byte-identical across a
// rename; only the display name moves.
func TestRenameNeverTouchesBlock(t *testing.T) {
	bridge := &fakeBridge{balance: economy.Balance{Cash: 100}}
	svc, _ := newTestService(t, bridge, 1)
	before := mintOne(t, svc, "user-1")

	if err := svc.Rename(context.Background(), "user-1", 1, "Renamed", "guild-1"); err != nil {
		t.Fatalf("expected rename to succeed, got %v", err)
	}
	after, err := svc.GetCelery(1)
	if err != nil {
		t.Fatalf("expected entry, got %v", err)
	}
	if !reflect.DeepEqual(before.Block, after.Block) {
		t.Fatalf("expected block to be untouched, got %+v", after.Block)
	}
	if err := svc.Verify(); err != nil {
		t.Fatalf("expected chain to still verify, got %v", err)
	}
}

// TestRenameRejectsNonOwner verifies ownership gating before any economy
// call.
func TestRenameRejectsNonOwner(t *testing.T) {
	bridge := &fakeBridge{balance: economy.Balance{Cash: 100}}
	svc, _ := newTestService(t, bridge, 1)
	mintOne(t, svc, "user-1")

	if err := svc.Rename(context.Background(), "user-2", 1, "Stolen", "guild-1"); !apperrors.IsCode(err, apperrors.CodeNotOwner) {
		t.Fatalf("expected not owner, got %v", err)
	}
}

// TestRenameWhenBalanceQueryFails verifies bridge outages surface as
// service unavailability.
func TestRenameWhenBalanceQueryFails(t *testing.T) {
	bridge := &fakeBridge{balanceErr: errors.New("economy offline")}
	svc, _ := newTestService(t, bridge, 1)
	mintOne(t, svc, "user-1")

	if err := svc.Rename(context.Background(), "user-1", 1, "Offline", "guild-1"); !apperrors.IsCode(err, apperrors.CodeServiceUnavailable) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
}

// TestListOwnedUnknownIdentity verifies absent wallets read as empty.
func TestListOwnedUnknownIdentity(t *testing.T) {
	svc, _ := newTestService(t, &fakeBridge{}, 1)

	if got := svc.ListOwned("stranger"); len(got) != 0 {
		t.Fatalf("expected empty ownership, got %v", got)
	}
}

// TestTelemetryJournal verifies operations land in the telemetry journal
// when an emitter is wired.
func TestTelemetryJournal(t *testing.T) {
	store := &memStore{}
	svc, err := New(testConfig(), Deps{
		Store:     store,
		Bridge:    &fakeBridge{balance: economy.Balance{Cash: 100}},
		Names:     namegen.NewPhonetic(1),
		Telemetry: telemetry.NewEmitter(store),
		Scorer:    chain.NewScorerWithDraw(func() float64 { return 1 }),
	})
	if err != nil {
		t.Fatalf("expected service, got %v", err)
	}
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("expected init to succeed, got %v", err)
	}

	mintOne(t, svc, "user-1")
	if err := svc.Give(context.Background(), "user-1", "user-2", 1); err != nil {
		t.Fatalf("expected give to succeed, got %v", err)
	}

	if len(store.events) != 2 {
		t.Fatalf("expected 2 journal events, got %d", len(store.events))
	}
	if store.events[0].Kind != telemetry.KindMint || store.events[1].Kind != telemetry.KindGive {
		t.Fatalf("unexpected event kinds %+v", store.events)
	}
}
