// Package ledger parses ledger command flags and composes the service
// entrypoint.
package ledger

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/artunion/celerychain/internal/api"
	"github.com/artunion/celerychain/internal/economy"
	"github.com/artunion/celerychain/internal/ledger/service"
	"github.com/artunion/celerychain/internal/namegen"
	entrypoint "github.com/artunion/celerychain/internal/platform/cmd"
	"github.com/artunion/celerychain/internal/random"
	"github.com/artunion/celerychain/internal/storage"
	storagebbolt "github.com/artunion/celerychain/internal/storage/bbolt"
	storagesqlite "github.com/artunion/celerychain/internal/storage/sqlite"
	"github.com/artunion/celerychain/internal/telemetry"
)

// Config holds ledger command configuration.
type Config struct {
	HTTPAddr       string `env:"CELERYCHAIN_HTTP_ADDR"        envDefault:":8080"`
	StorageDriver  string `env:"CELERYCHAIN_STORAGE_DRIVER"   envDefault:"bbolt"`
	DBPath         string `env:"CELERYCHAIN_DB_PATH"          envDefault:"data/ledger.db"`
	Marker         string `env:"CELERYCHAIN_MARKER"           envDefault:"celery"`
	RarityCap      int    `env:"CELERYCHAIN_RARITY_CAP"       envDefault:"5"`
	CandidateSlack int    `env:"CELERYCHAIN_CANDIDATE_SLACK"  envDefault:"2"`
	RenameCost     int64  `env:"CELERYCHAIN_RENAME_COST"      envDefault:"10"`
	RootWallet     string `env:"CELERYCHAIN_ROOT_WALLET"      envDefault:"root"`
	CustodyWallet  string `env:"CELERYCHAIN_CUSTODY_WALLET"   envDefault:"exchange-vault"`
	EconomyBaseURL string `env:"CELERYCHAIN_ECONOMY_BASE_URL" envDefault:"http://localhost:8090"`
	EconomyToken   string `env:"CELERYCHAIN_ECONOMY_TOKEN"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "ledger HTTP listen address")
	fs.StringVar(&cfg.StorageDriver, "storage-driver", cfg.StorageDriver, "snapshot storage driver (bbolt or sqlite)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "snapshot database path")
	fs.StringVar(&cfg.Marker, "marker", cfg.Marker, "candidate marker token")
	fs.IntVar(&cfg.RarityCap, "rarity-cap", cfg.RarityCap, "ceiling for the next-mint admission threshold")
	fs.IntVar(&cfg.CandidateSlack, "candidate-slack", cfg.CandidateSlack, "per-message candidate cap as a multiple of the current threshold")
	fs.Int64Var(&cfg.RenameCost, "rename-cost", cfg.RenameCost, "flat currency price of a rename")
	fs.StringVar(&cfg.EconomyBaseURL, "economy-base-url", cfg.EconomyBaseURL, "economy service base URL")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the ledger app and serves its HTTP surface until cancellation.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLedger, func(ctx context.Context) error {
		if err := serve(ctx, cfg); err != nil {
			return fmt.Errorf("serve ledger: %w", err)
		}
		return nil
	})
}

func serve(ctx context.Context, cfg Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close ledger store: %v", err)
		}
	}()

	bridge, err := economy.NewClient(cfg.EconomyBaseURL, cfg.EconomyToken)
	if err != nil {
		return fmt.Errorf("configure economy bridge: %w", err)
	}

	seed, err := random.NewSeed()
	if err != nil {
		return err
	}
	nameSeed, err := random.NewSeed()
	if err != nil {
		return err
	}

	svc, err := service.New(service.Config{
		Marker:         cfg.Marker,
		RarityCap:      cfg.RarityCap,
		CandidateSlack: cfg.CandidateSlack,
		RenameCost:     cfg.RenameCost,
		RootID:         cfg.RootWallet,
		CustodialID:    cfg.CustodyWallet,
	}, service.Deps{
		Store:     store,
		Bridge:    bridge,
		Names:     namegen.NewPhonetic(nameSeed),
		Telemetry: telemetry.NewEmitter(telemetryStore(store)),
		Seed:      seed,
	})
	if err != nil {
		return err
	}
	if err := svc.Init(ctx); err != nil {
		return fmt.Errorf("initialize ledger state: %w", err)
	}

	grant, err := api.LoadGrantConfigFromEnv(nil)
	if err != nil {
		// Dummy minting stays disabled; every other route still serves.
		log.Printf("dummy-mint grants disabled: %v", err)
		grant = api.GrantConfig{}
	}

	server, err := api.New(cfg.HTTPAddr, svc, grant)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

func openStore(cfg Config) (storage.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", "bbolt":
		return storagebbolt.Open(cfg.DBPath)
	case "sqlite":
		return storagesqlite.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// telemetryStore exposes the journal side of a store when the backend
// implements it.
func telemetryStore(store storage.Store) storage.TelemetryStore {
	if ts, ok := store.(storage.TelemetryStore); ok {
		return ts
	}
	return nil
}
