package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/ha-billing/internal/adapters/checkout"
	"github.com/bnema/ha-billing/internal/adapters/opener"
	"github.com/bnema/ha-billing/internal/adapters/pricefeed"
	statusadapter "github.com/bnema/ha-billing/internal/adapters/render/status"
	redisstore "github.com/bnema/ha-billing/internal/adapters/store/redis"
	sqlitestore "github.com/bnema/ha-billing/internal/adapters/store/sqlite"
	tomlstore "github.com/bnema/ha-billing/internal/adapters/store/toml"
	chainlookup "github.com/bnema/ha-billing/internal/adapters/txlookup/chain"
	"github.com/bnema/ha-billing/internal/adapters/txlookup/explorer"
	"github.com/bnema/ha-billing/internal/adapters/txlookup/rpcnode"
	"github.com/bnema/ha-billing/internal/application"
	"github.com/bnema/ha-billing/internal/config"
	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/logging"
	"github.com/bnema/ha-billing/internal/metrics"
	"github.com/bnema/ha-billing/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	redisDialTimeout = 5 * time.Second
	sqliteStoreFile  = "billing.db"
)

type app struct {
	settings       config.Settings
	manager        *application.SubscriptionManager
	verifier       *application.PaymentVerifier
	configStore    *application.ConfigStore
	logger         zerolog.Logger
	registry       *prometheus.Registry
	statusRenderer func(statusadapter.Entitlement, statusadapter.RenderOptions) (string, error)
	startCallback  func(listenAddr string, ledger checkout.Ledger) (*checkout.CallbackServer, error)
	now            func() time.Time
	closers        []func() error
}

// commandWriter resolves the command output at write time so SetOut in tests
// still applies to things wired before Execute.
type commandWriter struct {
	cmd *cobra.Command
}

func (w commandWriter) Write(p []byte) (int, error) {
	return w.cmd.OutOrStdout().Write(p)
}

func wireApp(root *cobra.Command) (*app, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	workDir, err := os.Getwd()
	if err != nil {
		workDir = ""
	}

	settings, err := config.Load(viper.New(), homeDir, workDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.Init(logging.Config{
		Format: settings.Log.Format,
		Level:  settings.Log.Level,
		Output: os.Stderr,
	})

	a := &app{
		settings:       settings,
		logger:         logger,
		registry:       prometheus.NewRegistry(),
		statusRenderer: statusadapter.Render,
		startCallback:  checkout.StartCallbackServer,
		now:            time.Now,
	}

	store, err := a.openStore(homeDir)
	if err != nil {
		return nil, err
	}
	a.configStore = application.NewConfigStore(store)

	prices, err := newPriceFeed(settings)
	if err != nil {
		return nil, errors.Join(err, a.close())
	}

	lookup, err := a.newLookup()
	if err != nil {
		return nil, errors.Join(err, a.close())
	}

	a.verifier = application.NewPaymentVerifier(application.VerifierDeps{
		Store:         store,
		Config:        a.configStore,
		Chains:        domain.NewChainRegistry(settings.Verify.Explorers),
		Lookup:        lookup,
		Prices:        prices,
		Opener:        newOpener(settings, commandWriter{cmd: root}),
		Clock:         ports.SystemClock{},
		VerifyTimeout: settings.Verify.Timeout,
	})

	a.manager = application.NewSubscriptionManager(application.ManagerDeps{
		Store:              store,
		Verifier:           a.verifier,
		Clock:              ports.SystemClock{},
		Logger:             &a.logger,
		Metrics:            metrics.NewRecorder(a.registry),
		MaxVerificationAge: settings.Verify.Interval,
	})

	return a, nil
}

func (a *app) openStore(homeDir string) (ports.KeyValueStore, error) {
	switch a.settings.Store.Driver {
	case config.DriverSQLite:
		path := a.settings.Store.Path
		if path == "" {
			path = filepath.Join(filepath.Dir(config.DefaultPath(homeDir)), sqliteStoreFile)
		}
		store, err := sqlitestore.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("wire sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.DriverRedis:
		ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
		defer cancel()
		store, err := redisstore.Dial(ctx, a.settings.Store.RedisAddr, a.settings.Store.RedisPrefix)
		if err != nil {
			return nil, fmt.Errorf("wire redis store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		v := viper.New()
		if a.settings.Store.Path != "" {
			v.Set(tomlstore.StorePathKey, a.settings.Store.Path)
		}
		store, err := tomlstore.NewStore(v)
		if err != nil {
			return nil, fmt.Errorf("wire toml store: %w", err)
		}
		return store, nil
	}
}

func newPriceFeed(settings config.Settings) (ports.PriceFeed, error) {
	if settings.Price.Static != "" {
		static, err := pricefeed.NewStatic(map[string]string{"ETH": settings.Price.Static})
		if err != nil {
			return nil, fmt.Errorf("wire static price feed: %w", err)
		}
		return static, nil
	}

	feed := pricefeed.NewHTTPFeed(settings.Price.URL)
	feed.RequestTimeout = settings.Verify.Timeout
	return feed, nil
}

// newLookup answers from the explorer unless a JSON-RPC node is configured, in
// which case the node goes first and the explorer backs it up.
func (a *app) newLookup() (ports.TransactionLookup, error) {
	scan := explorer.New("")
	scan.RequestTimeout = a.settings.Verify.Timeout
	scan.KeySource = func(ctx context.Context) string {
		cfg, err := a.configStore.Load(ctx)
		if err != nil {
			return ""
		}
		return cfg.ExplorerAPIKey
	}

	if len(a.settings.Verify.RPC) == 0 {
		return scan, nil
	}

	node := rpcnode.New(a.settings.Verify.RPC)
	a.closers = append(a.closers, func() error {
		node.Close()
		return nil
	})

	lookup, err := chainlookup.New(node, scan, a.logger)
	if err != nil {
		return nil, fmt.Errorf("wire transaction lookup: %w", err)
	}
	return lookup, nil
}

func newOpener(settings config.Settings, out io.Writer) ports.URLOpener {
	if !settings.Checkout.Browser {
		return opener.NewWriter(out)
	}
	return opener.NewDesktopWithPrintFallback(out)
}

func (a *app) initialize(ctx context.Context) error {
	if err := a.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize billing state: %w", err)
	}
	return nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
