package main

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/assessor"
	"github.com/mandi-labs/onboard-cli/internal/engine"
	"github.com/mandi-labs/onboard-cli/internal/escalation"
	"github.com/mandi-labs/onboard-cli/internal/oracle"
	"github.com/mandi-labs/onboard-cli/internal/resolver"
	"github.com/mandi-labs/onboard-cli/internal/risk"
	"github.com/mandi-labs/onboard-cli/internal/store"
	anthropicpkg "github.com/mandi-labs/onboard-cli/pkg/anthropic"
	"github.com/mandi-labs/onboard-cli/pkg/calendly"
	sfpkg "github.com/mandi-labs/onboard-cli/pkg/salesforce"
)

// onboardEnv holds the migrated store and fully wired engine shared by the
// serve, session, score, and import commands.
type onboardEnv struct {
	Store  store.Store
	Engine *engine.Engine
}

// Close releases resources held by the environment.
func (oe *onboardEnv) Close() {
	if oe.Store != nil {
		_ = oe.Store.Close()
	}
}

// initEngine sets up the store, the judgment client, and all engine
// collaborators. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*onboardEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	judge := oracle.New(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic, cfg.Oracle)

	var catalog *resolver.Catalog
	if cfg.Resolver.CatalogPath != "" {
		catalog, err = resolver.LoadCatalog(cfg.Resolver.CatalogPath)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load requirement catalog")
		}
		zap.L().Info("requirement catalog loaded", zap.String("path", cfg.Resolver.CatalogPath))
	}

	res, err := resolver.New(judge, catalog)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init resolver")
	}

	// Calendly is optional — without it, escalations fall back to
	// response-window messages instead of booking links.
	var scheduler escalation.Scheduler
	if cfg.Calendly.Token != "" && cfg.Calendly.EventType != "" {
		client := calendly.NewClient(cfg.Calendly.Token, calendly.WithBaseURL(cfg.Calendly.BaseURL))
		scheduler = escalation.NewCalendlyScheduler(client, cfg.Calendly.EventType)
		zap.L().Info("calendly verification booking enabled")
	} else {
		zap.L().Debug("ONBOARD_CALENDLY_TOKEN not set, verification booking disabled")
	}

	eng := engine.New(
		st,
		res,
		assessor.New(judge, cfg.Session),
		risk.New(judge, cfg.Session),
		escalation.New(scheduler),
		judge,
	)

	return &onboardEnv{Store: st, Engine: eng}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.Path
		if dsn == "" {
			dsn = "onboard.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (ONBOARD_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}
