// Command server runs the compliance decision engine: eligibility evaluation,
// transfer validation and execution, composite rules, onboarding, and the
// decision ledger behind one HTTP API. With no database configured it runs
// entirely on in-memory stores seeded with development fixtures.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custos/internal/eligibility"
	eligibilityhandler "custos/internal/eligibility/handler"
	eligibilitymetrics "custos/internal/eligibility/metrics"
	custoshttp "custos/internal/http"
	"custos/internal/ledger"
	ledgerhandler "custos/internal/ledger/handler"
	ledgermetrics "custos/internal/ledger/metrics"
	"custos/internal/onboarding"
	onboardinghandler "custos/internal/onboarding/handler"
	onboardingmetrics "custos/internal/onboarding/metrics"
	"custos/internal/platform/config"
	"custos/internal/platform/httpserver"
	"custos/internal/platform/kafka"
	"custos/internal/platform/logger"
	platformpostgres "custos/internal/platform/postgres"
	platformredis "custos/internal/platform/redis"
	"custos/internal/registry"
	"custos/internal/rules"
	ruleshandler "custos/internal/rules/handler"
	rulesmetrics "custos/internal/rules/metrics"
	"custos/internal/transfer"
	transferhandler "custos/internal/transfer/handler"
	transfermetrics "custos/internal/transfer/metrics"
	id "custos/pkg/domain"
	audit "custos/pkg/platform/audit"
	"custos/pkg/platform/audit/publisher"
	auditmemory "custos/pkg/platform/audit/store/memory"
	auditoutbox "custos/pkg/platform/audit/store/postgres"
	auditworker "custos/pkg/platform/audit/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -- storage --------------------------------------------------------------

	var (
		investorStore registry.InvestorStore
		fundStore     registry.FundStore
		assetStore    registry.AssetStore
		criteriaStore eligibility.CriteriaStore
		ledgerStore   ledger.Store
		holdingStore  transfer.HoldingStore
		rulesStore    transfer.RulesStore
		ruleStore     rules.Store
		onbStore      onboarding.Store
		auditStore    audit.Store
	)

	memoryMode := cfg.Database.URL == ""
	var outboxStore *auditoutbox.Store
	if memoryMode {
		log.Info("no database configured, running on in-memory stores")
		reg := registry.NewInMemory()
		criteria := eligibility.NewInMemoryStore()
		memLedger := ledger.NewInMemoryStore()
		holdings := transfer.NewInMemoryHoldingStore(memLedger)
		transferRules := transfer.NewInMemoryRulesStore()
		seedDev(reg, criteria, holdings, transferRules, log)

		investorStore, fundStore, assetStore = reg, reg, reg
		criteriaStore = criteria
		ledgerStore = memLedger
		holdingStore = holdings
		rulesStore = transferRules
		ruleStore = rules.NewInMemoryStore()
		onbStore = onboarding.NewInMemoryStore()
		auditStore = auditmemory.NewInMemoryStore()
	} else {
		db, err := platformpostgres.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		pool, err := platformpostgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		pgLedger := ledger.NewPostgresStore(pool)
		pgRegistry := registry.NewPostgres(db)

		investorStore, fundStore, assetStore = pgRegistry, pgRegistry, pgRegistry
		criteriaStore = eligibility.NewPostgresStore(db)
		ledgerStore = pgLedger
		holdingStore = transfer.NewPostgresHoldingStore(pool, pgLedger)
		rulesStore = transfer.NewPostgresRulesStore(db)
		ruleStore = rules.NewPostgresStore(db)
		onbStore = onboarding.NewPostgresStore(db)
		outboxStore = auditoutbox.New(db)
		auditStore = outboxStore
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		criteriaStore = eligibility.NewCachedCriteriaStore(
			criteriaStore, redisClient, cfg.Redis.CriteriaTTL, log)
		log.Info("criteria cache enabled", "ttl", cfg.Redis.CriteriaTTL)
	}

	// -- audit ----------------------------------------------------------------

	auditor := publisher.New(auditStore, publisher.WithLogger(log))

	if len(cfg.Kafka.Brokers) > 0 {
		if outboxStore == nil {
			log.Warn("kafka brokers configured without a database, audit relay disabled")
		} else {
			producer, err := kafka.NewProducer(ctx, cfg.Kafka.Brokers,
				auditoutbox.TopicForCategory(audit.CategoryCompliance),
				auditoutbox.TopicForCategory(audit.CategoryOperations),
			)
			if err != nil {
				return err
			}
			defer producer.Close()

			worker := auditworker.New(outboxStore, producer, log, cfg.Kafka.FlushInterval)
			go func() {
				if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("audit worker stopped", "error", err)
				}
			}()
			log.Info("audit relay running", "brokers", cfg.Kafka.Brokers)
		}
	}

	// -- services -------------------------------------------------------------

	ledgerService, err := ledger.NewService(ledgerStore, auditor, log, ledgermetrics.New())
	if err != nil {
		return err
	}

	engine := rules.NewEngine(cfg.Rules.LegacyVacuousFields)
	ruleService, err := rules.NewService(ruleStore, engine, log, rulesmetrics.New())
	if err != nil {
		return err
	}

	eligService, err := eligibility.NewService(
		investorStore, fundStore, criteriaStore, ledgerService, log, eligibilitymetrics.New())
	if err != nil {
		return err
	}

	transferService, err := transfer.NewService(
		investorStore, fundStore, assetStore, holdingStore, rulesStore,
		ruleService, eligService, ledgerService, auditor, log, transfermetrics.New())
	if err != nil {
		return err
	}

	onboardingService, err := onboarding.NewService(
		onbStore, investorStore, assetStore, eligService, holdingStore,
		ledgerService, auditor, log, onboardingmetrics.New())
	if err != nil {
		return err
	}

	// -- http -----------------------------------------------------------------

	router := custoshttp.NewRouter([]byte(cfg.Auth.JWTSigningKey), log,
		eligibilityhandler.New(eligService, log),
		transferhandler.New(transferService, log),
		ruleshandler.New(ruleService, log),
		onboardinghandler.New(onboardingService, log),
		ledgerhandler.New(ledgerService, log, cfg.Ledger.RecentLimit),
	)
	server := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDev loads development fixtures: one fund, one wrapped asset, criteria
// for professional investors, permissive transfer rules, and two investors
// with an initial holding.
func seedDev(
	reg *registry.InMemory,
	criteria *eligibility.InMemoryStore,
	holdings *transfer.InMemoryHoldingStore,
	transferRules *transfer.InMemoryRulesStore,
	log *slog.Logger,
) {
	now := time.Now().UTC()

	fund := &registry.FundStructure{
		ID:           id.NewFundStructureID(),
		Name:         "Meridian Growth Fund",
		LegalForm:    "RAIF",
		Jurisdiction: "LU",
	}
	reg.PutFundStructure(fund)

	fundID := fund.ID
	asset := &registry.Asset{
		ID:              id.NewAssetID(),
		FundStructureID: &fundID,
		Name:            "Meridian Class A",
		TotalUnits:      1_000_000,
		UnitPrice:       100,
	}
	reg.PutAsset(asset)

	criteria.Put(&eligibility.Criterion{
		ID:              id.NewCriterionID(),
		FundStructureID: fund.ID,
		Jurisdiction:    "*",
		InvestorType:    id.InvestorTypeProfessional,
		SourceReference: "AIFMD Annex II",
		EffectiveDate:   now.AddDate(-1, 0, 0),
	})
	criteria.Put(&eligibility.Criterion{
		ID:                  id.NewCriterionID(),
		FundStructureID:     fund.ID,
		Jurisdiction:        "DE",
		InvestorType:        id.InvestorTypeSemiProfessional,
		MinimumInvestment:   20_000_000,
		SuitabilityRequired: true,
		SourceReference:     "KAGB §1 Abs. 19 Nr. 33",
		EffectiveDate:       now.AddDate(-1, 0, 0),
	})

	transferRules.Put(&transfer.Rules{
		AssetID:    asset.ID,
		Version:    1,
		LockupDays: 90,
		CreatedAt:  now,
	})

	seller := &registry.Investor{
		ID:           id.NewInvestorID(),
		Name:         "Dev Seller",
		Jurisdiction: "DE",
		Type:         id.InvestorTypeProfessional,
		Accredited:   true,
		KYCExpiry:    now.AddDate(2, 0, 0),
	}
	buyer := &registry.Investor{
		ID:           id.NewInvestorID(),
		Name:         "Dev Buyer",
		Jurisdiction: "LU",
		Type:         id.InvestorTypeProfessional,
		Accredited:   true,
		KYCExpiry:    now.AddDate(2, 0, 0),
	}
	reg.PutInvestor(seller)
	reg.PutInvestor(buyer)

	holdings.PutHolding(&transfer.Holding{
		ID:         id.NewHoldingID(),
		InvestorID: seller.ID,
		AssetID:    asset.ID,
		Units:      250_000,
		AcquiredAt: now.AddDate(-1, 0, 0),
	})

	log.Info("development fixtures seeded",
		"fund_id", fund.ID,
		"asset_id", asset.ID,
		"seller_id", seller.ID,
		"buyer_id", buyer.ID,
	)
}
