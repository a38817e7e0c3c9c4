package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/adapter/cli"
	"github.com/quantfarm/futures-agent/internal/adapter/gateway"
	"github.com/quantfarm/futures-agent/internal/domain/entity"
	"github.com/quantfarm/futures-agent/internal/domain/event"
	"github.com/quantfarm/futures-agent/internal/domain/repository"
	"github.com/quantfarm/futures-agent/internal/infrastructure/binance"
	"github.com/quantfarm/futures-agent/internal/infrastructure/config"
	"github.com/quantfarm/futures-agent/internal/infrastructure/logger"
	"github.com/quantfarm/futures-agent/internal/infrastructure/paper"
	"github.com/quantfarm/futures-agent/internal/usecase/strategy"
	"github.com/quantfarm/futures-agent/internal/usecase/validate"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "show version")
	dryRun := flag.Bool("dry-run", false, "simulate orders against a paper exchange")
	markPrice := flag.String("mark-price", "45000", "starting mark price for dry-run mode")
	flag.Parse()

	if *showVersion {
		fmt.Printf("futures-agent %s (built: %s)\n", version, buildTime)
		os.Exit(0)
	}

	log := logger.New(logger.LevelInfo, os.Stdout)
	logger.SetDefault(log)

	cfg, err := loadConfig(*configPath, *dryRun)
	if err != nil {
		log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	log = logger.New(logger.ParseLevel(cfg.Log.Level), os.Stdout)
	logger.SetDefault(log)

	cmd, err := cli.Parse(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("Received signal: %v, cancelling run...", sig)
		cancel()
	}()

	if err := run(ctx, cfg, cmd, *markPrice, log); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

// loadConfig loads the file config; a missing file is fine in dry-run
// mode so the agent works out of the box.
func loadConfig(path string, dryRun bool) (*config.Config, error) {
	if dryRun {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil && dryRun {
		cfg, err = config.Load("")
	}
	if cfg != nil && dryRun {
		cfg.App.DryRun = true
	}
	return cfg, err
}

func run(ctx context.Context, cfg *config.Config, cmd *cli.Command, markPrice string, log *logger.Logger) error {
	gw, err := buildGateway(cfg, markPrice, log)
	if err != nil {
		return err
	}

	if cmd.Action == cli.ActionCancelOrder {
		if err := gw.CancelOrder(ctx, cmd.Symbol, cmd.OrderID); err != nil {
			return fmt.Errorf("cancel order %s: %w", cmd.OrderID, err)
		}
		log.Info("Order %s cancelled", cmd.OrderID)
		return nil
	}

	if cmd.Action == cli.ActionCancelAll {
		if err := gw.CancelAllOrders(ctx, cmd.Symbol); err != nil {
			return fmt.Errorf("cancel open orders on %s: %w", cmd.Symbol, err)
		}
		log.Info("All open orders on %s cancelled", cmd.Symbol)
		return nil
	}

	checker, err := buildChecker(cfg)
	if err != nil {
		return err
	}
	if res := checker.Check(cmd.Intent); !res.Allowed {
		return fmt.Errorf("pre-trade check rejected intent: %s", res.Reason)
	}

	collector := event.NewCollector()
	deps := strategy.Deps{
		Gateway: gw,
		Sink:    event.Fanout(logger.NewEventSink(log), collector),
		Clock:   strategy.SystemClock(),
		Retry: strategy.RetryPolicy{
			MaxAttempts: cfg.Execution.RetryMaxAttempts,
			BaseDelay:   cfg.Execution.RetryBaseDelay,
			MaxDelay:    cfg.Execution.RetryMaxDelay,
		},
	}

	strat, err := buildStrategy(cfg, cmd.Intent, deps)
	if err != nil {
		return err
	}

	if cfg.App.DryRun {
		log.Info("Running in DRY-RUN mode - no real orders will be placed")
	} else {
		log.Warn("Running in LIVE mode - real orders will be placed!")
	}

	status, runErr := strat.Run(ctx)

	runs := repository.NewInMemoryRunRepository()
	if err := runs.Save(strat.Tracker().Run()); err != nil {
		log.Error("Failed to archive run: %v", err)
	}

	report(strat.Tracker().RunID(), runs, collector, log)

	if runErr != nil {
		return fmt.Errorf("run %s: %w", status, runErr)
	}
	switch status {
	case entity.RunFailed, entity.RunPartialFailure:
		return fmt.Errorf("run finished with status %s", status)
	}
	return nil
}

func buildGateway(cfg *config.Config, markPrice string, log *logger.Logger) (gateway.ExchangeGateway, error) {
	if cfg.App.DryRun {
		mark, err := decimal.NewFromString(markPrice)
		if err != nil {
			return nil, fmt.Errorf("mark-price: %w", err)
		}
		return paper.NewExchange(mark), nil
	}

	client := binance.NewClient(binance.ClientConfig{
		BaseURL:    cfg.Exchange.BaseURL,
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		Testnet:    cfg.Exchange.Testnet,
		RecvWindow: cfg.Exchange.RecvWindow,
		Timeout:    cfg.Exchange.Timeout,
	})

	// Live order updates are logged as they stream in; the strategy
	// engines themselves poll for status.
	stream := binance.NewUserStream(client, cfg.Exchange.WSURL, log)
	if err := stream.Connect(context.Background()); err != nil {
		log.Warn("User data stream unavailable: %v", err)
	} else {
		go func() {
			for update := range stream.Updates() {
				log.WithFields(map[string]interface{}{
					"symbol":            update.Symbol,
					"exchange_order_id": update.ExchangeOrderID,
					"state":             string(update.State),
					"filled":            update.FilledQuantity.String(),
				}).Info("order update")
			}
		}()
	}

	return binance.NewExchange(client), nil
}

func buildChecker(cfg *config.Config) (*validate.Checker, error) {
	maxQty, err := cfg.MaxOrderQuantity()
	if err != nil {
		return nil, err
	}
	maxNotional, err := cfg.MaxNotional()
	if err != nil {
		return nil, err
	}
	return validate.NewChecker(&validate.Limits{
		MaxOrderQuantity: maxQty,
		MaxNotional:      maxNotional,
		AllowedSymbols:   cfg.Limits.AllowedSymbols,
		MaxGridLevels:    cfg.Limits.MaxGridLevels,
	}), nil
}

func buildStrategy(cfg *config.Config, intent entity.Intent, deps strategy.Deps) (strategy.Strategy, error) {
	switch intent.Kind {
	case entity.KindMarket, entity.KindLimit:
		return strategy.NewSingle(intent, strategy.SingleConfig{
			PollInterval: cfg.Execution.PollInterval,
		}, deps), nil
	case entity.KindOCO:
		return strategy.NewOCO(intent, strategy.OCOConfig{
			PollInterval: cfg.Execution.PollInterval,
		}, deps), nil
	case entity.KindTWAP:
		return strategy.NewTWAP(intent, strategy.TWAPConfig{
			OrderType:    entity.OrderType(cfg.Execution.TWAPOrderType),
			PollInterval: cfg.Execution.PollInterval,
		}, deps), nil
	case entity.KindGrid:
		return strategy.NewGrid(intent, deps), nil
	default:
		return nil, fmt.Errorf("unsupported intent kind %s", intent.Kind)
	}
}

// report prints the run outcome from the archive: final status,
// per-child states and the number of events observed.
func report(runID string, runs repository.RunRepository, collector *event.Collector, log *logger.Logger) {
	run, err := runs.GetByID(runID)
	if err != nil {
		log.Error("Run %s missing from archive: %v", runID, err)
		return
	}
	status := run.Status()

	fmt.Printf("run %s: %s\n", run.ID, status)
	for _, child := range run.Children {
		id := child.ExchangeOrderID
		if id == "" {
			id = "-"
		}
		fmt.Printf("  #%d %s %s %s  filled %s/%s  [%s]  order %s\n",
			child.LocalID, child.Side, child.Type, child.Symbol,
			child.FilledQty, child.RequestedQty, child.State, id)
	}
	log.Info("Run %s finished with status %s after %d events",
		run.ID, status, len(collector.Events()))
}
