package cli

import (
	"flag"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/domain/entity"
)

// Action is what a parsed command asks the agent to do
type Action int

const (
	// ActionRun executes a strategy run from an intent
	ActionRun Action = iota

	// ActionCancelOrder cancels a resting order by exchange order id
	ActionCancelOrder

	// ActionCancelAll cancels every open order on a symbol, unwinding
	// a resting grid in one sweep
	ActionCancelAll
)

// Command is a fully parsed invocation
type Command struct {
	Action Action
	Intent entity.Intent

	// Cancel target, for ActionCancelOrder
	Symbol  string
	OrderID string
}

// Usage describes the command surface
const Usage = `usage:
  market   -symbol SYM -side BUY|SELL -quantity Q
  limit    -symbol SYM -side BUY|SELL -quantity Q -price P [-tif GTC|IOC|FOK]
  limit cancel -symbol SYM -order-id ID
  advanced oco  -symbol SYM -side BUY|SELL -quantity Q -take-profit P -stop-loss P
  advanced twap -symbol SYM -side BUY|SELL -quantity Q -duration D -interval I
  advanced grid -symbol SYM -lower P -upper P -levels N -quantity-per-level Q
  advanced grid cancel -symbol SYM`

// Parse turns command line arguments (after global flags) into a
// Command. Symbol, side and time-in-force are uppercased so lowercase
// input is accepted; the returned intent is validated by the caller's
// pre-trade checks, not here, and parsing only rejects unreadable
// values.
func Parse(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing command\n%s", Usage)
	}

	switch args[0] {
	case "market":
		return parseMarket(args[1:])
	case "limit":
		if len(args) > 1 && args[1] == "cancel" {
			return parseLimitCancel(args[2:])
		}
		return parseLimit(args[1:])
	case "advanced":
		if len(args) < 2 {
			return nil, fmt.Errorf("advanced requires a strategy: oco, twap or grid")
		}
		switch args[1] {
		case "oco":
			return parseOCO(args[2:])
		case "twap":
			return parseTWAP(args[2:])
		case "grid":
			if len(args) > 2 && args[2] == "cancel" {
				return parseGridCancel(args[3:])
			}
			return parseGrid(args[2:])
		default:
			return nil, fmt.Errorf("unknown advanced strategy %q", args[1])
		}
	default:
		return nil, fmt.Errorf("unknown command %q\n%s", args[0], Usage)
	}
}

func parseMarket(args []string) (*Command, error) {
	fs := flag.NewFlagSet("market", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "trading symbol")
	side := fs.String("side", "", "BUY or SELL")
	quantity := fs.String("quantity", "", "order quantity")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	qty, err := parseDecimal("quantity", *quantity)
	if err != nil {
		return nil, err
	}
	return &Command{
		Action: ActionRun,
		Intent: entity.Intent{
			Symbol:        strings.ToUpper(*symbol),
			Side:          entity.Side(strings.ToUpper(*side)),
			TotalQuantity: qty,
			Kind:          entity.KindMarket,
		},
	}, nil
}

func parseLimit(args []string) (*Command, error) {
	fs := flag.NewFlagSet("limit", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "trading symbol")
	side := fs.String("side", "", "BUY or SELL")
	quantity := fs.String("quantity", "", "order quantity")
	price := fs.String("price", "", "limit price")
	tif := fs.String("tif", "GTC", "time in force: GTC, IOC or FOK")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	qty, err := parseDecimal("quantity", *quantity)
	if err != nil {
		return nil, err
	}
	p, err := parseDecimal("price", *price)
	if err != nil {
		return nil, err
	}
	return &Command{
		Action: ActionRun,
		Intent: entity.Intent{
			Symbol:        strings.ToUpper(*symbol),
			Side:          entity.Side(strings.ToUpper(*side)),
			TotalQuantity: qty,
			Kind:          entity.KindLimit,
			Price:         p,
			TimeInForce:   entity.TimeInForce(strings.ToUpper(*tif)),
		},
	}, nil
}

func parseLimitCancel(args []string) (*Command, error) {
	fs := flag.NewFlagSet("limit cancel", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "trading symbol")
	orderID := fs.String("order-id", "", "exchange order id")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *symbol == "" || *orderID == "" {
		return nil, fmt.Errorf("limit cancel requires -symbol and -order-id")
	}
	return &Command{
		Action:  ActionCancelOrder,
		Symbol:  strings.ToUpper(*symbol),
		OrderID: *orderID,
	}, nil
}

func parseGridCancel(args []string) (*Command, error) {
	fs := flag.NewFlagSet("advanced grid cancel", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "trading symbol")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *symbol == "" {
		return nil, fmt.Errorf("grid cancel requires -symbol")
	}
	return &Command{
		Action: ActionCancelAll,
		Symbol: strings.ToUpper(*symbol),
	}, nil
}

func parseOCO(args []string) (*Command, error) {
	fs := flag.NewFlagSet("advanced oco", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "trading symbol")
	side := fs.String("side", "", "BUY or SELL")
	quantity := fs.String("quantity", "", "order quantity")
	takeProfit := fs.String("take-profit", "", "take-profit price")
	stopLoss := fs.String("stop-loss", "", "stop-loss price")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	qty, err := parseDecimal("quantity", *quantity)
	if err != nil {
		return nil, err
	}
	tp, err := parseDecimal("take-profit", *takeProfit)
	if err != nil {
		return nil, err
	}
	sl, err := parseDecimal("stop-loss", *stopLoss)
	if err != nil {
		return nil, err
	}
	return &Command{
		Action: ActionRun,
		Intent: entity.Intent{
			Symbol:          strings.ToUpper(*symbol),
			Side:            entity.Side(strings.ToUpper(*side)),
			TotalQuantity:   qty,
			Kind:            entity.KindOCO,
			TakeProfitPrice: tp,
			StopLossPrice:   sl,
		},
	}, nil
}

func parseTWAP(args []string) (*Command, error) {
	fs := flag.NewFlagSet("advanced twap", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "trading symbol")
	side := fs.String("side", "", "BUY or SELL")
	quantity := fs.String("quantity", "", "order quantity")
	duration := fs.Duration("duration", 0, "total execution window, e.g. 1h")
	interval := fs.Duration("interval", 0, "wait between slices, e.g. 10m")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	qty, err := parseDecimal("quantity", *quantity)
	if err != nil {
		return nil, err
	}
	return &Command{
		Action: ActionRun,
		Intent: entity.Intent{
			Symbol:        strings.ToUpper(*symbol),
			Side:          entity.Side(strings.ToUpper(*side)),
			TotalQuantity: qty,
			Kind:          entity.KindTWAP,
			Duration:      *duration,
			Interval:      *interval,
		},
	}, nil
}

func parseGrid(args []string) (*Command, error) {
	fs := flag.NewFlagSet("advanced grid", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "trading symbol")
	lower := fs.String("lower", "", "lower ladder price")
	upper := fs.String("upper", "", "upper ladder price")
	levels := fs.Int("levels", 0, "number of ladder levels")
	perLevel := fs.String("quantity-per-level", "", "quantity per level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	lo, err := parseDecimal("lower", *lower)
	if err != nil {
		return nil, err
	}
	hi, err := parseDecimal("upper", *upper)
	if err != nil {
		return nil, err
	}
	qty, err := parseDecimal("quantity-per-level", *perLevel)
	if err != nil {
		return nil, err
	}
	return &Command{
		Action: ActionRun,
		Intent: entity.Intent{
			Symbol:           strings.ToUpper(*symbol),
			Kind:             entity.KindGrid,
			LowerPrice:       lo,
			UpperPrice:       hi,
			Levels:           *levels,
			QuantityPerLevel: qty,
		},
	}, nil
}

func parseDecimal(name, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, fmt.Errorf("-%s is required", name)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("-%s: %w", name, err)
	}
	return d, nil
}
