package validate

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/quantfarm/futures-agent/internal/domain/entity"
)

// Limits holds pre-trade check configuration
type Limits struct {
	// MaxOrderQuantity caps the total quantity of a single intent;
	// zero disables the cap
	MaxOrderQuantity decimal.Decimal

	// MaxNotional caps quantity * price for priced intents; zero
	// disables the cap
	MaxNotional decimal.Decimal

	// AllowedSymbols restricts trading to the listed symbols; empty
	// allows every symbol
	AllowedSymbols []string

	// MaxGridLevels caps the ladder size of a grid intent
	MaxGridLevels int
}

// DefaultLimits returns the default pre-trade limits
func DefaultLimits() *Limits {
	return &Limits{
		MaxGridLevels: 50,
	}
}

// CheckResult represents the result of a pre-trade check
type CheckResult struct {
	Allowed bool
	Reason  string
}

// Checker performs pre-trade checks before an intent reaches the
// exchange. It also carries a halt switch so an operator can stop new
// runs without tearing the process down.
type Checker struct {
	limits *Limits

	mu         sync.RWMutex
	halted     bool
	haltReason string
}

// NewChecker creates a pre-trade checker
func NewChecker(limits *Limits) *Checker {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Checker{limits: limits}
}

// Check validates the intent itself and then applies the configured
// limits. The first violated rule is reported.
func (c *Checker) Check(intent entity.Intent) CheckResult {
	c.mu.RLock()
	halted, haltReason := c.halted, c.haltReason
	c.mu.RUnlock()

	if halted {
		return CheckResult{Allowed: false, Reason: "trading halted: " + haltReason}
	}

	if err := intent.Validate(); err != nil {
		return CheckResult{Allowed: false, Reason: err.Error()}
	}

	if !c.symbolAllowed(intent.Symbol) {
		return CheckResult{Allowed: false, Reason: "symbol " + intent.Symbol + " not in allowed list"}
	}

	if qty := c.intentQuantity(intent); c.limits.MaxOrderQuantity.Sign() > 0 && qty.GreaterThan(c.limits.MaxOrderQuantity) {
		return CheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("quantity %s exceeds limit %s", qty, c.limits.MaxOrderQuantity),
		}
	}

	if c.limits.MaxNotional.Sign() > 0 {
		if notional := c.intentNotional(intent); notional.GreaterThan(c.limits.MaxNotional) {
			return CheckResult{
				Allowed: false,
				Reason:  fmt.Sprintf("notional %s exceeds limit %s", notional, c.limits.MaxNotional),
			}
		}
	}

	if intent.Kind == entity.KindGrid && c.limits.MaxGridLevels > 0 && intent.Levels > c.limits.MaxGridLevels {
		return CheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("grid levels %d exceed limit %d", intent.Levels, c.limits.MaxGridLevels),
		}
	}

	return CheckResult{Allowed: true}
}

func (c *Checker) symbolAllowed(symbol string) bool {
	if len(c.limits.AllowedSymbols) == 0 {
		return true
	}
	for _, s := range c.limits.AllowedSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// intentQuantity is the total quantity the intent can put on the book
func (c *Checker) intentQuantity(intent entity.Intent) decimal.Decimal {
	if intent.Kind == entity.KindGrid {
		return intent.QuantityPerLevel.Mul(decimal.NewFromInt(int64(intent.Levels)))
	}
	return intent.TotalQuantity
}

// intentNotional estimates the worst-case notional using the prices
// the intent itself carries. Market intents have no price and are not
// notional-checked here.
func (c *Checker) intentNotional(intent entity.Intent) decimal.Decimal {
	switch intent.Kind {
	case entity.KindLimit:
		return intent.TotalQuantity.Mul(intent.Price)
	case entity.KindOCO:
		return intent.TotalQuantity.Mul(intent.TakeProfitPrice)
	case entity.KindGrid:
		perLevel := intent.QuantityPerLevel.Mul(intent.UpperPrice)
		return perLevel.Mul(decimal.NewFromInt(int64(intent.Levels)))
	}
	return decimal.Zero
}

// Halt stops new runs
func (c *Checker) Halt(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halted = true
	c.haltReason = reason
}

// Resume allows new runs again
func (c *Checker) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halted = false
	c.haltReason = ""
}
