package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/xraph/iap/billing"
	"github.com/xraph/iap/billing/sim"
)

// scenario is a TOML description of a simulated session.
type scenario struct {
	Assets          string `toml:"assets"`
	PublicKey       string `toml:"public_key"`
	Secret          string `toml:"secret"`
	FriendlyRefunds bool   `toml:"friendly_refunds"`
	SigningSecret   string `toml:"signing_secret"`
	Verify          bool   `toml:"verify"`

	Details   []detailSpec   `toml:"details"`
	Owned     []ownedSpec    `toml:"owned"`
	Steps     []stepSpec     `toml:"steps"`
	Purchases []purchaseSpec `toml:"purchases"`
}

type detailSpec struct {
	ProductID   string `toml:"product_id"`
	Title       string `toml:"title"`
	Description string `toml:"description"`
	PriceText   string `toml:"price_text"`
	Currency    string `toml:"currency"`
	PriceMicros int64  `toml:"price_micros"`
}

type ownedSpec struct {
	ProductID string `toml:"product_id"`
	OrderID   string `toml:"order_id"`
	Token     string `toml:"token"`
	State     string `toml:"state"`
}

type stepSpec struct {
	ProductID string `toml:"product_id"`
	Outcome   string `toml:"outcome"`
	State     string `toml:"state"`
	Error     string `toml:"error"`
	Duplicate bool   `toml:"duplicate"`
}

type purchaseSpec struct {
	ProductID string `toml:"product_id"`
	Payload   string `toml:"payload"`
}

// loadScenario decodes path. A relative assets path is resolved against
// the scenario's directory.
func loadScenario(path string) (*scenario, error) {
	var sc scenario
	md, err := toml.DecodeFile(path, &sc)
	if err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("scenario %s: unknown keys %v", path, undecoded)
	}
	if sc.Assets == "" {
		return nil, errors.New("scenario: assets is required")
	}
	if !filepath.IsAbs(sc.Assets) {
		sc.Assets = filepath.Join(filepath.Dir(path), sc.Assets)
	}
	return &sc, nil
}

// simOptions returns the backend options the scenario asks for.
func (sc *scenario) simOptions() []sim.Option {
	var opts []sim.Option
	if len(sc.Details) > 0 {
		details := make([]billing.SkuDetails, 0, len(sc.Details))
		for _, d := range sc.Details {
			details = append(details, billing.SkuDetails{
				ProductID:   d.ProductID,
				Title:       d.Title,
				Description: d.Description,
				PriceText:   d.PriceText,
				Currency:    d.Currency,
				PriceMicros: d.PriceMicros,
			})
		}
		opts = append(opts, sim.WithDetails(details...))
	}
	if sc.SigningSecret != "" {
		opts = append(opts, sim.WithSigningSecret(sc.SigningSecret))
	}
	return opts
}

// script loads owned purchases and scripted steps into b.
func (sc *scenario) script(b *sim.Backend) error {
	for i, o := range sc.Owned {
		state, err := parseState(o.State)
		if err != nil {
			return fmt.Errorf("owned[%d]: %w", i, err)
		}
		b.AddOwned(billing.Purchase{
			ProductID: o.ProductID,
			OrderID:   o.OrderID,
			Token:     o.Token,
			State:     state,
		})
	}
	for i, s := range sc.Steps {
		step, err := s.toStep()
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		b.Script(s.ProductID, step)
	}
	return nil
}

func (s stepSpec) toStep() (sim.Step, error) {
	outcome, err := parseOutcome(s.Outcome)
	if err != nil {
		return sim.Step{}, err
	}
	state, err := parseState(s.State)
	if err != nil {
		return sim.Step{}, err
	}
	step := sim.Step{Outcome: outcome, State: state, Duplicate: s.Duplicate}
	if s.Error != "" {
		step.Err = errors.New(s.Error)
	}
	return step, nil
}

func parseOutcome(s string) (billing.Outcome, error) {
	switch strings.ToLower(s) {
	case "", "success":
		return billing.OutcomeSuccess, nil
	case "cancelled", "canceled":
		return billing.OutcomeCancelled, nil
	case "already_owned":
		return billing.OutcomeAlreadyOwned, nil
	case "failed":
		return billing.OutcomeFailed, nil
	default:
		return 0, fmt.Errorf("unknown outcome %q", s)
	}
}

func parseState(s string) (billing.PurchaseState, error) {
	switch strings.ToLower(s) {
	case "", "purchased":
		return billing.StatePurchased, nil
	case "canceled", "cancelled":
		return billing.StateCanceled, nil
	case "refunded":
		return billing.StateRefunded, nil
	default:
		return 0, fmt.Errorf("unknown purchase state %q", s)
	}
}
