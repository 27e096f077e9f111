// Package scenario defines the nested JSON scenario-tree shape used to
// describe a microgrid's areas and the strategies attached to their leaf
// nodes, and builds an area.Tree from it.
package scenario

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"gridsim/internal/area"
	"gridsim/internal/fees"
	"gridsim/internal/strategy"
)

// Node is one entry in the scenario tree: an inner area (with Children) or
// a leaf device (with Type set to one of the recognized strategy kinds).
type Node struct {
	Name     string          `json:"name"`
	Children []Node          `json:"children,omitempty"`
	Type     string          `json:"type,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	HopFee   *FeeArgs        `json:"hop_fee,omitempty"`
}

// FeeArgs describes one hop's grid fee as configured in the scenario JSON.
type FeeArgs struct {
	Type  string  `json:"type"` // constant|percentage
	Value float64 `json:"value"`
}

func (f FeeArgs) calculator() (fees.Calculator, error) {
	switch f.Type {
	case "constant":
		return fees.ConstantFee{FeeConst: decimal.NewFromFloat(f.Value)}, nil
	case "percentage":
		return fees.PercentageFee{FeePercentage: decimal.NewFromFloat(f.Value)}, nil
	default:
		return nil, fmt.Errorf("scenario: unknown hop_fee type %q", f.Type)
	}
}

// commercialProducerArgs is the Args shape for type "commercial_producer".
type commercialProducerArgs struct {
	EnergyMinWh float64 `json:"energy_min_wh"`
	EnergyMaxWh float64 `json:"energy_max_wh"`
	EnergyPrice float64 `json:"energy_price"`
}

// loadArgs is the Args shape for type "load": a constant per-slot
// consumption forecast priced from InitialRate toward FinalRate, capped at
// FinalRate.
type loadArgs struct {
	EnergyWh    float64 `json:"energy_wh"`
	InitialRate float64 `json:"initial_rate"`
	FinalRate   float64 `json:"final_rate"`
}

// pvArgs is the Args shape for type "pv": a constant per-slot production
// forecast walked from InitialRate down to FinalRate.
type pvArgs struct {
	EnergyWh    float64 `json:"energy_wh"`
	InitialRate float64 `json:"initial_rate"`
	FinalRate   float64 `json:"final_rate"`
}

// storageArgs is the Args shape for type "storage".
type storageArgs struct {
	CapacityKWh   float64 `json:"capacity_kwh"`
	InitialSoCKWh float64 `json:"initial_soc_kwh"`
	BreakEvenSell float64 `json:"break_even_sell"`
	BreakEvenBuy  float64 `json:"break_even_buy"`
}

// dieselGeneratorArgs is the Args shape for type "diesel_generator".
type dieselGeneratorArgs struct {
	MaxEnergyKWh float64 `json:"max_energy_kwh"`
	Rate         float64 `json:"rate"`
}

// marketMakerArgs is the Args shape for type "market_maker".
type marketMakerArgs struct {
	EnergyKWh float64 `json:"energy_kwh"`
	Rate      float64 `json:"rate"`
}

// infiniteBusArgs is the Args shape for type "infinite_bus".
type infiniteBusArgs struct {
	EnergyKWh float64 `json:"energy_kwh"`
	SellRate  float64 `json:"sell_rate"`
	BuyRate   float64 `json:"buy_rate"`
}

// constantForecast returns a channel that yields energyWh on every receive,
// forever. Used to feed TemplateLoad/TemplatePV a flat per-slot forecast
// when the scenario JSON describes one as a single number rather than a
// time series.
func constantForecast(energyWh float64) <-chan float64 {
	ch := make(chan float64)
	go func() {
		for {
			ch <- energyWh
		}
	}()
	return ch
}

// Parse decodes a scenario tree from JSON.
func Parse(data []byte) (Node, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return Node{}, fmt.Errorf("parse scenario: %w", err)
	}
	return root, nil
}

// Build constructs an area.Tree from a parsed scenario, wiring leaf
// strategies per the supported Type values: commercial_producer, load, pv,
// storage, diesel_generator, market_maker, infinite_bus. slotLength and
// updateInterval parameterize the rateupdater-driven types (load, pv).
func Build(root Node, slot time.Time, gridFees []fees.Calculator, rng *rand.Rand, slotLength, updateInterval time.Duration) (*area.Tree, error) {
	tree := area.NewTree(root.Name, slot, gridFees, rng)
	if err := buildChildren(tree, 0, root.Children, slot, gridFees, rng, slotLength, updateInterval); err != nil {
		return nil, err
	}
	return tree, nil
}

func buildChildren(tree *area.Tree, parentIdx int, children []Node, slot time.Time, gridFees []fees.Calculator, rng *rand.Rand, slotLength, updateInterval time.Duration) error {
	for _, child := range children {
		isInner := len(child.Children) > 0
		var hopFee fees.Calculator
		if child.HopFee != nil {
			f, err := child.HopFee.calculator()
			if err != nil {
				return err
			}
			hopFee = f
		}

		idx := tree.AddChild(parentIdx, child.Name, slot, gridFees, isInner, hopFee)

		if isInner {
			if err := buildChildren(tree, idx, child.Children, slot, gridFees, rng, slotLength, updateInterval); err != nil {
				return err
			}
			continue
		}

		strat, err := buildStrategy(child, rng, slotLength, updateInterval)
		if err != nil {
			return fmt.Errorf("scenario: area %q: %w", child.Name, err)
		}
		if strat != nil {
			tree.SetStrategy(idx, strat)
		}
	}
	return nil
}

func buildStrategy(n Node, rng *rand.Rand, slotLength, updateInterval time.Duration) (area.Strategy, error) {
	switch n.Type {
	case "":
		return nil, nil
	case "commercial_producer":
		var args commercialProducerArgs
		if err := unmarshalArgs(n.Args, &args); err != nil {
			return nil, err
		}
		return strategy.NewCommercialProducer(n.Name, args.EnergyMinWh, args.EnergyMaxWh, decimal.NewFromFloat(args.EnergyPrice), rng)
	case "load":
		var args loadArgs
		if err := unmarshalArgs(n.Args, &args); err != nil {
			return nil, err
		}
		l := strategy.NewTemplateLoad(n.Name, constantForecast(args.EnergyWh), slotLength, updateInterval)
		l.InitialRate = decimal.NewFromFloat(args.InitialRate)
		l.FinalRate = decimal.NewFromFloat(args.FinalRate)
		return l, nil
	case "pv":
		var args pvArgs
		if err := unmarshalArgs(n.Args, &args); err != nil {
			return nil, err
		}
		p := strategy.NewTemplatePV(n.Name, constantForecast(args.EnergyWh), slotLength, updateInterval)
		p.InitialRate = decimal.NewFromFloat(args.InitialRate)
		p.FinalRate = decimal.NewFromFloat(args.FinalRate)
		return p, nil
	case "storage":
		var args storageArgs
		if err := unmarshalArgs(n.Args, &args); err != nil {
			return nil, err
		}
		s := strategy.NewTemplateStorage(n.Name, args.CapacityKWh, decimal.NewFromFloat(args.BreakEvenSell), decimal.NewFromFloat(args.BreakEvenBuy))
		s.SetStateOfCharge(args.InitialSoCKWh)
		return s, nil
	case "diesel_generator":
		var args dieselGeneratorArgs
		if err := unmarshalArgs(n.Args, &args); err != nil {
			return nil, err
		}
		return strategy.NewFiniteDieselGenerator(n.Name, args.MaxEnergyKWh, decimal.NewFromFloat(args.Rate)), nil
	case "market_maker":
		var args marketMakerArgs
		if err := unmarshalArgs(n.Args, &args); err != nil {
			return nil, err
		}
		return strategy.NewMarketMaker(n.Name, args.EnergyKWh, decimal.NewFromFloat(args.Rate)), nil
	case "infinite_bus":
		var args infiniteBusArgs
		if err := unmarshalArgs(n.Args, &args); err != nil {
			return nil, err
		}
		return strategy.NewInfiniteBus(n.Name, decimal.NewFromFloat(args.SellRate), decimal.NewFromFloat(args.BuyRate), args.EnergyKWh), nil
	default:
		return nil, fmt.Errorf("unsupported strategy type %q", n.Type)
	}
}

func unmarshalArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode strategy args: %w", err)
	}
	return nil
}
