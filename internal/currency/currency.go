// Package currency implements wallet arithmetic over a table of coin denominations with fixed
// conversion rates: affordability checks, balanced debits that give change, and re-optimizing
// a wallet into the fewest coins.
package currency

import (
	"errors"
	"fmt"
	"sort"

	"questboard/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds indicates that a wallet cannot cover a cost.
	ErrInsufficientFunds = errors.New("currency: insufficient funds")
	// ErrUnknownDenomination indicates a denomination that is not part of the table.
	ErrUnknownDenomination = errors.New("currency: unknown denomination")
	// ErrFractionalAmount indicates a cost that is not a whole number of the smallest coin.
	ErrFractionalAmount = errors.New("currency: amount is not a whole number of the smallest denomination")
	// ErrInvalidTable indicates a malformed denomination table.
	ErrInvalidTable = errors.New("currency: invalid denomination table")
)

// Denomination is a coin with its conversion rate: the number of coins worth one standard unit.
type Denomination struct {
	Key        string          `json:"key" mapstructure:"key"`
	Label      string          `json:"label" mapstructure:"label"`
	Conversion decimal.Decimal `json:"conversion" mapstructure:"conversion"`
}

// Table is a validated set of denominations ordered from highest value to lowest.
type Table struct {
	denominations []Denomination
	byKey         map[string]Denomination
	// units is the worth of one coin of each denomination in the smallest denomination.
	units map[string]int64
}

// NewTable validates the denominations and builds a table.
// Exactly one denomination must have a conversion of 1 and every denomination must be worth
// a whole number of the smallest one.
func NewTable(denominations []Denomination) (*Table, error) {
	if len(denominations) == 0 {
		return nil, fmt.Errorf("%w: no denominations", ErrInvalidTable)
	}

	table := &Table{
		denominations: make([]Denomination, len(denominations)),
		byKey:         make(map[string]Denomination, len(denominations)),
		units:         make(map[string]int64, len(denominations)),
	}
	copy(table.denominations, denominations)

	standard := 0
	for _, d := range table.denominations {
		if d.Key == "" {
			return nil, fmt.Errorf("%w: empty denomination key", ErrInvalidTable)
		}
		if _, ok := table.byKey[d.Key]; ok {
			return nil, fmt.Errorf("%w: duplicate denomination %q", ErrInvalidTable, d.Key)
		}
		if !d.Conversion.IsPositive() {
			return nil, fmt.Errorf("%w: conversion of %q must be positive", ErrInvalidTable, d.Key)
		}
		if d.Conversion.Equal(decimal.NewFromInt(1)) {
			standard++
		}
		table.byKey[d.Key] = d
	}
	if standard != 1 {
		return nil, fmt.Errorf("%w: exactly one denomination must have a conversion of 1, found %d", ErrInvalidTable, standard)
	}

	sort.SliceStable(table.denominations, func(i, j int) bool {
		return table.denominations[i].Conversion.LessThan(table.denominations[j].Conversion)
	})

	smallest := table.denominations[len(table.denominations)-1].Conversion
	for _, d := range table.denominations {
		units := smallest.Div(d.Conversion)
		if !units.Equal(units.Truncate(0)) {
			return nil, fmt.Errorf("%w: %q is not a whole number of the smallest denomination", ErrInvalidTable, d.Key)
		}
		table.units[d.Key] = units.IntPart()
	}

	return table, nil
}

// DefaultDenominations returns the standard coinage: platinum, gold, electrum, silver and copper.
func DefaultDenominations() []Denomination {
	return []Denomination{
		{Key: "pp", Label: "Platinum", Conversion: decimal.RequireFromString("0.1")},
		{Key: "gp", Label: "Gold", Conversion: decimal.NewFromInt(1)},
		{Key: "ep", Label: "Electrum", Conversion: decimal.NewFromInt(2)},
		{Key: "sp", Label: "Silver", Conversion: decimal.NewFromInt(10)},
		{Key: "cp", Label: "Copper", Conversion: decimal.NewFromInt(100)},
	}
}

// Default returns the table built from DefaultDenominations.
func Default() *Table {
	table, err := NewTable(DefaultDenominations())
	if err != nil {
		panic(err)
	}
	return table
}

// Denominations returns the denominations ordered from highest value to lowest.
func (t *Table) Denominations() []Denomination {
	out := make([]Denomination, len(t.denominations))
	copy(out, t.denominations)
	return out
}

// Has reports whether key is a known denomination.
func (t *Table) Has(key string) bool {
	_, ok := t.byKey[key]
	return ok
}

// Label returns the display label of a denomination, or the key itself when no label is set.
func (t *Table) Label(key string) string {
	if d, ok := t.byKey[key]; ok && d.Label != "" {
		return d.Label
	}
	return key
}

// Standard returns the key of the denomination with a conversion of 1.
func (t *Table) Standard() string {
	for _, d := range t.denominations {
		if d.Conversion.Equal(decimal.NewFromInt(1)) {
			return d.Key
		}
	}
	return ""
}

// Smallest returns the key of the lowest-valued denomination.
func (t *Table) Smallest() string {
	return t.denominations[len(t.denominations)-1].Key
}

// ToSmallest converts a cost into a whole number of the smallest denomination.
func (t *Table) ToSmallest(cost models.Cost) (int64, error) {
	denomination := cost.Denomination
	if denomination == "" {
		denomination = t.Standard()
	}
	units, ok := t.units[denomination]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDenomination, denomination)
	}
	total := cost.Value.Mul(decimal.NewFromInt(units))
	if !total.Equal(total.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s %s", ErrFractionalAmount, cost.Value, denomination)
	}
	return total.IntPart(), nil
}

// AffordAndDebit pays cost out of wallet and returns the updated wallet.
//
// The cost is converted into the smallest denomination. Denominations are walked in order
// (highest value first unless order is given), withdrawing from each as many coins as are
// needed to cover what remains, rounding up to whole coins. When the walk overpays, the
// excess is returned to the wallet optimized into the highest denominations.
// The input wallet is never modified; ErrInsufficientFunds is returned when the walk ends short.
func (t *Table) AffordAndDebit(wallet models.Wallet, cost models.Cost, order ...string) (models.Wallet, error) {
	target, err := t.ToSmallest(cost)
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		order = make([]string, 0, len(t.denominations))
		for _, d := range t.denominations {
			order = append(order, d.Key)
		}
	}

	available := wallet.Clone()
	var total int64
	for _, key := range order {
		if total >= target {
			break
		}
		units, ok := t.units[key]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDenomination, key)
		}
		have := available[key]
		if have <= 0 {
			continue
		}
		needed := target - total
		grabbed := (needed + units - 1) / units
		if grabbed > have {
			grabbed = have
		}
		available[key] = have - grabbed
		total += grabbed * units
	}

	if total < target {
		return nil, fmt.Errorf("%w: need %s %s", ErrInsufficientFunds, cost.Value, cost.Denomination)
	}

	if total > target {
		change := t.Optimize(models.Wallet{t.Smallest(): total - target})
		for key, amount := range change {
			if amount != 0 {
				available[key] += amount
			}
		}
	}

	return available, nil
}

// Optimize converts a wallet into the highest denominations possible.
//
// The total worth is computed in standard units, then each denomination from highest value
// to lowest takes the floor of the remaining worth times its conversion. Keys that are not
// part of the table are carried over untouched.
func (t *Table) Optimize(wallet models.Wallet) models.Wallet {
	out := wallet.Clone()

	basis := decimal.Zero
	for _, d := range t.denominations {
		basis = basis.Add(decimal.NewFromInt(wallet[d.Key]).Div(d.Conversion))
	}

	for _, d := range t.denominations {
		amount := basis.Mul(d.Conversion).Floor()
		out[d.Key] = amount.IntPart()
		basis = basis.Sub(amount.Div(d.Conversion))
	}

	return out
}

// Worth returns the value of a wallet in the smallest denomination.
func (t *Table) Worth(wallet models.Wallet) int64 {
	var total int64
	for key, units := range t.units {
		total += wallet[key] * units
	}
	return total
}

// Delta returns after minus before for every denomination present in either wallet,
// omitting zero differences.
func Delta(before, after models.Wallet) models.Wallet {
	delta := make(models.Wallet)
	for key, amount := range after {
		if d := amount - before[key]; d != 0 {
			delta[key] = d
		}
	}
	for key, amount := range before {
		if _, ok := after[key]; !ok && amount != 0 {
			delta[key] = -amount
		}
	}
	return delta
}
