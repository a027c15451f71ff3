package clinic

import (
	"fmt"
	"strconv"
	"strings"
)

// PricingTable maps appointment types to a price in cents. It is built once and
// never mutated, so it is safe to share between goroutines.
type PricingTable struct {
	prices map[AppointmentType]int64
}

func DefaultPricing() PricingTable {
	return NewPricingTable(map[AppointmentType]int64{
		AppointmentCleaning:  10000,
		AppointmentCheckup:   20000,
		AppointmentEmergency: 30000,
		AppointmentRootCanal: 40000,
	})
}

func NewPricingTable(prices map[AppointmentType]int64) PricingTable {
	cp := make(map[AppointmentType]int64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return PricingTable{prices: cp}
}

// ParsePricing reads overrides like "CLEANING=100,ROOT_CANAL=450.50" (dollars)
// on top of the defaults.
func ParsePricing(raw string) (PricingTable, error) {
	prices := DefaultPricing().prices
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return PricingTable{}, fmt.Errorf("pricing entry %q: missing '='", part)
		}
		t, err := ParseAppointmentType(strings.TrimSpace(name))
		if err != nil {
			return PricingTable{}, fmt.Errorf("pricing entry %q: %w", part, err)
		}
		dollars, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || dollars < 0 {
			return PricingTable{}, fmt.Errorf("pricing entry %q: invalid amount", part)
		}
		prices[t] = int64(dollars*100 + 0.5)
	}
	return NewPricingTable(prices), nil
}

func (p PricingTable) Price(t AppointmentType) (int64, error) {
	price, ok := p.prices[t]
	if !ok {
		return 0, Errorf(KindValidation, "no price configured for appointment type %q", t)
	}
	return price, nil
}

func (p PricingTable) Total(types ...AppointmentType) (int64, error) {
	var total int64
	for _, t := range types {
		price, err := p.Price(t)
		if err != nil {
			return 0, err
		}
		total += price
	}
	return total, nil
}
