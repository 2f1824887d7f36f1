package book

import (
	"sort"

	"bookflow/models"
)

// side holds one order-book side as price-sorted levels. Prices are kept in
// an ascending slice next to a quantity map; inserts and removals keep the
// two in lockstep, so prices are always unique and strictly ordered.
type side struct {
	prices []float64
	qty    map[float64]float64
	// descending is true for the bid side: levels() walks the slice from
	// the high end.
	descending bool
}

func newSide(descending bool) side {
	return side{
		qty:        make(map[float64]float64),
		descending: descending,
	}
}

// set inserts or overwrites the level at price. A zero quantity removes the
// price; removing an absent price is a no-op.
func (s *side) set(price, quantity float64) {
	i := sort.SearchFloat64s(s.prices, price)
	present := i < len(s.prices) && s.prices[i] == price

	if quantity == 0 {
		if present {
			s.prices = append(s.prices[:i], s.prices[i+1:]...)
			delete(s.qty, price)
		}
		return
	}

	if !present {
		s.prices = append(s.prices, 0)
		copy(s.prices[i+1:], s.prices[i:])
		s.prices[i] = price
	}
	s.qty[price] = quantity
}

func (s *side) len() int {
	return len(s.prices)
}

// levels materializes up to max levels in book order (bids descending, asks
// ascending). max <= 0 means all levels.
func (s *side) levels(max int) []models.PriceLevel {
	n := len(s.prices)
	if max > 0 && max < n {
		n = max
	}
	out := make([]models.PriceLevel, 0, n)
	if s.descending {
		for i := len(s.prices) - 1; i >= len(s.prices)-n; i-- {
			p := s.prices[i]
			out = append(out, models.PriceLevel{Price: p, Quantity: s.qty[p]})
		}
	} else {
		for i := 0; i < n; i++ {
			p := s.prices[i]
			out = append(out, models.PriceLevel{Price: p, Quantity: s.qty[p]})
		}
	}
	return out
}
