package cards

import "fmt"

// MatchPlan describes how to reconcile a note's stored cards with the
// cards produced by a re-parse. Orders are 1-based.
type MatchPlan struct {
	// Moves are [from, to] pairs: the card at old order from keeps its
	// scheduling state and takes new order to.
	Moves [][2]int
	// Deletes are old orders with no surviving counterpart.
	Deletes []int
	// Creates are new orders that start with fresh scheduling state.
	Creates []int
}

// MatchCards computes the reconciliation plan between a note's existing
// card orders and the orders pinned on its re-parsed cards. oldOrders
// must be exactly 1..len(oldOrders). newOrders holds one entry per new
// card, nil when the card's order was not pinned; pinned orders must be
// unique and within 1..len(oldOrders).
func MatchCards(oldOrders []int, newOrders []*int) (MatchPlan, error) {
	var plan MatchPlan
	for i, o := range oldOrders {
		if o != i+1 {
			return plan, fmt.Errorf("%w: existing card orders must be sequential starting at 1, got %d at position %d", ErrInvalidInput, o, i+1)
		}
	}
	seen := make(map[int]bool, len(newOrders))
	for _, o := range newOrders {
		if o == nil {
			continue
		}
		if *o < 1 || *o > len(oldOrders) {
			return plan, fmt.Errorf("%w: card order %d is out of range 1..%d", ErrInvalidInput, *o, len(oldOrders))
		}
		if seen[*o] {
			return plan, fmt.Errorf("%w: card order %d appears more than once", ErrInvalidInput, *o)
		}
		seen[*o] = true
	}

	kept := make(map[int]bool, len(oldOrders))
	for i := range newOrders {
		newIndex := i + 1
		var oldOrder *int
		if i < len(oldOrders) {
			oldOrder = &oldOrders[i]
		}
		switch {
		case oldOrder != nil && newOrders[i] != nil && *oldOrder == *newOrders[i]:
			kept[*oldOrder] = true
		case newOrders[i] != nil:
			plan.Moves = append(plan.Moves, [2]int{*newOrders[i], newIndex})
			kept[*newOrders[i]] = true
		default:
			plan.Creates = append(plan.Creates, newIndex)
		}
	}
	for o := 1; o <= len(oldOrders); o++ {
		if !kept[o] {
			plan.Deletes = append(plan.Deletes, o)
		}
	}
	return plan, nil
}
