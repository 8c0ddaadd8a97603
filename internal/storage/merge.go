package storage

import "github.com/conorfennell/knoldeck/internal/domain"

// Merge joins the canonical items with saved scheduling state by front.
// Items without a record become New cards whatever state the item file
// mirrors, since a mirrored state carries no stability; their lastSeen is
// kept for display. Records whose front is not among the items are
// dropped. The result follows the item order.
func Merge(items []domain.Item, saved map[string]domain.CardRecord) []domain.Card {
	cards := make([]domain.Card, 0, len(items))
	for _, item := range items {
		card := domain.NewCard(item)
		if rec, ok := saved[item.Front]; ok {
			card.Apply(rec)
		} else {
			card.State = domain.New
		}
		if !card.State.Valid() {
			card.State = domain.New
		}
		cards = append(cards, card)
	}
	return cards
}

// Orphans returns the fronts of saved records that match no item.
func Orphans(items []domain.Item, saved map[string]domain.CardRecord) []string {
	present := make(map[string]bool, len(items))
	for _, item := range items {
		present[item.Front] = true
	}
	var orphans []string
	for front := range saved {
		if !present[front] {
			orphans = append(orphans, front)
		}
	}
	return orphans
}
