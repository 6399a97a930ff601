package cards

import (
	"sort"

	"github.com/conorfennell/recall/internal/parser"
)

type textEdit struct {
	span parser.Span
	text string
}

// applyEdits splices replacements into data. Edits must not overlap;
// they are applied back to front so earlier spans stay valid.
func applyEdits(data string, edits []textEdit) string {
	sort.Slice(edits, func(a, b int) bool { return edits[a].span.Start > edits[b].span.Start })
	out := data
	for _, e := range edits {
		out = out[:e.span.Start] + e.text + out[e.span.End:]
	}
	return out
}

// AddOrderToNoteData pins an order onto every card whose note text does
// not pin one, starting at startOrder, and rewrites the affected cloze
// settings in place. It returns the updated note text and the cards
// materialized from it, every one carrying an order.
func AddOrderToNoteData(p parser.Parseable, data string, startOrder int) (string, []Card, error) {
	nodes, err := parseNote(p, data)
	if err != nil {
		return "", nil, err
	}
	groups, err := groupClozes(nodes)
	if err != nil {
		return "", nil, err
	}

	changed := make(map[int]bool)
	counter := startOrder
	for _, g := range groups {
		cs, err := distillCardSettings(g)
		if err != nil {
			return "", nil, err
		}
		numCards := 0
		if cs.forward {
			numCards++
		}
		if cs.backward {
			numCards++
		}
		if cs.orders != nil {
			if last := cs.orders[len(cs.orders)-1]; last >= counter {
				counter = last + 1
			}
			continue
		}
		node, raw := pinTarget(nodes, g)
		if raw == nil {
			continue
		}
		orders := make([]int, numCards)
		for i := range orders {
			orders[i] = counter
			counter++
		}
		raw.Orders = orders
		changed[node] = true
	}

	var edits []textEdit
	for i := range nodes {
		if !changed[i] {
			continue
		}
		n := &nodes[i]
		settings := ConstructClozeString(n.settings, n.raw, p.ClozeSettingsKeys(), p.NoteSettingsKeys())
		if !n.match.SettingsMatch.Empty() {
			edits = append(edits, textEdit{span: n.match.SettingsMatch, text: settings})
			continue
		}
		prefix, suffix := p.ConstructCloze(settings)
		edits = append(edits,
			textEdit{span: n.match.StartMatch, text: prefix},
			textEdit{span: n.match.EndMatch, text: suffix},
		)
	}
	updated := applyEdits(data, edits)

	cards, err := BuildCards(p, updated)
	if err != nil {
		return "", nil, err
	}
	return updated, cards, nil
}

// RenumberNoteData rewrites every card's order to its position in the
// note's card sequence, 1..N, overwriting stale pins. Used after a
// card diff is applied so the note text agrees with the stored orders.
func RenumberNoteData(p parser.Parseable, data string) (string, []Card, error) {
	nodes, err := parseNote(p, data)
	if err != nil {
		return "", nil, err
	}
	groups, err := groupClozes(nodes)
	if err != nil {
		return "", nil, err
	}

	changed := make(map[int]bool)
	counter := 1
	for _, g := range groups {
		cs, err := distillCardSettings(g)
		if err != nil {
			return "", nil, err
		}
		numCards := 0
		if cs.forward {
			numCards++
		}
		if cs.backward {
			numCards++
		}
		node, raw := pinTarget(nodes, g)
		if raw == nil {
			counter += numCards
			continue
		}
		orders := make([]int, numCards)
		for i := range orders {
			orders[i] = counter
			counter++
		}
		// drop pins held by other members so the target's is the only one
		for _, m := range g.members {
			n := &nodes[m.node]
			for j := range n.raw {
				if n.raw[j].Grouping == g.grouping && &n.raw[j] != raw && n.raw[j].Orders != nil {
					n.raw[j].Orders = nil
					changed[m.node] = true
				}
			}
		}
		if !equalOrders(raw.Orders, orders) {
			raw.Orders = orders
			changed[node] = true
		}
	}

	var edits []textEdit
	for i := range nodes {
		if !changed[i] {
			continue
		}
		n := &nodes[i]
		settings := ConstructClozeString(n.settings, n.raw, p.ClozeSettingsKeys(), p.NoteSettingsKeys())
		if !n.match.SettingsMatch.Empty() {
			edits = append(edits, textEdit{span: n.match.SettingsMatch, text: settings})
			continue
		}
		prefix, suffix := p.ConstructCloze(settings)
		edits = append(edits,
			textEdit{span: n.match.StartMatch, text: prefix},
			textEdit{span: n.match.EndMatch, text: suffix},
		)
	}
	updated := applyEdits(data, edits)

	cards, err := BuildCards(p, updated)
	if err != nil {
		return "", nil, err
	}
	return updated, cards, nil
}

func equalOrders(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pinTarget picks the cloze that carries a group's order setting: the
// first member that is answerable and belongs to the group by name
// rather than through the all grouping.
func pinTarget(nodes []clozeNode, g cardGroup) (int, *GroupingSettings) {
	pick := func(requireAnswerable bool) (int, *GroupingSettings) {
		for _, m := range g.members {
			if requireAnswerable && m.settings.NoAnswer {
				continue
			}
			n := &nodes[m.node]
			for j := range n.raw {
				if n.raw[j].Grouping == g.grouping {
					return m.node, &n.raw[j]
				}
			}
		}
		return -1, nil
	}
	if node, raw := pick(true); raw != nil {
		return node, raw
	}
	return pick(false)
}
