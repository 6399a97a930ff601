package cards

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/parser"
)

// PartKind discriminates the entries of a rendering plan.
type PartKind int

const (
	// PartSurrounding is literal note text outside any cloze of the card.
	PartSurrounding PartKind = iota
	// PartClozeStart and PartClozeEnd bracket a cloze region.
	PartClozeStart
	PartClozeEnd
	// PartCloze is a cloze body with a replacement choice.
	PartCloze
)

// ClozeReplacement says what a PartCloze shows on its side.
type ClozeReplacement int

const (
	// ClozeToAnswer conceals the cloze being asked.
	ClozeToAnswer ClozeReplacement = iota
	// ClozeNotToAnswer conceals a cloze the user is not asked about.
	ClozeNotToAnswer
	// ClozeReveal shows the original text.
	ClozeReveal
)

// NotePart is one entry of a card side's rendering plan. The parts of a
// side, concatenated, span the note text the side presents.
type NotePart struct {
	Kind PartKind
	// Span locates the part in the note data. Zero for marker parts.
	Span parser.Span
	// Text is the literal content for surrounding and revealed parts.
	Text string
	// Cloze is the discovery index of the cloze for the cloze kinds.
	Cloze       int
	Replacement ClozeReplacement
	// Hint is shown in place of a concealed to-answer cloze.
	Hint *string
	// Concealed marks surrounding text hidden on the front of a reverse
	// card.
	Concealed bool
}

// Card is one question/answer pair materialized from a note.
type Card struct {
	Grouping Grouping
	// Order is the card's pinned order within the note, nil when the note
	// text does not pin one.
	Order       *int
	Reversed    bool
	IsSuspended *bool
	BackType    domain.BackType
	Front       []NotePart
	Back        []NotePart
	// ClozeIndexes are the discovery indexes of the answered clozes.
	ClozeIndexes []int
}

type clozeNode struct {
	index    int
	match    parser.ClozeMatch
	body     parser.Span
	settings ClozeSettings
	// groupings carry effective values after nesting propagation; raw
	// holds the parsed originals used when serializing back to note text.
	groupings []GroupingSettings
	raw       []GroupingSettings
	parent    int
	children  []int
}

func (n *clozeNode) span() parser.Span {
	return parser.Span{Start: n.match.StartMatch.Start, End: n.match.EndMatch.End}
}

// parseNote extracts all clozes of data, parses their settings and links
// them into a nesting tree by span containment.
func parseNote(p parser.Parseable, data string) ([]clozeNode, error) {
	matches := p.Clozes(data)
	var counter uint32
	nodes := make([]clozeNode, 0, len(matches))
	for i, m := range matches {
		body := parser.Span{Start: m.StartMatch.End, End: m.EndMatch.Start}
		if body.Empty() {
			return nil, &EmptyClozeError{At: parser.Span{Start: m.StartMatch.Start, End: m.EndMatch.End}}
		}
		settings, groupings, err := ParseCardSettings(data, m.SettingsMatch, &counter, p.NoteSettingsKeys(), p.ClozeSettingsKeys())
		if err != nil {
			return nil, err
		}
		raw := make([]GroupingSettings, len(groupings))
		copy(raw, groupings)
		nodes = append(nodes, clozeNode{
			index:     i,
			match:     m,
			body:      body,
			settings:  settings,
			groupings: groupings,
			raw:       raw,
			parent:    -1,
		})
	}

	// Matches arrive ordered by start with outer clozes before inner ones,
	// so a stack of enclosing spans recovers the tree.
	var stack []int
	for i := range nodes {
		for len(stack) > 0 {
			top := &nodes[stack[len(stack)-1]]
			if nodes[i].span().Start >= top.span().Start && nodes[i].span().End <= top.span().End {
				break
			}
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			nodes[i].parent = parent
			nodes[parent].children = append(nodes[parent].children, i)
		}
		stack = append(stack, i)
	}

	if err := propagateSettings(nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

// propField adapts one inheritable setting to the generic propagation
// walk. Values are encoded as ints.
type propField struct {
	explicit func(*GroupingSettings) bool
	get      func(*GroupingSettings) int
	set      func(*GroupingSettings, int)
}

var propFields = []propField{
	{
		explicit: func(g *GroupingSettings) bool { return g.explicitHidden },
		get:      func(g *GroupingSettings) int { return boolInt(g.Hidden) },
		set:      func(g *GroupingSettings, v int) { g.Hidden = v != 0 },
	},
	{
		explicit: func(g *GroupingSettings) bool { return g.explicitNoAnswer },
		get:      func(g *GroupingSettings) int { return boolInt(g.NoAnswer) },
		set:      func(g *GroupingSettings, v int) { g.NoAnswer = v != 0 },
	},
	{
		explicit: func(g *GroupingSettings) bool { return g.explicitFrontConceal },
		get:      func(g *GroupingSettings) int { return int(g.FrontConceal) },
		set:      func(g *GroupingSettings, v int) { g.FrontConceal = FrontConceal(v) },
	},
	{
		explicit: func(g *GroupingSettings) bool { return g.explicitBackReveal },
		get:      func(g *GroupingSettings) int { return int(g.BackReveal) },
		set:      func(g *GroupingSettings, v int) { g.BackReveal = BackReveal(v) },
	},
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// propagateSettings spreads explicitly set values through the nesting
// tree. A value set on an inner cloze applies to ancestors that leave it
// unset, then ancestor values flow back down to descendants that leave
// it unset. Two descendants pushing different values onto the same unset
// ancestor is an error.
func propagateSettings(nodes []clozeNode) error {
	for _, f := range propFields {
		own := make([]*int, len(nodes))
		eff := make([]*int, len(nodes))
		for i := range nodes {
			for j := range nodes[i].groupings {
				if f.explicit(&nodes[i].groupings[j]) {
					v := f.get(&nodes[i].groupings[j])
					own[i] = &v
					break
				}
			}
			eff[i] = own[i]
		}
		// Parents precede children in discovery order, so a reverse walk
		// visits every subtree before its root.
		for i := len(nodes) - 1; i >= 0; i-- {
			p := nodes[i].parent
			if eff[i] == nil || p < 0 || own[p] != nil {
				continue
			}
			if eff[p] == nil {
				eff[p] = eff[i]
			} else if *eff[p] != *eff[i] {
				return &SettingsError{
					Description: "conflicting settings on nested clozes",
					At:          nodes[i].span(),
				}
			}
		}
		for i := range nodes {
			p := nodes[i].parent
			if p >= 0 && eff[i] == nil {
				eff[i] = eff[p]
			}
			if eff[i] == nil {
				continue
			}
			for j := range nodes[i].groupings {
				if !f.explicit(&nodes[i].groupings[j]) {
					f.set(&nodes[i].groupings[j], *eff[i])
				}
			}
		}
	}
	return nil
}

type groupMember struct {
	node     int
	settings GroupingSettings
}

type cardGroup struct {
	grouping Grouping
	members  []groupMember
}

// groupClozes buckets clozes by grouping in insertion order. The all
// grouping expands to every named grouping of the note.
func groupClozes(nodes []clozeNode) ([]cardGroup, error) {
	var order []Grouping
	byGrouping := make(map[Grouping]*cardGroup)
	add := func(g Grouping, m groupMember) {
		cg, ok := byGrouping[g]
		if !ok {
			cg = &cardGroup{grouping: g}
			byGrouping[g] = cg
			order = append(order, g)
		}
		cg.members = append(cg.members, m)
	}

	type allMember struct {
		node     int
		settings GroupingSettings
	}
	var allMembers []allMember
	for i := range nodes {
		for _, gs := range nodes[i].groupings {
			if gs.Grouping == AllGrouping {
				if len(nodes[i].groupings) > 1 {
					return nil, &SettingsError{
						Description: "a cloze in every grouping cannot carry other groupings",
						At:          nodes[i].span(),
					}
				}
				allMembers = append(allMembers, allMember{node: i, settings: gs})
				continue
			}
			add(gs.Grouping, groupMember{node: i, settings: gs})
		}
	}
	for _, am := range allMembers {
		named := false
		for _, g := range order {
			if g.Kind == GroupingCustom {
				named = true
				gs := am.settings
				gs.Grouping = g
				byGrouping[g].members = append(byGrouping[g].members, groupMember{node: am.node, settings: gs})
			}
		}
		if !named {
			return nil, &SettingsError{
				Description: "the note has no named groupings for a cloze in every grouping",
				At:          nodes[am.node].span(),
			}
		}
	}

	groups := make([]cardGroup, 0, len(order))
	for _, g := range order {
		cg := byGrouping[g]
		sort.SliceStable(cg.members, func(a, b int) bool {
			oa, ob := memberOrderKey(cg.members[a]), memberOrderKey(cg.members[b])
			if oa != ob {
				return oa < ob
			}
			return cg.members[a].node < cg.members[b].node
		})
		groups = append(groups, *cg)
	}
	return groups, nil
}

func memberOrderKey(m groupMember) int {
	if len(m.settings.Orders) > 0 {
		return m.settings.Orders[0]
	}
	return int(^uint(0) >> 1)
}

// checkNesting rejects groupings where one member cloze contains
// another.
func checkNesting(nodes []clozeNode, groups []cardGroup) error {
	for _, g := range groups {
		in := make(map[int]bool, len(g.members))
		for _, m := range g.members {
			in[m.node] = true
		}
		for _, m := range g.members {
			for p := nodes[m.node].parent; p >= 0; p = nodes[p].parent {
				if in[p] {
					return &NestedGroupingError{
						Outer: nodes[p].span(),
						Inner: nodes[m.node].span(),
					}
				}
			}
		}
	}
	return nil
}

// checkDuplicates rejects groups that materialize into identical cards.
func checkDuplicates(groups []cardGroup) error {
	sigs := make(map[string][][]int)
	var order []string
	for _, g := range groups {
		var b strings.Builder
		indexes := make([]int, 0, len(g.members))
		for _, m := range g.members {
			fmt.Fprintf(&b, "%d/%t;", m.node, m.settings.NoAnswer)
			indexes = append(indexes, m.node)
		}
		sig := b.String()
		if _, ok := sigs[sig]; !ok {
			order = append(order, sig)
		}
		sigs[sig] = append(sigs[sig], indexes)
	}
	var dups [][]int
	for _, sig := range order {
		if len(sigs[sig]) > 1 {
			dups = append(dups, sigs[sig]...)
		}
	}
	if len(dups) > 0 {
		return &DuplicateCardsError{Duplicates: dups}
	}
	return nil
}

// cardSettings are the per-card values distilled from a group's member
// clozes. The first member that deviates from the default wins.
type cardSettings struct {
	orders       []int
	forward      bool
	backward     bool
	isSuspended  *bool
	frontConceal FrontConceal
	backReveal   BackReveal
}

func distillCardSettings(g cardGroup) (cardSettings, error) {
	cs := cardSettings{forward: true}
	allNoAnswer := true
	for _, m := range g.members {
		if cs.orders == nil && m.settings.Orders != nil {
			cs.orders = m.settings.Orders
		}
		if m.settings.IncludeBackwardCard {
			cs.backward = true
			if !m.settings.IncludeForwardCard {
				cs.forward = false
			}
		}
		if cs.isSuspended == nil {
			cs.isSuspended = m.settings.IsSuspended
		}
		if m.settings.FrontConceal == FrontAllGroupings {
			cs.frontConceal = FrontAllGroupings
		}
		if m.settings.BackReveal == BackOnlyAnswered {
			cs.backReveal = BackOnlyAnswered
		}
		if !m.settings.NoAnswer {
			allNoAnswer = false
		}
	}
	if allNoAnswer {
		return cs, fmt.Errorf("%w: all clozes cannot be hidden, see grouping %q", ErrInvalidInput, g.grouping.String())
	}
	return cs, nil
}

func backTypeOf(cs cardSettings, groupCount int) (domain.BackType, error) {
	if cs.backReveal != BackOnlyAnswered {
		return domain.BackFullNote, nil
	}
	if groupCount == 1 {
		return domain.BackFullNote, nil
	}
	if cs.frontConceal == FrontOnlyGrouping {
		return 0, fmt.Errorf("%w: a back limited to the answered clozes requires the front to conceal all groupings", ErrInvalidInput)
	}
	return domain.BackOnlyAnswered, nil
}

// BuildCards materializes every card of a note. Cards come out in group
// insertion order, a reverse card directly after its forward sibling.
func BuildCards(p parser.Parseable, data string) ([]Card, error) {
	nodes, err := parseNote(p, data)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: the note has no clozes", ErrEmpty)
	}
	groups, err := groupClozes(nodes)
	if err != nil {
		return nil, err
	}
	if err := checkNesting(nodes, groups); err != nil {
		return nil, err
	}
	if err := checkDuplicates(groups); err != nil {
		return nil, err
	}

	var cards []Card
	for _, g := range groups {
		cs, err := distillCardSettings(g)
		if err != nil {
			return nil, err
		}
		backType, err := backTypeOf(cs, len(groups))
		if err != nil {
			return nil, err
		}
		directions := make([]bool, 0, 2)
		if cs.forward {
			directions = append(directions, false)
		}
		if cs.backward {
			directions = append(directions, true)
		}
		for d, reversed := range directions {
			card := assembleCard(data, nodes, g, cs, backType, reversed)
			if len(cs.orders) > d {
				o := cs.orders[d]
				card.Order = &o
			}
			cards = append(cards, card)
		}
	}
	return cards, nil
}

func assembleCard(data string, nodes []clozeNode, g cardGroup, cs cardSettings, backType domain.BackType, reversed bool) Card {
	answered := make(map[int]*groupMember, len(g.members))
	for i := range g.members {
		answered[g.members[i].node] = &g.members[i]
	}

	// relevant holds every cloze the plan marks, trimmed to the outermost
	// of any nested run. A bystander wrapping an answered cloze steps
	// aside so the answer stays reachable.
	containsAnswered := make([]bool, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		_, asked := answered[i]
		if (asked || containsAnswered[i]) && nodes[i].parent >= 0 {
			containsAnswered[nodes[i].parent] = true
		}
	}
	emitted := make([]bool, len(nodes))
	var relevant []int
	for i := range nodes {
		if _, asked := answered[i]; !asked && containsAnswered[i] {
			continue
		}
		covered := false
		for p := nodes[i].parent; p >= 0; p = nodes[p].parent {
			if emitted[p] {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		emitted[i] = true
		relevant = append(relevant, i)
	}

	card := Card{
		Grouping:    g.grouping,
		Reversed:    reversed,
		IsSuspended: cs.isSuspended,
		BackType:    backType,
	}
	for _, m := range g.members {
		card.ClozeIndexes = append(card.ClozeIndexes, m.node)
	}
	card.Front = assembleSide(data, nodes, relevant, answered, cs, true, reversed, backType)
	card.Back = assembleSide(data, nodes, relevant, answered, cs, false, reversed, backType)
	return card
}

// concealedBystander says whether a cloze outside the asked grouping
// stays concealed on the front.
func concealedBystander(n *clozeNode, cs cardSettings) bool {
	if cs.frontConceal == FrontAllGroupings {
		return true
	}
	for _, gs := range n.groupings {
		if gs.Hidden {
			return true
		}
	}
	return false
}

func neverAnswered(n *clozeNode) bool {
	for _, gs := range n.groupings {
		if gs.NoAnswer {
			return true
		}
	}
	return false
}

func assembleSide(data string, nodes []clozeNode, relevant []int, answered map[int]*groupMember, cs cardSettings, front, reversed bool, backType domain.BackType) []NotePart {
	onlyAnswered := !front && backType == domain.BackOnlyAnswered
	var parts []NotePart
	pos := 0
	surrounding := func(span parser.Span) {
		if span.Empty() || onlyAnswered {
			return
		}
		parts = append(parts, NotePart{
			Kind:      PartSurrounding,
			Span:      span,
			Text:      span.Of(data),
			Concealed: front && reversed,
		})
	}
	for _, i := range relevant {
		n := &nodes[i]
		surrounding(parser.Span{Start: pos, End: n.span().Start})
		pos = n.span().End

		m, asked := answered[i]
		if onlyAnswered && !asked {
			continue
		}
		part := NotePart{Kind: PartCloze, Span: n.body, Cloze: n.index}
		noAnswer := asked && m.settings.NoAnswer
		switch {
		case asked && !noAnswer && front && !reversed:
			part.Replacement = ClozeToAnswer
			part.Hint = n.settings.Hint
		case asked && !noAnswer:
			part.Replacement = ClozeReveal
			part.Text = n.body.Of(data)
		case noAnswer, !asked && neverAnswered(n):
			part.Replacement = ClozeNotToAnswer
		case !asked && front && concealedBystander(n, cs):
			part.Replacement = ClozeNotToAnswer
		default:
			part.Replacement = ClozeReveal
			part.Text = n.body.Of(data)
		}
		parts = append(parts,
			NotePart{Kind: PartClozeStart, Cloze: n.index},
			part,
			NotePart{Kind: PartClozeEnd, Cloze: n.index},
		)
	}
	surrounding(parser.Span{Start: pos, End: len(data)})
	return parts
}

// RenderSide flattens a rendering plan to display text. Concealed
// regions render as mask, or as the cloze's bracketed hint when one is
// set.
func RenderSide(parts []NotePart, mask string) string {
	var b strings.Builder
	for _, p := range parts {
		switch p.Kind {
		case PartSurrounding:
			if p.Concealed {
				b.WriteString(mask)
			} else {
				b.WriteString(p.Text)
			}
		case PartCloze:
			if p.Replacement == ClozeReveal {
				b.WriteString(p.Text)
			} else if p.Hint != nil {
				b.WriteString("[" + *p.Hint + "]")
			} else {
				b.WriteString(mask)
			}
		}
	}
	return b.String()
}

// ValidateCards rejects cards that cannot be studied.
func ValidateCards(cards []Card) error {
	if len(cards) == 0 {
		return fmt.Errorf("%w: the note produced no cards", ErrEmpty)
	}
	for _, c := range cards {
		if len(c.Front) == 0 {
			return fmt.Errorf("%w: card in grouping %q has no content", ErrEmpty, c.Grouping.String())
		}
		hasCloze := false
		hasSurrounding := false
		for _, p := range c.Front {
			switch p.Kind {
			case PartCloze:
				hasCloze = true
			case PartSurrounding:
				if strings.TrimSpace(p.Text) != "" {
					hasSurrounding = true
				}
			}
		}
		if !hasCloze {
			return fmt.Errorf("%w: cloze in grouping %q", ErrMissingField, c.Grouping.String())
		}
		if !hasSurrounding {
			return fmt.Errorf("%w: surrounding data in grouping %q", ErrMissingField, c.Grouping.String())
		}
	}
	return nil
}
