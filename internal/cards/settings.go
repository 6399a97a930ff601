package cards

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conorfennell/recall/internal/parser"
)

// GroupingKind discriminates the three grouping forms.
type GroupingKind int

const (
	// GroupingAuto is the implicit one-cloze-one-card grouping, keyed by a
	// per-note sequence number.
	GroupingAuto GroupingKind = iota
	// GroupingCustom is a user-named grouping; all clozes sharing the name
	// form one card.
	GroupingCustom
	// GroupingAll marks a cloze as part of every named grouping.
	GroupingAll
)

// Grouping assigns a cloze to a logical card. The zero value is not
// meaningful; use AutoGrouping, CustomGrouping or AllGrouping.
type Grouping struct {
	Kind GroupingKind
	Auto uint32
	Name string
}

func AutoGrouping(n uint32) Grouping  { return Grouping{Kind: GroupingAuto, Auto: n} }
func CustomGrouping(s string) Grouping { return Grouping{Kind: GroupingCustom, Name: s} }

// AllGrouping is the `*` grouping.
var AllGrouping = Grouping{Kind: GroupingAll}

// String renders the grouping the way it appears in a settings string.
// Auto groupings serialize to nothing.
func (g Grouping) String() string {
	switch g.Kind {
	case GroupingAll:
		return "*"
	case GroupingCustom:
		return g.Name
	}
	return ""
}

// FrontConceal selects which concealed clozes appear on the front.
type FrontConceal int

const (
	// FrontOnlyGrouping conceals only this card's grouping.
	FrontOnlyGrouping FrontConceal = iota
	// FrontAllGroupings conceals every cloze of the note.
	FrontAllGroupings
)

func (f FrontConceal) String() string {
	if f == FrontAllGroupings {
		return "all"
	}
	return ""
}

func parseFrontConceal(s string) (FrontConceal, bool) {
	switch s {
	case "":
		return FrontOnlyGrouping, true
	case "all":
		return FrontAllGroupings, true
	}
	return FrontOnlyGrouping, false
}

// BackReveal selects what the back of a card shows.
type BackReveal int

const (
	// BackFullNote reveals the entire note.
	BackFullNote BackReveal = iota
	// BackOnlyAnswered reveals only the answered clozes.
	BackOnlyAnswered
)

func (b BackReveal) String() string {
	if b == BackOnlyAnswered {
		return "a"
	}
	return "n"
}

func parseBackReveal(s string) (BackReveal, bool) {
	switch s {
	case "n":
		return BackFullNote, true
	case "a", "answered":
		return BackOnlyAnswered, true
	}
	return BackFullNote, false
}

// ClozeSettings are the settings global to one cloze, shared by all of
// its groupings.
type ClozeSettings struct {
	Hint *string

	allGroupings bool
}

// GroupingSettings are the settings of one cloze within one grouping.
// Clozes in the same grouping may each declare settings; later clozes
// override earlier ones when the settings are boiled up to the card.
type GroupingSettings struct {
	Grouping Grouping
	// Orders is set on the first cloze of a card and pins the card's order
	// within the note. Two entries when the reverse direction is included.
	Orders              []int
	IncludeForwardCard  bool
	IncludeBackwardCard bool
	// IsSuspended is three-state: nil leaves an existing card's suspension
	// untouched on update.
	IsSuspended *bool
	// Hidden conceals the cloze on the front even when it is not the one
	// being asked. NoAnswer additionally keeps it concealed on the back.
	Hidden       bool
	NoAnswer     bool
	FrontConceal FrontConceal
	BackReveal   BackReveal

	// explicit markers record which values came from the settings string,
	// as opposed to defaults or nesting inheritance.
	explicitHidden       bool
	explicitNoAnswer     bool
	explicitFrontConceal bool
	explicitBackReveal   bool
}

func defaultGroupingSettings(counter *uint32) GroupingSettings {
	g := GroupingSettings{
		Grouping:           AutoGrouping(*counter),
		IncludeForwardCard: true,
	}
	*counter++
	return g
}

type settingsPair struct {
	key   string
	value string
}

// splitSettingsPairs splits a settings string into key-value pairs.
// Pairs are separated by the settings delimiter and split once on the
// key-value delimiter; both halves are trimmed.
func splitSettingsPairs(data string, at parser.Span, keys parser.NoteSettingsKeys) ([]settingsPair, error) {
	var pairs []settingsPair
	for _, piece := range strings.Split(at.Of(data), keys.SettingsDelim) {
		if piece == "" {
			continue
		}
		k, v, found := strings.Cut(piece, keys.KeyValueDelim)
		if !found {
			return nil, &SettingsError{
				Description: fmt.Sprintf("setting %q has no %q separator", piece, keys.KeyValueDelim),
				At:          at,
			}
		}
		pairs = append(pairs, settingsPair{key: strings.TrimSpace(k), value: strings.TrimSpace(v)})
	}
	return pairs, nil
}

// parseGroupingList parses the value of a grouping key. `*` wins over
// everything else; otherwise each comma-separated name is a custom
// grouping.
func parseGroupingList(value string) []Grouping {
	values := strings.Split(value, ",")
	for _, v := range values {
		if v == "*" {
			return []Grouping{AllGrouping}
		}
	}
	out := make([]Grouping, 0, len(values))
	for _, v := range values {
		out = append(out, CustomGrouping(v))
	}
	return out
}

// splitInclusiveFollowing splits pairs into chunks where every chunk
// after the first starts with an element matching pred. If the slice
// starts with a matching element there is no leading chunk.
func splitInclusiveFollowing(pairs []settingsPair, pred func(settingsPair) bool) [][]settingsPair {
	var chunks [][]settingsPair
	var current []settingsPair
	for _, p := range pairs {
		if pred(p) && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
		}
		current = append(current, p)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// applyGroupingSettings folds one grouping's key-value pairs into a
// fresh GroupingSettings.
func applyGroupingSettings(pairs []settingsPair, settings *ClozeSettings, data string, at parser.Span, keys parser.ClozeSettingsKeys) (GroupingSettings, error) {
	var counter uint32
	gs := defaultGroupingSettings(&counter)
	includeReverse, reverseOnly := false, false

	for _, p := range pairs {
		switch p.key {
		case keys.IncludeReverse:
			includeReverse = true
		case keys.ReverseOnly:
			reverseOnly = true
		case keys.IsSuspended:
			// `s:` suspends, `s:n` unsuspends on update.
			v := p.value != "n"
			gs.IsSuspended = &v
		case keys.Hint:
			hint := p.value
			settings.Hint = &hint
		case keys.Hidden:
			gs.Hidden = p.value != "n"
			gs.explicitHidden = true
		case keys.NoAnswer:
			gs.NoAnswer = p.value != "n"
			gs.explicitNoAnswer = true
			if gs.NoAnswer {
				gs.Hidden = true
			}
		case keys.FrontConceal:
			fc, ok := parseFrontConceal(p.value)
			if !ok {
				return gs, &SettingsError{
					Description: fmt.Sprintf("the front conceal value %q is invalid", p.value),
					At:          at,
				}
			}
			gs.FrontConceal = fc
			gs.explicitFrontConceal = true
		case keys.BackReveal:
			br, ok := parseBackReveal(p.value)
			if !ok {
				return gs, &SettingsError{
					Description: fmt.Sprintf("the back reveal value %q is invalid", p.value),
					At:          at,
				}
			}
			gs.BackReveal = br
			gs.explicitBackReveal = true
		case keys.Order:
			var orders []int
			for _, o := range strings.Split(p.value, ",") {
				n, err := strconv.Atoi(strings.TrimSpace(o))
				if err != nil {
					return gs, &SettingsError{
						Description: fmt.Sprintf("the card order %q is invalid", o),
						At:          at,
					}
				}
				orders = append(orders, n)
			}
			gs.Orders = orders
		default:
			return gs, &SettingsError{
				Description: fmt.Sprintf("the key %q is not supported", p.key),
				At:          at,
			}
		}
	}

	if includeReverse && reverseOnly {
		return gs, &SettingsError{
			Description: "include-reverse and reverse-only are mutually exclusive",
			At:          at,
		}
	}
	if includeReverse {
		gs.IncludeBackwardCard = true
	} else if reverseOnly {
		gs.IncludeForwardCard = false
		gs.IncludeBackwardCard = true
	}
	return gs, nil
}

// ParseCardSettings parses one cloze's settings string. Settings before
// the first grouping key are local defaults applied to every grouping
// the string names; each grouping key then starts a block of settings
// for the groupings it lists. counter numbers auto-groupings and is
// shared across the whole note.
func ParseCardSettings(data string, at parser.Span, counter *uint32, noteKeys parser.NoteSettingsKeys, clozeKeys parser.ClozeSettingsKeys) (ClozeSettings, []GroupingSettings, error) {
	var settings ClozeSettings
	pairs, err := splitSettingsPairs(data, at, noteKeys)
	if err != nil {
		return settings, nil, err
	}
	isGroupingKey := func(p settingsPair) bool { return p.key == clozeKeys.Grouping }

	var localGroups []Grouping
	for _, p := range pairs {
		if isGroupingKey(p) {
			localGroups = append(localGroups, parseGroupingList(p.value)...)
		}
	}

	blocks := splitInclusiveFollowing(pairs, isGroupingKey)
	var localSettings []settingsPair
	if len(blocks) > 0 && len(blocks[0]) > 0 && !isGroupingKey(blocks[0][0]) {
		localSettings = blocks[0]
		blocks = blocks[1:]
		if len(localGroups) == 0 {
			localGroups = append(localGroups, AutoGrouping(*counter))
			*counter++
		}
	}
	for _, g := range localGroups {
		if g == AllGrouping {
			settings.allGroupings = true
		}
	}

	// Gather each grouping's settings pairs, insertion ordered.
	var order []Grouping
	grouped := make(map[Grouping][]settingsPair)
	add := func(g Grouping, ps []settingsPair) {
		if _, ok := grouped[g]; !ok {
			order = append(order, g)
		}
		grouped[g] = append(grouped[g], ps...)
	}
	for _, block := range blocks {
		groupings := parseGroupingList(block[0].value)
		for _, g := range groupings {
			add(g, block[1:])
		}
	}
	for _, g := range localGroups {
		add(g, localSettings)
	}

	var all []GroupingSettings
	for _, g := range order {
		gs, err := applyGroupingSettings(grouped[g], &settings, data, at, clozeKeys)
		if err != nil {
			return settings, nil, err
		}
		gs.Grouping = g
		all = append(all, gs)
	}
	if len(all) == 0 {
		all = append(all, defaultGroupingSettings(counter))
	}
	return settings, all, nil
}

// ConstructClozeString serializes a cloze's settings back to canonical
// form. Auto groupings and suspension state never serialize; groupings
// that carry no other settings are coalesced into one grouping key.
func ConstructClozeString(global ClozeSettings, groupings []GroupingSettings, clozeKeys parser.ClozeSettingsKeys, noteKeys parser.NoteSettingsKeys) string {
	kv := noteKeys.KeyValueDelim
	delim := noteKeys.SettingsDelim

	var parts []string
	if global.Hint != nil {
		parts = append(parts, clozeKeys.Hint+kv+*global.Hint)
	}

	var defCounter uint32
	def := defaultGroupingSettings(&defCounter)
	var allGroupingParts []string
	var onlyGroups []Grouping
	if global.allGroupings {
		allGroupingParts = append(allGroupingParts, clozeKeys.Grouping+kv+AllGrouping.String())
	}
	for i, gs := range groupings {
		var groupingParts []string
		named := gs.Grouping.Kind != GroupingAuto
		if named {
			groupingParts = append(groupingParts, clozeKeys.Grouping+kv+gs.Grouping.String())
		}
		if gs.Orders != nil {
			strs := make([]string, len(gs.Orders))
			for j, o := range gs.Orders {
				strs[j] = strconv.Itoa(o)
			}
			groupingParts = append(groupingParts, clozeKeys.Order+kv+strings.Join(strs, ","))
		}
		if gs.IncludeForwardCard && gs.IncludeBackwardCard {
			groupingParts = append(groupingParts, clozeKeys.IncludeReverse+kv)
		}
		if !gs.IncludeForwardCard && gs.IncludeBackwardCard {
			groupingParts = append(groupingParts, clozeKeys.ReverseOnly+kv)
		}
		if gs.NoAnswer {
			groupingParts = append(groupingParts, clozeKeys.NoAnswer+kv)
		} else if gs.Hidden {
			groupingParts = append(groupingParts, clozeKeys.Hidden+kv)
		}
		if gs.FrontConceal != def.FrontConceal {
			groupingParts = append(groupingParts, clozeKeys.FrontConceal+kv+gs.FrontConceal.String())
		}
		if gs.BackReveal != def.BackReveal {
			groupingParts = append(groupingParts, clozeKeys.BackReveal+kv+gs.BackReveal.String())
		}

		if named && len(groupingParts) == 1 {
			if !global.allGroupings {
				onlyGroups = append(onlyGroups, gs.Grouping)
			}
			groupingParts = nil
		}
		if ((named && len(groupingParts) > 1) || i == len(groupings)-1) && len(onlyGroups) > 0 {
			names := make([]string, len(onlyGroups))
			for j, g := range onlyGroups {
				names[j] = g.String()
			}
			allGroupingParts = append(allGroupingParts, clozeKeys.Grouping+kv+strings.Join(names, ","))
			onlyGroups = nil
		}
		if len(groupingParts) > 0 {
			allGroupingParts = append(allGroupingParts, strings.Join(groupingParts, delim))
		}
	}
	if len(allGroupingParts) > 0 {
		parts = append(parts, strings.Join(allGroupingParts, delim+" "))
	}
	return strings.Join(parts, delim)
}
