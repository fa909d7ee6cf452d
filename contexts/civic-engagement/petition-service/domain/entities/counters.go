package entities

import (
	"sort"
	"strings"
)

// Dimension fields in canonical order. Family names and composite keys are
// always built in this order.
const (
	FieldAge    = "age"
	FieldGender = "gender"
	FieldRegion = "region"
	FieldJudge  = "judge"
)

var canonicalFields = []string{FieldAge, FieldGender, FieldRegion, FieldJudge}

const (
	GlobalFamily CounterFamily = "global"
	GlobalKey                  = "total"
	keySeparator               = "_"
)

type FamilyKind string

const (
	// FamilyKindAtomic families are updated with a single atomic increment per key.
	FamilyKindAtomic FamilyKind = "atomic"
	// FamilyKindReadModifyWrite families are read, changed in memory and
	// written back once under an optimistic version check.
	FamilyKindReadModifyWrite FamilyKind = "read_modify_write"
)

// CounterFamily names one counter document, e.g. "age_gender" or "global".
type CounterFamily string

func (f CounterFamily) Kind() FamilyKind {
	for _, field := range strings.Split(string(f), keySeparator) {
		if field == FieldJudge {
			return FamilyKindReadModifyWrite
		}
	}
	return FamilyKindAtomic
}

// AllCounterFamilies lists the 15 subset families in canonical order followed
// by the global family.
func AllCounterFamilies() []CounterFamily {
	families := make([]CounterFamily, 0, 16)
	for mask := 1; mask < 1<<len(canonicalFields); mask++ {
		names := make([]string, 0, len(canonicalFields))
		for i, field := range canonicalFields {
			if mask&(1<<i) != 0 {
				names = append(names, field)
			}
		}
		families = append(families, CounterFamily(strings.Join(names, keySeparator)))
	}
	return append(families, GlobalFamily)
}

func IsCounterFamily(name string) bool {
	for _, family := range AllCounterFamilies() {
		if string(family) == name {
			return true
		}
	}
	return false
}

// Dimensions is the set of aggregate fields a petition contributes to.
// Empty values are absent.
type Dimensions struct {
	Age    string
	Gender string
	Region string
	Judge  string
}

func (d Dimensions) value(field string) string {
	switch field {
	case FieldAge:
		return strings.TrimSpace(d.Age)
	case FieldGender:
		return strings.TrimSpace(d.Gender)
	case FieldRegion:
		return strings.TrimSpace(d.Region)
	case FieldJudge:
		return strings.TrimSpace(d.Judge)
	}
	return ""
}

type CounterDelta struct {
	Family CounterFamily
	Key    string
	Amount int64
}

// Contribution returns one delta per non-empty subset of the present fields
// plus the global total, each with the given amount.
func Contribution(d Dimensions, amount int64) []CounterDelta {
	present := make([]string, 0, len(canonicalFields))
	for _, field := range canonicalFields {
		if d.value(field) != "" {
			present = append(present, field)
		}
	}

	deltas := make([]CounterDelta, 0, 1<<len(present))
	for mask := 1; mask < 1<<len(present); mask++ {
		names := make([]string, 0, len(present))
		values := make([]string, 0, len(present))
		for i, field := range present {
			if mask&(1<<i) != 0 {
				names = append(names, field)
				values = append(values, d.value(field))
			}
		}
		deltas = append(deltas, CounterDelta{
			Family: CounterFamily(strings.Join(names, keySeparator)),
			Key:    strings.Join(values, keySeparator),
			Amount: amount,
		})
	}
	return append(deltas, CounterDelta{Family: GlobalFamily, Key: GlobalKey, Amount: amount})
}

// Diff returns the net deltas that move a petition's contribution from old to
// updated. Pairs that cancel out are dropped.
func Diff(old Dimensions, updated Dimensions) []CounterDelta {
	return Merge(Contribution(old, -1), Contribution(updated, 1))
}

// Merge sums deltas per (family, key), drops zero-net entries and returns
// them ordered by family then key.
func Merge(groups ...[]CounterDelta) []CounterDelta {
	type slot struct {
		family CounterFamily
		key    string
	}
	sums := map[slot]int64{}
	for _, group := range groups {
		for _, delta := range group {
			sums[slot{family: delta.Family, key: delta.Key}] += delta.Amount
		}
	}

	out := make([]CounterDelta, 0, len(sums))
	for s, amount := range sums {
		if amount == 0 {
			continue
		}
		out = append(out, CounterDelta{Family: s.family, Key: s.key, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Family == out[j].Family {
			return out[i].Key < out[j].Key
		}
		return out[i].Family < out[j].Family
	})
	return out
}

// GroupByFamily splits deltas per family, preserving order.
func GroupByFamily(deltas []CounterDelta) (map[CounterFamily][]CounterDelta, []CounterFamily) {
	grouped := map[CounterFamily][]CounterDelta{}
	order := make([]CounterFamily, 0)
	for _, delta := range deltas {
		if _, ok := grouped[delta.Family]; !ok {
			order = append(order, delta.Family)
		}
		grouped[delta.Family] = append(grouped[delta.Family], delta)
	}
	return grouped, order
}

// FamilyDocument is the stored map of composite key to count for one family.
type FamilyDocument struct {
	Family  CounterFamily
	Counts  map[string]int64
	Version int64
}

// Apply adds the deltas to the document. Counts are floored at zero and keys
// that reach zero are removed. It returns the keys whose count would have gone
// negative.
func (d *FamilyDocument) Apply(deltas []CounterDelta) []string {
	if d.Counts == nil {
		d.Counts = map[string]int64{}
	}
	var floored []string
	for _, delta := range deltas {
		next := d.Counts[delta.Key] + delta.Amount
		if next < 0 {
			floored = append(floored, delta.Key)
			next = 0
		}
		if next == 0 {
			delete(d.Counts, delta.Key)
			continue
		}
		d.Counts[delta.Key] = next
	}
	return floored
}

func (d FamilyDocument) Clone() FamilyDocument {
	counts := make(map[string]int64, len(d.Counts))
	for key, value := range d.Counts {
		counts[key] = value
	}
	return FamilyDocument{Family: d.Family, Counts: counts, Version: d.Version}
}
