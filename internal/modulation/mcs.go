package modulation

import "sort"

// MCSEntry is one row of an MCS table: a modulation/code-rate pair
// usable above a minimum SNR.
type MCSEntry struct {
	Index             int
	Modulation        Scheme
	CodeRate          float64
	MinSNRDB          float64
	FEC               FEC
	BitsPerSymbol     int
	SpectralEfficiency float64 // bits_per_symbol * code_rate
}

// Table is an ordered-by-min-SNR MCS table with per-link hysteresis
// state, per spec.md §3/§4.2.
type Table struct {
	Entries      []MCSEntry
	HysteresisDB float64 // default 2 dB

	// current holds the last-selected MCS index per link_id, reset at
	// the start of every batch recompute (spec.md §4.11).
	current map[string]int
}

// NewTable builds a Table from entries, sorting ascending by MinSNRDB and
// deriving BitsPerSymbol/SpectralEfficiency from the modulation tag. It
// panics if entries is empty: an empty table is a load-time
// configuration error the caller must catch before constructing one.
func NewTable(entries []MCSEntry, hysteresisDB float64) *Table {
	if len(entries) == 0 {
		panic("modulation: MCS table must not be empty")
	}
	if hysteresisDB == 0 {
		hysteresisDB = 2.0
	}

	out := make([]MCSEntry, len(entries))
	copy(out, entries)
	for i := range out {
		bits := BitsPerSymbol[out[i].Modulation]
		out[i].BitsPerSymbol = bits
		out[i].SpectralEfficiency = float64(bits) * out[i].CodeRate
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinSNRDB < out[j].MinSNRDB
	})

	return &Table{
		Entries:      out,
		HysteresisDB: hysteresisDB,
		current:      make(map[string]int),
	}
}

// ResetHysteresis clears all per-link hysteresis state. Must be called at
// the start of every batch recompute (spec.md §4.7 step 1, §4.11): a
// stale low MCS from a previous topology must not block a legitimate
// upgrade after redeploy.
func (t *Table) ResetHysteresis() {
	t.current = make(map[string]int)
}

// bestIndexFor returns the highest-indexed entry whose MinSNRDB <= snrDB;
// if snrDB is below every entry, returns the first (lowest) entry. Ties
// on MinSNRDB resolve to the later (higher spectral efficiency) entry,
// per spec.md §4.7's ordering rule, which NewTable's stable sort already
// preserves input order for.
func (t *Table) bestIndexFor(snrDB float64) int {
	best := 0
	for i, e := range t.Entries {
		if e.MinSNRDB <= snrDB {
			best = i
		}
	}
	return best
}

// Select picks an MCS entry for snrDB with no hysteresis state (no
// link_id supplied).
func (t *Table) Select(snrDB float64) MCSEntry {
	return t.Entries[t.bestIndexFor(snrDB)]
}

// SelectWithHysteresis picks an MCS entry for linkID at snrDB, applying
// upgrade/downgrade hysteresis against the link's previously selected
// index, per spec.md §4.2 point 2:
//
//	upgrade to i > cur only if snrDB >= table[i].MinSNRDB + hysteresis
//	downgrade to i < cur only if snrDB < table[cur].MinSNRDB - hysteresis
//	otherwise stay at cur
func (t *Table) SelectWithHysteresis(linkID string, snrDB float64) MCSEntry {
	target := t.bestIndexFor(snrDB)

	cur, known := t.current[linkID]
	if !known {
		t.current[linkID] = target
		return t.Entries[target]
	}

	next := cur
	if target > cur {
		if snrDB >= t.Entries[target].MinSNRDB+t.HysteresisDB {
			next = target
		}
	} else if target < cur {
		if snrDB < t.Entries[cur].MinSNRDB-t.HysteresisDB {
			next = target
		}
	}

	t.current[linkID] = next
	return t.Entries[next]
}
