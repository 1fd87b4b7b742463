// Package grouping partitions completed transactions by device and selects
// the device whose polling is analysed.
package grouping

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mrzor/pollscope/internal/correlate"
	"github.com/mrzor/pollscope/internal/stats"
)

// UnknownIdentity labels a group without any vendor id.
const UnknownIdentity = "Unknown"

// Selection errors.
var (
	// ErrNoDevices indicates there is nothing to select from.
	ErrNoDevices = errors.New("no devices")

	// ErrSelectionRequired indicates several devices exist and neither a
	// filter nor an explicit choice picks one.
	ErrSelectionRequired = errors.New("device selection required")

	// ErrInvalidSelection indicates a choice outside the group list.
	ErrInvalidSelection = errors.New("invalid device selection")
)

// DeviceGroup is the set of completed transactions of one device handle.
type DeviceGroup struct {
	Handle       uint64
	Identity     string
	EstimatedHz  float64
	Transactions []correlate.Transaction // ordered by end timestamp
}

// Count returns the number of transactions in the group.
func (g *DeviceGroup) Count() int {
	return len(g.Transactions)
}

// Group partitions txs by device handle. Groups are ordered by descending
// transaction count; ties keep the order in which devices first appear.
func Group(txs []correlate.Transaction) []DeviceGroup {
	index := make(map[uint64]int)
	var groups []DeviceGroup

	for _, tx := range txs {
		i, ok := index[tx.Device]
		if !ok {
			i = len(groups)
			index[tx.Device] = i
			groups = append(groups, DeviceGroup{Handle: tx.Device})
		}
		groups[i].Transactions = append(groups[i].Transactions, tx)
	}

	for i := range groups {
		g := &groups[i]
		g.Transactions = stats.SortByEnd(g.Transactions)
		g.Identity = identity(g.Transactions)
		g.EstimatedHz = stats.EstimateHz(g.Transactions)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count() > groups[j].Count()
	})
	return groups
}

func identity(sorted []correlate.Transaction) string {
	for _, tx := range sorted {
		if id := tx.Identity(); id != "" {
			return id
		}
	}
	return UnknownIdentity
}

// Reason explains how a group was selected.
type Reason int

// Selection reasons.
const (
	ReasonFilterMatch Reason = iota
	ReasonMostSamples
	ReasonOnlyDevice
	ReasonChoice
)

func (r Reason) String() string {
	switch r {
	case ReasonFilterMatch:
		return "matched device filter"
	case ReasonMostSamples:
		return "device filter not found, most samples"
	case ReasonOnlyDevice:
		return "only device"
	case ReasonChoice:
		return "selected"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Selection identifies the chosen group.
type Selection struct {
	Index  int
	Reason Reason
}

// Select applies the automatic selection policy:
//  1. a non-empty filter matching a group identity exactly picks it;
//  2. a non-empty filter without match picks the largest group;
//  3. without filter, a single group is picked;
//  4. otherwise ErrSelectionRequired is returned and the caller must Choose.
func Select(groups []DeviceGroup, filter string) (Selection, error) {
	if len(groups) == 0 {
		return Selection{}, ErrNoDevices
	}

	if filter != "" {
		for i := range groups {
			if groups[i].Identity == filter {
				return Selection{Index: i, Reason: ReasonFilterMatch}, nil
			}
		}
		return Selection{Index: largest(groups), Reason: ReasonMostSamples}, nil
	}

	if len(groups) == 1 {
		return Selection{Index: 0, Reason: ReasonOnlyDevice}, nil
	}
	return Selection{}, ErrSelectionRequired
}

// Choose selects the group at a zero-based index.
func Choose(groups []DeviceGroup, index int) (Selection, error) {
	if len(groups) == 0 {
		return Selection{}, ErrNoDevices
	}
	if index < 0 || index >= len(groups) {
		return Selection{}, fmt.Errorf("%w: %d not in 1-%d", ErrInvalidSelection, index+1, len(groups))
	}
	return Selection{Index: index, Reason: ReasonChoice}, nil
}

// largest returns the index of the first group with the highest count.
// Group already orders by count, but callers may pass their own slice.
func largest(groups []DeviceGroup) int {
	best := 0
	for i := 1; i < len(groups); i++ {
		if groups[i].Count() > groups[best].Count() {
			best = i
		}
	}
	return best
}
