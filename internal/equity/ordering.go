package equity

import (
	"sort"

	"signal-backtest-lab/internal/domain"
)

// SortRecords orders records by (entry_date ASC, index ASC) in place.
// The sort is stable so records that compare equal keep source order.
func SortRecords(records []domain.TradeRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return compareRecords(&records[i], &records[j]) < 0
	})
}

// Sorted returns an ordered copy of records; the input is not modified.
func Sorted(records []domain.TradeRecord) []domain.TradeRecord {
	out := make([]domain.TradeRecord, len(records))
	copy(out, records)
	SortRecords(out)
	return out
}

// IsOrdered reports whether records are already in fold order.
func IsOrdered(records []domain.TradeRecord) bool {
	for i := 1; i < len(records); i++ {
		if compareRecords(&records[i-1], &records[i]) > 0 {
			return false
		}
	}
	return true
}

// compareRecords returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareRecords(a, b *domain.TradeRecord) int {
	if !a.EntryDate.Equal(b.EntryDate) {
		if a.EntryDate.Before(b.EntryDate) {
			return -1
		}
		return 1
	}
	if a.Index != b.Index {
		if a.Index < b.Index {
			return -1
		}
		return 1
	}
	return 0
}
