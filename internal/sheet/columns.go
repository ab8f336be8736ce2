package sheet

import "strings"

// Columns binds record fields to header names. Each field accepts aliases;
// matching is case-insensitive and ignores surrounding whitespace.
type Columns struct {
	EntryDate    []string `yaml:"entry_date"`
	ExitDate     []string `yaml:"exit_date"`
	EntryPrice   []string `yaml:"entry_price"`
	ExitPrice    []string `yaml:"exit_price"`
	PnL          []string `yaml:"pnl"`
	Fees         []string `yaml:"fees"`
	PositionType []string `yaml:"position_type"`
	CashBalance  []string `yaml:"cash_balance"`
	TotalEquity  []string `yaml:"total_equity"`
	Filtered     []string `yaml:"filtered"`
}

// DefaultColumns returns the binding for the production export schema.
func DefaultColumns() Columns {
	return Columns{
		EntryDate:    []string{"entry_date", "Date", "entry_time"},
		ExitDate:     []string{"exit_date", "exit_time"},
		EntryPrice:   []string{"entry_price"},
		ExitPrice:    []string{"exit_price"},
		PnL:          []string{"pnl_usdt", "pnl"},
		Fees:         []string{"fees", "fee", "total_fees"},
		PositionType: []string{"position_type", "side"},
		CashBalance:  []string{"cash_balance"},
		TotalEquity:  []string{"total_equity"},
		Filtered:     []string{"filtered", "is_filtered"},
	}
}

// Merge returns c with any empty binding taken from defaults.
func (c Columns) Merge(defaults Columns) Columns {
	pick := func(a, b []string) []string {
		if len(a) > 0 {
			return a
		}
		return b
	}
	return Columns{
		EntryDate:    pick(c.EntryDate, defaults.EntryDate),
		ExitDate:     pick(c.ExitDate, defaults.ExitDate),
		EntryPrice:   pick(c.EntryPrice, defaults.EntryPrice),
		ExitPrice:    pick(c.ExitPrice, defaults.ExitPrice),
		PnL:          pick(c.PnL, defaults.PnL),
		Fees:         pick(c.Fees, defaults.Fees),
		PositionType: pick(c.PositionType, defaults.PositionType),
		CashBalance:  pick(c.CashBalance, defaults.CashBalance),
		TotalEquity:  pick(c.TotalEquity, defaults.TotalEquity),
		Filtered:     pick(c.Filtered, defaults.Filtered),
	}
}

// binding maps bound fields to column indexes; -1 means absent.
type binding struct {
	entryDate, exitDate     int
	entryPrice, exitPrice   int
	pnl, fees, positionType int
	cashBalance, equity     int
	filtered                int
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
}

// bind resolves header cells against the column aliases.
func (c Columns) bind(header []string) binding {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}
	find := func(aliases []string) int {
		for _, a := range aliases {
			if i, ok := index[normalizeHeader(a)]; ok {
				return i
			}
		}
		return -1
	}
	return binding{
		entryDate:    find(c.EntryDate),
		exitDate:     find(c.ExitDate),
		entryPrice:   find(c.EntryPrice),
		exitPrice:    find(c.ExitPrice),
		pnl:          find(c.PnL),
		fees:         find(c.Fees),
		positionType: find(c.PositionType),
		cashBalance:  find(c.CashBalance),
		equity:       find(c.TotalEquity),
		filtered:     find(c.Filtered),
	}
}

// cell returns the trimmed cell at idx, or "" if absent.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
