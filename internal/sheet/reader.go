// Package sheet reads columnar trade-history exports into typed trade records.
package sheet

import (
	"bytes"
	"encoding/csv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"signal-backtest-lab/internal/domain"
)

// CSVSheet is the table name of a CSV export, which holds exactly one table.
const CSVSheet = "Sheet1"

var zipMagic = []byte("PK\x03\x04")

// Reader parses trade-history blobs. It holds no mutable state and is safe
// for concurrent use.
type Reader struct {
	columns Columns
	logger  *zap.Logger
}

// Option configures Reader.
type Option func(*Reader)

// WithColumns overrides column bindings. Empty bindings keep their defaults.
func WithColumns(c Columns) Option {
	return func(r *Reader) {
		r.columns = c.Merge(DefaultColumns())
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReader creates a reader with default column bindings.
func NewReader(opts ...Option) *Reader {
	r := &Reader{
		columns: DefaultColumns(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DetectFormat reports whether data is an xlsx workbook or CSV text.
func DetectFormat(data []byte) domain.SourceFormat {
	if bytes.HasPrefix(data, zipMagic) {
		return domain.FormatXLSX
	}
	return domain.FormatCSV
}

// Sheets lists the table names in data.
func (r *Reader) Sheets(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, sourceUnavailable(nil, "empty source")
	}
	if DetectFormat(data) == domain.FormatCSV {
		if _, err := readCSV(data); err != nil {
			return nil, err
		}
		return []string{CSVSheet}, nil
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, sourceUnavailable(err, "open workbook")
	}
	defer f.Close()

	return f.GetSheetList(), nil
}

// Read parses the named table. An empty name selects the first table.
// Rows without a parseable entry date are dropped; malformed numeric cells
// default to zero and are reported as warnings.
func (r *Reader) Read(data []byte, sheet string) (*domain.Dataset, error) {
	rows, name, err := r.rows(data, sheet)
	if err != nil {
		return nil, err
	}

	ds, err := r.parse(rows)
	if err != nil {
		return nil, err
	}
	ds.Sheet = name

	r.logger.Debug("sheet parsed",
		zap.String("sheet", name),
		zap.Int("records", len(ds.Records)),
		zap.Int("dropped", ds.Dropped),
		zap.Int("warnings", len(ds.Warnings)),
	)
	return ds, nil
}

// rows returns the raw cell text of the selected table and its resolved name.
func (r *Reader) rows(data []byte, sheet string) ([][]string, string, error) {
	if len(data) == 0 {
		return nil, "", sourceUnavailable(nil, "empty source")
	}

	if DetectFormat(data) == domain.FormatCSV {
		if sheet != "" && !strings.EqualFold(sheet, CSVSheet) {
			return nil, "", sheetNotFound(sheet, []string{CSVSheet})
		}
		rows, err := readCSV(data)
		if err != nil {
			return nil, "", err
		}
		return rows, CSVSheet, nil
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", sourceUnavailable(err, "open workbook")
	}
	defer f.Close()

	list := f.GetSheetList()
	if len(list) == 0 {
		return nil, "", sourceUnavailable(nil, "workbook has no sheets")
	}

	name := ""
	if sheet == "" {
		name = list[0]
	} else {
		for _, s := range list {
			if strings.EqualFold(s, sheet) {
				name = s
				break
			}
		}
	}
	if name == "" {
		return nil, "", sheetNotFound(sheet, list)
	}

	// Raw values keep date cells as serial numbers instead of locale-formatted text.
	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, "", parseFailed(err, "read sheet %q", name)
	}
	return rows, name, nil
}

func readCSV(data []byte) ([][]string, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1 // allow ragged rows
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, sourceUnavailable(err, "read csv")
	}
	return rows, nil
}

// parse binds the header row and coerces every data row once.
func (r *Reader) parse(rows [][]string) (*domain.Dataset, error) {
	if len(rows) == 0 {
		return nil, parseFailed(nil, "table is empty")
	}

	b := r.columns.bind(rows[0])
	if b.entryDate < 0 {
		return nil, parseFailed(nil, "no entry date column (tried %v)", r.columns.EntryDate)
	}

	ds := &domain.Dataset{
		Records: make([]domain.TradeRecord, 0, len(rows)-1),
	}

	for i, row := range rows[1:] {
		rowNum := i + 2
		if blankRow(row) {
			continue
		}

		entry, ok := ParseDate(cell(row, b.entryDate))
		if !ok {
			ds.Dropped++
			continue
		}

		c := coercer{row: row, rowNum: rowNum, ds: ds}
		rec := domain.TradeRecord{
			Index:       i,
			EntryDate:   entry,
			EntryPrice:  c.number(b.entryPrice, "entry_price"),
			Fees:        c.number(b.fees, "fees"),
			SourcePnL:   c.number(b.pnl, "pnl_usdt"),
			CashBalance: c.number(b.cashBalance, "cash_balance"),
			TotalEquity: c.number(b.equity, "total_equity"),
			ExitPrice:   c.optionalNumber(b.exitPrice, "exit_price"),
			ExitDate:    c.optionalDate(b.exitDate, "exit_date"),
		}

		pos, filteredByType, ok := parsePosition(cell(row, b.positionType))
		if !ok {
			c.warn("position_type", cell(row, b.positionType), "unknown position type, assuming long")
		}
		rec.PositionType = pos

		filtered, ok := parseFlag(cell(row, b.filtered))
		if !ok {
			c.warn("filtered", cell(row, b.filtered), "unrecognized flag, assuming false")
		}
		rec.IsFiltered = filtered || filteredByType

		if !rec.IsFiltered && rec.ExitDate != nil && rec.ExitDate.Before(rec.EntryDate) {
			c.warn("exit_date", cell(row, b.exitDate), "exit date before entry date")
		}

		ds.Records = append(ds.Records, rec)
	}

	return ds, nil
}

// coercer converts cells of one row, collecting warnings on the dataset.
type coercer struct {
	row    []string
	rowNum int
	ds     *domain.Dataset
}

func (c *coercer) warn(column, value, reason string) {
	c.ds.Warnings = append(c.ds.Warnings, domain.CoercionWarning{
		Row:    c.rowNum,
		Column: column,
		Value:  value,
		Reason: reason,
	})
}

// number returns zero for blank or malformed cells; malformed cells are warned.
func (c *coercer) number(idx int, column string) decimal.Decimal {
	raw := cell(c.row, idx)
	d, ok := parseDecimal(raw)
	if !ok && raw != "" {
		c.warn(column, raw, "not a number, defaulted to 0")
	}
	return d
}

// optionalNumber returns nil for blank cells and zero for malformed ones.
func (c *coercer) optionalNumber(idx int, column string) *decimal.Decimal {
	raw := cell(c.row, idx)
	if raw == "" {
		return nil
	}
	d, ok := parseDecimal(raw)
	if !ok {
		c.warn(column, raw, "not a number, defaulted to 0")
	}
	return &d
}

func (c *coercer) optionalDate(idx int, column string) *time.Time {
	raw := cell(c.row, idx)
	if raw == "" {
		return nil
	}
	t, ok := ParseDate(raw)
	if !ok {
		c.warn(column, raw, "not a date, treated as absent")
		return nil
	}
	return &t
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
