package source

import (
	_ "embed"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/idhash"
)

// SampleInstrument labels the built-in dataset.
const SampleInstrument = "SAMPLE"

//go:embed sample/trades.csv
var sampleCSV []byte

// Sample returns the built-in sample export served when a fetch fails.
func Sample() *domain.SourceBlob {
	return &domain.SourceBlob{
		Instrument:  SampleInstrument,
		Format:      domain.FormatCSV,
		Content:     append([]byte(nil), sampleCSV...),
		Fingerprint: idhash.Fingerprint(sampleCSV),
	}
}
