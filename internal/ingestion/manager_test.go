package ingestion

import (
	"context"
	"errors"
	"testing"

	"signal-backtest-lab/internal/domain"
	"signal-backtest-lab/internal/sheet"
	"signal-backtest-lab/internal/source"
	"signal-backtest-lab/internal/storage"
	"signal-backtest-lab/internal/storage/memory"
)

func sampleBlob(instrument string) *domain.SourceBlob {
	b := source.Sample()
	b.Instrument = instrument
	return b
}

func TestManager_Ingest(t *testing.T) {
	sources := memory.NewSourceStore()
	feeds := memory.NewTradeFeedStore()
	mgr := NewManager(ManagerOptions{Sources: sources, Feeds: feeds})
	ctx := context.Background()

	res, err := mgr.Ingest(ctx, sampleBlob(" btcusdt "), "")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Instrument != "BTCUSDT" {
		t.Errorf("instrument = %q, want BTCUSDT", res.Instrument)
	}
	if !res.BlobStored || !res.BatchStored {
		t.Errorf("expected both destinations written: %+v", res)
	}
	if res.Sheet != sheet.CSVSheet || res.Records == 0 {
		t.Errorf("unexpected parse summary: %+v", res)
	}

	blob, err := sources.GetLatest(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if blob.Fingerprint != res.Fingerprint {
		t.Errorf("blob fingerprint = %s, want %s", blob.Fingerprint, res.Fingerprint)
	}

	ds, err := feeds.Load(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(ds.Records) != res.Records || ds.Fingerprint != res.Fingerprint {
		t.Errorf("feed batch: %d records fp=%s, want %d fp=%s", len(ds.Records), ds.Fingerprint, res.Records, res.Fingerprint)
	}
}

func TestManager_IngestTwiceIsNoop(t *testing.T) {
	mgr := NewManager(ManagerOptions{
		Sources: memory.NewSourceStore(),
		Feeds:   memory.NewTradeFeedStore(),
	})
	ctx := context.Background()

	if _, err := mgr.Ingest(ctx, sampleBlob("BTCUSDT"), ""); err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}

	res, err := mgr.Ingest(ctx, sampleBlob("BTCUSDT"), "")
	if err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}
	if res.BlobStored || res.BatchStored {
		t.Errorf("unchanged export should not be stored again: %+v", res)
	}
}

func TestManager_ParseFailureWritesNothing(t *testing.T) {
	sources := memory.NewSourceStore()
	mgr := NewManager(ManagerOptions{Sources: sources})
	ctx := context.Background()

	blob := &domain.SourceBlob{Instrument: "ETHUSDT", Content: []byte("price,qty\n1,2\n")}
	_, err := mgr.Ingest(ctx, blob, "")
	if !errors.Is(err, sheet.ErrParseFailed) {
		t.Fatalf("expected ErrParseFailed, got %v", err)
	}

	if _, err := sources.GetLatest(ctx, "ETHUSDT"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected nothing stored, got %v", err)
	}
}

func TestManager_InvalidInput(t *testing.T) {
	mgr := NewManager(ManagerOptions{})
	ctx := context.Background()

	tests := []struct {
		name string
		blob *domain.SourceBlob
	}{
		{"nil", nil},
		{"empty content", &domain.SourceBlob{Instrument: "BTCUSDT"}},
		{"no instrument", &domain.SourceBlob{Content: source.Sample().Content}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.Ingest(ctx, tt.blob, "")
			if !errors.Is(err, storage.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestManager_NoDestinations(t *testing.T) {
	res, err := NewManager(ManagerOptions{}).Ingest(context.Background(), sampleBlob("BTCUSDT"), "")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.BlobStored || res.BatchStored || res.Records == 0 {
		t.Errorf("dry run should parse without storing: %+v", res)
	}
}
