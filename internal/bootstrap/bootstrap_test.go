package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"signal-backtest-lab/internal/config"
	"signal-backtest-lab/internal/source"
)

func TestOpen_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Source.Kind = config.SourceMemory
	cfg.Source.Fallback = false

	b, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	ds, err := b.Loader.Load(context.Background(), "sample")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Instrument != source.SampleInstrument {
		t.Errorf("instrument = %q, want %q", ds.Instrument, source.SampleInstrument)
	}
	if ds.Fallback {
		t.Error("memory source should not report fallback")
	}
	if len(ds.Records) == 0 {
		t.Error("expected sample records")
	}
}

func TestOpen_FileFallback(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	csv := "entry_date,entry_price,exit_price,position_type,fees\n2024-01-02,100,110,long,0.5\n"
	if err := os.WriteFile(filepath.Join(dir, "ETHUSDT.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Source.Dir = dir
	cfg.Source.CacheTTL = 0

	b, err := Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	if b.Kind() != config.SourceFile {
		t.Errorf("kind = %q", b.Kind())
	}

	ds, err := b.Loader.Load(ctx, "ethusdt")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ds.Fallback || len(ds.Records) != 1 {
		t.Errorf("fallback=%v records=%d, want false/1", ds.Fallback, len(ds.Records))
	}

	ds, err = b.Loader.Load(ctx, "MISSING")
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if !ds.Fallback {
		t.Error("missing export should fall back to the sample")
	}

	if b.LoaderFunc() == nil {
		t.Fatal("file source should support sheet selection")
	}
	if _, err := b.LoaderFor("Other").Load(ctx, "ETHUSDT"); err == nil {
		t.Error("unknown csv sheet should fail without fallback")
	}
}

func TestOpen_UnsupportedKind(t *testing.T) {
	cfg := config.Default()
	cfg.Source.Kind = "ftp"

	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unsupported kind")
	}
}
