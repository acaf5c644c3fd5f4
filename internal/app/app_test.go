package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/ledger/inmemory"
	"github.com/dvloznov/receipt-tracker/internal/logger"
	"github.com/dvloznov/receipt-tracker/internal/tracker"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Port:            "8080",
		LedgerBackend:   config.BackendMemory,
		JobsBackend:     config.BackendMemory,
		DisplayCurrency: "EUR",
		ScanParallelism: 1,
		ScanTimeout:     30 * time.Second,
		ScanWorkers:     1,
		LogLevel:        "info",
	}
}

func TestNew_MemoryWithoutScanning(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Scanning {
		t.Error("scanning must be disabled without an API key")
	}
	if a.GCS != nil {
		t.Error("GCS must be disabled without a bucket")
	}
	if _, ok := a.Repo.(*inmemory.Store); !ok {
		t.Errorf("repo = %T, want *inmemory.Store", a.Repo)
	}
	if got := a.Service.DisplayCurrency(); got != "EUR" {
		t.Errorf("display currency = %q, want EUR", got)
	}

	if _, err := a.Service.ScanReceipts(ctx, []string{"a.jpg"}); err == nil {
		t.Error("ScanReceipts must fail when scanning is disabled")
	}
	if _, err := a.Service.CreateExpense(ctx, tracker.ExpenseInput{Merchant: "Cafe", Amount: 3}); err != nil {
		t.Errorf("CreateExpense: %v", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.ScanWorkers = 0
	cfg.LedgerBackend = "postgres"

	_, err := New(context.Background(), cfg, logger.Nop())
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"SCAN_WORKERS", "postgres"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestOpenLedger_UnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.LedgerBackend = "postgres"
	if _, err := OpenLedger(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestClose_JoinsErrorsNewestFirst(t *testing.T) {
	var order []string
	a := &App{closers: []func() error{
		func() error { order = append(order, "first"); return errors.New("first failed") },
		func() error { order = append(order, "second"); return nil },
	}}

	err := a.Close()
	if err == nil || !strings.Contains(err.Error(), "first failed") {
		t.Errorf("Close error = %v", err)
	}
	if strings.Join(order, ",") != "second,first" {
		t.Errorf("close order = %v", order)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestNew_SQLiteLedgerPersists(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.LedgerBackend = config.BackendSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "receipts.db")

	a, err := New(ctx, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Service.CreateExpense(ctx, tracker.ExpenseInput{Merchant: "Cafe", Amount: 3}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if _, err := a.Service.AddCategory(ctx, "Pets"); err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(ctx, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	all, err := reopened.Repo.ListExpenses(ctx)
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	if len(all) != 1 || all[0].Merchant != "Cafe" {
		t.Errorf("expenses after reopen = %+v", all)
	}
	found := false
	for _, c := range reopened.Service.Categories() {
		if c.Name == "Pets" {
			found = true
		}
	}
	if !found {
		t.Error("custom category was not persisted")
	}
}

func TestOpenJobs_Memory(t *testing.T) {
	j, err := OpenJobs(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("OpenJobs: %v", err)
	}
	if !j.Local || j.Store == nil || j.Publisher == nil || j.Consumer == nil {
		t.Errorf("jobs = %+v", j)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestOpenJobs_UnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.JobsBackend = "kafka"
	if _, err := OpenJobs(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
