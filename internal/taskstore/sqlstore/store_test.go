package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/formflow/internal/taskstore"
	"github.com/tjfontaine/formflow/internal/taskstore/storetest"
)

func TestSQLiteStore_Contract(t *testing.T) {
	store, err := NewSQLite("file:tasks_contract?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	defer store.Close()

	storetest.RunContract(t, store)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")

	store, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	task := &taskstore.Task{
		ID:        "5b1f6f1e-7d8c-4c35-9e0b-2f7a9d1f0c11",
		FormID:    "hazard_report",
		Utterance: "配电室专项检查",
		Status:    taskstore.StatusPending,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	if err := store.Create(context.Background(), task); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	store.Close()

	store, err = NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()

	got, err := store.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Utterance != task.Utterance {
		t.Errorf("Utterance = %q, want %q", got.Utterance, task.Utterance)
	}
}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(Config{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatal("New() with mysql should fail")
	}
}

// TestPostgresStore_Contract runs against a real server when
// FORMFLOW_TEST_POSTGRES_DSN is set.
func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("FORMFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FORMFLOW_TEST_POSTGRES_DSN not set")
	}
	store, err := New(Config{Driver: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	storetest.RunContract(t, store)
}
