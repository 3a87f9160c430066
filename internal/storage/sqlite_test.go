package storage

import (
	"testing"

	"wmsforge/internal/db"
	"wmsforge/internal/migrate"
)

func TestSQLiteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	kv := NewSQLite(conn)

	if _, ok, err := kv.Get("projects"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := kv.Set("projects", `[]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set("projects", `[{"id":"p1"}]`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := kv.Get("projects")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if v != `[{"id":"p1"}]` {
		t.Fatalf("unexpected value %q", v)
	}
	if err := kv.Delete("projects"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := kv.Get("projects"); ok {
		t.Fatalf("expected key deleted")
	}
}
