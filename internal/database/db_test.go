package database

import (
	"context"
	"testing"
)

// TestOpen_ReturnsDBForAnyURL はsql.Openは接続を試行しないため、
// 不正なURLでもDBオブジェクトが返ることを検証する。
func TestOpen_ReturnsDBForAnyURL(t *testing.T) {
	for _, driver := range []Driver{DriverPostgres, DriverPgx} {
		db, err := Open(driver, "postgres://invalid")
		if err != nil {
			t.Fatalf("Open(%s) returned unexpected error: %v", driver, err)
		}
		if db == nil {
			t.Fatalf("Open(%s): expected non-nil db", driver)
		}
		db.Close()
	}
}

func TestOpen_SQLiteInMemory_Pings(t *testing.T) {
	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer db.Close()

	if err := Ping(context.Background(), db); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys failed: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestParseDriver(t *testing.T) {
	tests := []struct {
		in      string
		want    Driver
		wantErr bool
	}{
		{"", DriverPostgres, false},
		{"postgres", DriverPostgres, false},
		{"PGX", DriverPgx, false},
		{" sqlite ", DriverSQLite, false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		got, err := ParseDriver(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDriver(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDriver(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
