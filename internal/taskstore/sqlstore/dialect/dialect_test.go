package dialect

import (
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		dialectType DialectType
		wantName    string
		wantErr     bool
	}{
		{"sqlite", SQLite, "sqlite", false},
		{"postgres", Postgres, "postgres", false},
		{"mysql", DialectType("mysql"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.dialectType)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err == nil && d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
		})
	}
}

func TestFromDriverName(t *testing.T) {
	tests := []struct {
		driverName string
		wantName   string
		wantDriver string
		wantErr    bool
	}{
		{"sqlite", "sqlite", "sqlite", false},
		{"SQLite3", "sqlite", "sqlite", false},
		{"postgres", "postgres", "pgx", false},
		{"pgx", "postgres", "pgx", false},
		{"redis", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driverName, func(t *testing.T) {
			d, err := FromDriverName(tt.driverName)
			if (err != nil) != tt.wantErr {
				t.Errorf("FromDriverName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				return
			}
			if d.Name() != tt.wantName {
				t.Errorf("Name() = %v, want %v", d.Name(), tt.wantName)
			}
			if d.DriverName() != tt.wantDriver {
				t.Errorf("DriverName() = %v, want %v", d.DriverName(), tt.wantDriver)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		query   string
		want    string
	}{
		{&sqliteDialect{}, "SELECT * FROM tasks WHERE id = ? AND status = ?", "SELECT * FROM tasks WHERE id = ? AND status = ?"},
		{&postgresDialect{}, "SELECT * FROM tasks WHERE id = ?", "SELECT * FROM tasks WHERE id = $1"},
		{&postgresDialect{}, "UPDATE tasks SET status = ?, result = ? WHERE id = ?", "UPDATE tasks SET status = $1, result = $2 WHERE id = $3"},
		{&postgresDialect{}, "SELECT * FROM tasks", "SELECT * FROM tasks"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.Name()+"/"+tt.query, func(t *testing.T) {
			if got := tt.dialect.Rebind(tt.query); got != tt.want {
				t.Errorf("Rebind() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInsertIgnoreClause(t *testing.T) {
	if got := (&sqliteDialect{}).InsertIgnoreClause("id"); got != "ON CONFLICT(id) DO NOTHING" {
		t.Errorf("sqlite InsertIgnoreClause() = %q", got)
	}
	if got := (&postgresDialect{}).InsertIgnoreClause("id"); got != "ON CONFLICT (id) DO NOTHING" {
		t.Errorf("postgres InsertIgnoreClause() = %q", got)
	}
	if (&postgresDialect{}).PragmaStatements() != nil {
		t.Error("postgres has no pragmas")
	}
}
