package db

import "testing"

func TestPendingMigrations(t *testing.T) {
	statuses := []MigrationStatus{
		{Version: 1, Name: "001_schedules.sql", Applied: true},
		{Version: 2, Name: "002_appointments.sql"},
		{Version: 3, Name: "003_corrections.sql"},
	}
	if got := PendingMigrations(statuses); got != 2 {
		t.Errorf("PendingMigrations = %d, want 2", got)
	}
	if got := PendingMigrations(nil); got != 0 {
		t.Errorf("PendingMigrations(nil) = %d, want 0", got)
	}
}
