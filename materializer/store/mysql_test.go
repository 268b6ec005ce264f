package store

import (
	"os"
	"testing"
)

// TestMySQLRoundTrip exercises MySQL against a real server. Skipped unless
// TEST_MYSQL_DSN is set, matching the teacher's integration-test gating.
func TestMySQLRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set; skipping MySQL integration test")
	}
	s, err := NewMySQL(dsn)
	if err != nil {
		t.Fatalf("NewMySQL: %v", err)
	}
	defer s.Close()
	testRoundTrip(t, s)
}
