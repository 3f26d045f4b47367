package store

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// Helper function to create an in-memory store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	return st
}

// TestListRestrictions_NoSchema_ReturnsErrNotInitialized verifies that a
// query against a fresh DB (no CreateSchema) returns ErrNotInitialized.
func TestListRestrictions_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	st, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer st.Close()

	// Do NOT call CreateSchema, to simulate an uninitialized database.
	_, err = st.ListRestrictions()
	if err == nil {
		t.Fatal("ListRestrictions() should return an error on uninitialized DB")
	}
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListRestrictions() error = %v; want errors.Is(err, ErrNotInitialized) to be true", err)
	}
}

// TestGetUsage_NoSchema_ReturnsErrNotInitialized covers the same path for the
// usage table.
func TestGetUsage_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	st, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer st.Close()

	_, err = st.GetUsage("2026-08-28", "news.example")
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("GetUsage() error = %v; want errors.Is(err, ErrNotInitialized) to be true", err)
	}
}

// TestErrNotInitialized_ErrorMessage verifies that the sentinel carries a
// human-readable hint about how to initialize.
func TestErrNotInitialized_ErrorMessage(t *testing.T) {
	msg := ErrNotInitialized.Error()
	if msg == "" {
		t.Error("ErrNotInitialized.Error() should not be empty")
	}
	if !strings.Contains(msg, "usagectl track") {
		t.Errorf("ErrNotInitialized message %q should mention 'usagectl track'", msg)
	}
}

// TestTimeLayout_LexicographicOrder verifies the invariant the range queries
// depend on: formatted timestamps compare as strings in the same order as the
// times themselves, including across fractional-second boundaries.
func TestTimeLayout_LexicographicOrder(t *testing.T) {
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(500 * time.Millisecond),
		base.Add(time.Second),
		base.Add(time.Second + 50*time.Millisecond),
		base.Add(time.Minute),
	}

	for i := 1; i < len(times); i++ {
		a, b := formatTime(times[i-1]), formatTime(times[i])
		if !(a < b) {
			t.Errorf("formatTime ordering broken: %q should sort before %q", a, b)
		}
	}
}

// TestFormatParseTime_RoundTrip verifies millisecond-precision round trips.
func TestFormatParseTime_RoundTrip(t *testing.T) {
	orig := time.Date(2026, 8, 28, 10, 30, 15, 250_000_000, time.UTC)
	got, err := parseTime(formatTime(orig))
	if err != nil {
		t.Fatalf("parseTime() failed: %v", err)
	}
	if !got.Equal(orig) {
		t.Errorf("round trip changed time: got %v, want %v", got, orig)
	}
}

// TestValidTarget rejects targets that could corrupt the event spool.
func TestValidTarget(t *testing.T) {
	valid := []string{"news.example", "com.example.app", "a"}
	for _, target := range valid {
		if !validTarget(target) {
			t.Errorf("validTarget(%q) = false, want true", target)
		}
	}

	invalid := []string{"", "a,b", "a|b", "a\nb", "a\rb"}
	for _, target := range invalid {
		if validTarget(target) {
			t.Errorf("validTarget(%q) = true, want false", target)
		}
	}
}
