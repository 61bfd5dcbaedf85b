package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"pairmood/api/internal/store"
)

type exportStore struct {
	users map[string]store.User
	moods map[string][]store.MoodEntry
}

func (s *exportStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *exportStore) ListMoodsByUser(ctx context.Context, userID string, limit int) ([]store.MoodEntry, error) {
	return s.moods[userID], nil
}

func fixtureStore() *exportStore {
	return &exportStore{
		users: map[string]store.User{
			"usr_a": {ID: "usr_a", DisplayName: "Alice", PartnerID: "usr_b"},
			"usr_b": {ID: "usr_b", DisplayName: "Bob", PartnerID: "usr_a"},
		},
		moods: map[string][]store.MoodEntry{
			"usr_a": {{
				ID: "mood_1", UserID: "usr_a", Mood: store.MoodHappy, Intensity: 8,
				Note: "sunny walk", Timestamp: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
			}},
			"usr_b": {{
				ID: "mood_2", UserID: "usr_b", Mood: store.MoodStressed, Intensity: 6,
				Note: "deadline week", Timestamp: time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC),
			}},
		},
	}
}

func TestRenderReportHTML(t *testing.T) {
	html, err := RenderReportHTML(TemplateData{
		Title:       "Alice Mood Report",
		OwnerName:   "Alice",
		PartnerName: "Bob",
		GeneratedAt: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		Entries: []Entry{{
			Owner: "Alice", Mood: "happy", Intensity: 8, Note: "sunny walk",
			Score: 6.4, CreatedAt: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		}},
	})
	if err != nil {
		t.Fatalf("RenderReportHTML: %v", err)
	}

	for _, want := range []string{"Alice Mood Report", "Bob", "sunny walk", "8/10", "6.4"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderReportHTMLEscapesNotes(t *testing.T) {
	html, err := RenderReportHTML(TemplateData{
		Title:   "Report",
		Entries: []Entry{{Mood: "happy", Note: "<script>alert(1)</script>"}},
	})
	if err != nil {
		t.Fatalf("RenderReportHTML: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatal("note HTML was not escaped")
	}
}

func TestRenderReportHTMLEmptyHistory(t *testing.T) {
	html, err := RenderReportHTML(TemplateData{Title: "Report", OwnerName: "Alice"})
	if err != nil {
		t.Fatalf("RenderReportHTML: %v", err)
	}
	if !strings.Contains(html, "No mood entries recorded yet") {
		t.Fatal("expected empty-state message")
	}
}

func TestExportCSVIncludesPartnerEntries(t *testing.T) {
	svc := NewService(fixtureStore())

	result, err := svc.Export(context.Background(), Request{
		UserID:         "usr_a",
		Format:         FormatCSV,
		IncludePartner: true,
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if result.MimeType != "text/csv" || !strings.HasSuffix(result.Filename, ".csv") {
		t.Fatalf("unexpected result metadata %+v", result)
	}

	records, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(records))
	}
	// Merged list is most recent first: Alice's entry precedes Bob's.
	if records[1][1] != "Alice" || records[2][1] != "Bob" {
		t.Fatalf("unexpected row order: %v / %v", records[1], records[2])
	}
	if records[1][2] != "happy" || records[1][4] != "6.4" {
		t.Fatalf("unexpected alice row %v", records[1])
	}
}

func TestExportCSVWithoutPartner(t *testing.T) {
	svc := NewService(fixtureStore())

	result, err := svc.Export(context.Background(), Request{UserID: "usr_a", Format: FormatCSV})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(result.Data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(records))
	}
}

func TestExportUnknownUser(t *testing.T) {
	svc := NewService(fixtureStore())
	if _, err := svc.Export(context.Background(), Request{UserID: "usr_missing", Format: FormatCSV}); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(fixtureStore())
	_, err := svc.Export(context.Background(), Request{UserID: "usr_a", Format: Format("docx")})
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Alice Mood Report":     "Alice-Mood-Report",
		"weird/../path*chars?":  "weirdpathchars",
		"":                      "mood-report",
		strings.Repeat("a", 80): strings.Repeat("a", 50),
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b&c")
	if got != "a%20b%26c" {
		t.Fatalf("percentEncodeForDataURL = %q", got)
	}
}
