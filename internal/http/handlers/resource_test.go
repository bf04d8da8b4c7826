package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
)

func testContext(t *testing.T, target string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", target, nil)
	return c
}

func TestParseByteRange(t *testing.T) {
	cases := []struct {
		header string
		start  int64
		end    int64
		ok     bool
	}{
		{"bytes=0-499", 0, 499, true},
		{"bytes=500-", 500, -1, true},
		{"bytes=0-0", 0, 0, true},
		{"", 0, -1, false},
		{"bytes=-500", 0, -1, false},
		{"bytes=0-499,600-", 0, -1, false},
		{"bytes=bad-range", 0, -1, false},
		{"bytes=500-100", 0, -1, false},
		{"items=0-499", 0, -1, false},
	}
	for _, tc := range cases {
		start, end, ok := parseByteRange(tc.header)
		if ok != tc.ok || (ok && (start != tc.start || end != tc.end)) {
			t.Fatalf("parseByteRange(%q): want=(%d,%d,%v) got=(%d,%d,%v)",
				tc.header, tc.start, tc.end, tc.ok, start, end, ok)
		}
	}
}

func TestParsePagingDefaults(t *testing.T) {
	c := testContext(t, "/api/resources/search")
	p := parsePaging(c)
	if p.Limit != librepo.DefaultPageLimit || p.Offset != 0 {
		t.Fatalf("defaults: got %+v", p)
	}
}

func TestParsePagingExplicit(t *testing.T) {
	c := testContext(t, "/api/resources/search?limit=10&offset=30")
	p := parsePaging(c)
	if p.Limit != 10 || p.Offset != 30 {
		t.Fatalf("explicit paging: got %+v", p)
	}
}

func TestParseSearchFiltersDates(t *testing.T) {
	c := testContext(t, "/api/resources/search?dateFrom=2026-01-15&dateTo=2026-02-01T12:00:00Z")
	filters, err := parseSearchFilters(c)
	if err != nil {
		t.Fatalf("parseSearchFilters: %v", err)
	}
	if filters.DateFrom == nil || filters.DateFrom.Format("2006-01-02") != "2026-01-15" {
		t.Fatalf("dateFrom not parsed: %+v", filters.DateFrom)
	}
	if filters.DateTo == nil || filters.DateTo.Hour() != 12 {
		t.Fatalf("dateTo not parsed: %+v", filters.DateTo)
	}
}

func TestParseSearchFiltersRejectsBadInput(t *testing.T) {
	for _, target := range []string{
		"/api/resources/search?dateFrom=yesterday",
		"/api/resources/search?author=not-a-uuid",
	} {
		c := testContext(t, target)
		if _, err := parseSearchFilters(c); err == nil {
			t.Fatalf("expected error for %q", target)
		}
	}
}

func TestParseSearchFiltersFields(t *testing.T) {
	c := testContext(t, "/api/resources/search?search=psalms&tags=prayer&tags=worship&type=pdf&topic=faith&category=study&language=en")
	filters, err := parseSearchFilters(c)
	if err != nil {
		t.Fatalf("parseSearchFilters: %v", err)
	}
	if filters.Search != "psalms" || filters.Type != "pdf" || filters.Topic != "faith" ||
		filters.Category != "study" || filters.Language != "en" {
		t.Fatalf("unexpected filters %+v", filters)
	}
	if len(filters.Tags) != 2 {
		t.Fatalf("tags: want=2 got=%d", len(filters.Tags))
	}
}
