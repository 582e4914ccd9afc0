package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

// pagedServer serves three pages linked by continuation tokens.
func pagedServer(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]searchResponse{
		"": {
			Status:        "OK",
			NextPageToken: "token-2",
			Results:       []Place{{PlaceID: "p1"}, {PlaceID: "p2"}},
		},
		"token-2": {
			Status:        "OK",
			NextPageToken: "token-3",
			Results:       []Place{{PlaceID: "p3"}},
		},
		"token-3": {
			Status:  "OK",
			Results: []Place{{PlaceID: "p4"}, {PlaceID: "p5"}},
		},
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "" {
			t.Error("request missing api key")
		}
		page, ok := pages[r.URL.Query().Get("pagetoken")]
		if !ok {
			http.Error(w, "unknown page token", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(page)
	}))
}

func TestFetchAllFollowsContinuationTokens(t *testing.T) {
	srv := pagedServer(t)
	defer srv.Close()

	var delays []time.Duration
	client := NewClient("test-key", zap.NewNop(),
		WithBaseURL(srv.URL),
		withSleep(func(d time.Duration) { delays = append(delays, d) }))

	records, err := client.FetchAll(context.Background(), "coffee shops")
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	want := []string{"p1", "p2", "p3", "p4", "p5"}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i, id := range want {
		if records[i].PlaceID != id {
			t.Errorf("record %d: got %q, want %q (page order must be preserved)", i, records[i].PlaceID, id)
		}
	}

	// Three pages means exactly two inter-page delays, each at the floor.
	if len(delays) != 2 {
		t.Fatalf("got %d delays, want 2", len(delays))
	}
	for i, d := range delays {
		if d < minPageDelay {
			t.Errorf("delay %d is %v, below the mandated floor %v", i, d, minPageDelay)
		}
	}
}

func TestFetchAllEmptyResultIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{Status: "ZERO_RESULTS"})
	}))
	defer srv.Close()

	client := NewClient("test-key", zap.NewNop(), WithBaseURL(srv.URL))
	records, err := client.FetchAll(context.Background(), "nothing here")
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestFetchAllSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{Status: "REQUEST_DENIED", ErrorMessage: "bad key"})
	}))
	defer srv.Close()

	client := NewClient("bad-key", zap.NewNop(), WithBaseURL(srv.URL))
	if _, err := client.FetchAll(context.Background(), "coffee"); err == nil {
		t.Fatal("expected API status error")
	}
}

func TestWithPageDelayEnforcesFloor(t *testing.T) {
	var got time.Duration
	client := NewClient("k", zap.NewNop(),
		WithPageDelay(50*time.Millisecond),
		withSleep(func(d time.Duration) { got = d }))
	client.sleep(client.pageDelay)
	if got < minPageDelay {
		t.Errorf("configured delay %v undercuts the floor %v", got, minPageDelay)
	}
}

func TestNormalizeDefaultsAndDrops(t *testing.T) {
	rating := 4.2
	open := true
	raw := fmt.Sprintf(`{
		"results": [
			{
				"place_id": "a",
				"name": "Cafe One",
				"formatted_address": "1 Main St",
				"geometry": {"location": {"lat": 52.1, "lng": 4.3}},
				"rating": %v,
				"user_ratings_total": 120,
				"price_level": 2,
				"opening_hours": {"open_now": %v},
				"types": ["cafe", "food"],
				"photos": [{"photo_reference": "x"}]
			},
			{
				"place_id": "b",
				"name": "Cafe Two",
				"formatted_address": "2 Main St",
				"geometry": {"location": {"lat": 52.2, "lng": 4.4}}
			}
		],
		"status": "OK"
	}`, rating, open)

	var resp searchResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	ds := Normalize(resp.Results, "coffee shops")
	if ds.NumRows() != 2 {
		t.Fatalf("got %d rows, want 2", ds.NumRows())
	}

	cols := ds.Columns()
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c.Name] = i
	}
	for _, dropped := range []string{"types", "photos"} {
		if _, ok := idx[dropped]; ok {
			t.Errorf("column %q should have been dropped", dropped)
		}
	}

	rows := ds.Rows()
	if got := rows[0][idx["opening_hours.open_now"]]; got != true {
		t.Errorf("row 0 open_now: got %v, want true", got)
	}
	if got := rows[1][idx["opening_hours.open_now"]]; got != false {
		t.Errorf("row 1 open_now default: got %v, want false", got)
	}
	if got := rows[1][idx["permanently_closed"]]; got != false {
		t.Errorf("row 1 permanently_closed default: got %v, want false", got)
	}
	if got := rows[1][idx["price_level"]]; got != 0.0 {
		t.Errorf("row 1 price_level default: got %v, want 0.0", got)
	}
	for i := range rows {
		if got := rows[i][idx["query_text"]]; got != "coffee shops" {
			t.Errorf("row %d query_text: got %v", i, got)
		}
	}
}

func TestNormalizeZeroRecords(t *testing.T) {
	ds := Normalize(nil, "anything")
	if !ds.Empty() {
		t.Error("expected empty dataset")
	}
	if len(ds.Columns()) == 0 {
		t.Error("empty dataset must still carry the full typed column set")
	}
}
