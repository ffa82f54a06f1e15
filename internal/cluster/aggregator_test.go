package cluster

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tagmarks/tagmarks/internal/engine"
)

func fakePeer(t *testing.T, rows []engine.ItemRow, points []engine.HistogramPoint, stats engine.SystemStats) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(rows)
	})
	mux.HandleFunc("/api/histogram", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(points)
	})
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(stats)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAggregatorSearch(t *testing.T) {
	peer1 := fakePeer(t,
		[]engine.ItemRow{{ID: "a", CreatedAt: 300, Title: "A"}, {ID: "b", CreatedAt: 100, Title: "B"}},
		nil, engine.SystemStats{})
	peer2 := fakePeer(t,
		[]engine.ItemRow{{ID: "c", CreatedAt: 200, Title: "C"}},
		nil, engine.SystemStats{})

	agg := NewAggregator([]string{peer1.URL, peer2.URL})

	rows, err := agg.Search(QueryParams{RawQuery: "expr=x", Auth: "Bearer test"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 merged rows, got %d", len(rows))
	}
	// Merged newest first across peers
	if rows[0].ID != "a" || rows[1].ID != "c" || rows[2].ID != "b" {
		t.Errorf("Unexpected merge order: %v", rows)
	}

	// Limit applies after merge
	rows, err = agg.Search(QueryParams{RawQuery: "expr=x", Limit: 2, Auth: "Bearer test"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(rows) != 2 || rows[1].ID != "c" {
		t.Errorf("Expected top 2 rows, got %v", rows)
	}

	// Peers rejecting auth contribute nothing
	rows, err = agg.Search(QueryParams{RawQuery: "expr=x"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows without auth, got %d", len(rows))
	}
}

func TestAggregatorHistogram(t *testing.T) {
	peer1 := fakePeer(t, nil, []engine.HistogramPoint{{Time: 100, Count: 2}, {Time: 200, Count: 1}}, engine.SystemStats{})
	peer2 := fakePeer(t, nil, []engine.HistogramPoint{{Time: 200, Count: 3}}, engine.SystemStats{})

	agg := NewAggregator([]string{peer1.URL, peer2.URL})

	points, err := agg.Histogram(QueryParams{RawQuery: "interval=100"})
	if err != nil {
		t.Fatalf("Histogram failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 buckets, got %d", len(points))
	}
	if points[0].Time != 100 || points[0].Count != 2 {
		t.Errorf("Bucket 100 wrong: %+v", points[0])
	}
	if points[1].Time != 200 || points[1].Count != 4 {
		t.Errorf("Bucket 200 should sum across peers: %+v", points[1])
	}
}

func TestAggregatorStats(t *testing.T) {
	peer1 := fakePeer(t, nil, nil, engine.SystemStats{
		IngestionRate: 1.5, TotalItems: 10, DiskUsage: 100,
		TagCounts: map[string]int{"go": 3, "db": 1},
	})
	peer2 := fakePeer(t, nil, nil, engine.SystemStats{
		IngestionRate: 0.5, TotalItems: 5, DiskUsage: 50,
		TagCounts: map[string]int{"go": 2},
	})

	agg := NewAggregator([]string{peer1.URL, peer2.URL})

	stats, err := agg.Stats("")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalItems != 15 || stats.DiskUsage != 150 {
		t.Errorf("Totals wrong: %+v", stats)
	}
	if stats.IngestionRate != 2.0 {
		t.Errorf("IngestionRate should sum: %f", stats.IngestionRate)
	}
	if stats.TagCounts["go"] != 5 || stats.TagCounts["db"] != 1 {
		t.Errorf("TagCounts wrong: %v", stats.TagCounts)
	}
}
