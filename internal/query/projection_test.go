package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/openwitness/chronicle/internal/domain"
	"github.com/openwitness/chronicle/internal/repository/memory"
)

func seedVictims(t *testing.T, store *memory.Store, specs []map[string]any) {
	t.Helper()
	for _, fields := range specs {
		v := domain.NewRecordVersion(domain.KindVictim, fields, "seed")
		if err := store.Records().Insert(context.Background(), v); err != nil {
			t.Fatalf("seed insert: %v", err)
		}
	}
}

func TestListCurrentPaginatedSearch(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, domain.DefaultRegions(), 2)

	seedVictims(t, store, []map[string]any{
		{"name": "amir one", "status": "killed"},
		{"name": "amir two", "status": "detained"},
		{"name": "amir three", "status": "missing"},
		{"name": "other", "status": "missing"},
	})

	page, err := svc.ListCurrentPaginated(context.Background(), domain.KindVictim, 1, "amir")
	if err != nil {
		t.Fatalf("paginated list: %v", err)
	}
	if page.TotalCount != 3 {
		t.Fatalf("expected 3 search matches, got %d", page.TotalCount)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected page size 2, got %d", len(page.Items))
	}

	page, err = svc.ListCurrentPaginated(context.Background(), domain.KindVictim, 2, "amir")
	if err != nil {
		t.Fatalf("paginated list: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item on page 2, got %d", len(page.Items))
	}

	if _, err := svc.ListCurrentPaginated(context.Background(), domain.Kind("nope"), 1, ""); err == nil {
		t.Fatal("unknown kind must fail")
	}
}

func TestAggregateByRegionNormalizes(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, domain.DefaultRegions(), 20)

	seedVictims(t, store, []map[string]any{
		{"name": "a", "status": "killed", "region": "north"},
		{"name": "b", "status": "killed", "region": "North"},
		{"name": "c", "status": "killed", "region": "somewhere else"},
		{"name": "d", "status": "killed"},
	})

	counts, err := svc.AggregateByRegion(context.Background(), domain.KindVictim)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	byRegion := map[string]int{}
	for _, c := range counts {
		byRegion[c.Region] = c.Count
	}
	if byRegion["north"] != 2 {
		t.Fatalf("case variants should merge into north: %v", byRegion)
	}
	if byRegion[domain.RegionUnknown] != 2 {
		t.Fatalf("unmatched and missing regions should bucket as unknown: %v", byRegion)
	}
}

func TestExportCurrent(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, domain.DefaultRegions(), 20)

	for i := 0; i < 3; i++ {
		seedVictims(t, store, []map[string]any{
			{"name": fmt.Sprintf("victim %d", i), "status": "killed", "source_links": []string{"https://example.org"}},
		})
	}

	f, err := svc.ExportCurrent(context.Background(), domain.KindVictim)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 4 { // header + 3 records
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	if rows[0][0] != "id" || rows[0][3] != "name" {
		t.Fatalf("unexpected header row: %v", rows[0])
	}
}
