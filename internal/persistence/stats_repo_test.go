package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/skobkin/zwavelink/internal/datalink"
	"github.com/skobkin/zwavelink/internal/domain"
	"github.com/skobkin/zwavelink/internal/transfer"
)

func TestStatsRepoLatestOnEmptyTable(t *testing.T) {
	repo := NewStatsRepo(openTestDB(t))

	_, ok, err := repo.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot")
	}
}

func TestStatsRepoAppendLatestPrune(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewStatsRepo(db)
	base := time.UnixMilli(time.Now().UnixMilli())

	for i := 0; i < 5; i++ {
		snap := domain.StatsSnapshot{
			At: base.Add(time.Duration(i) * time.Minute),
			Datalink: datalink.Statistics{
				TxFrames:  uint64(10 * i),
				TxResults: map[datalink.ReturnCode]uint64{datalink.Success: uint64(i), datalink.Busy: 1},
			},
			Transfer: transfer.Statistics{Enqueued: uint64(i), NoAck: 2},
		}
		if err := repo.Append(ctx, snap); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	latest, ok, err := repo.Latest(ctx)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if !latest.At.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("latest at = %v", latest.At)
	}
	if latest.Datalink.TxFrames != 40 || latest.Datalink.TxResults[datalink.Success] != 4 || latest.Datalink.TxResults[datalink.Busy] != 1 {
		t.Fatalf("datalink stats = %+v", latest.Datalink)
	}
	if latest.Transfer.Enqueued != 4 || latest.Transfer.NoAck != 2 {
		t.Fatalf("transfer stats = %+v", latest.Transfer)
	}

	if err := repo.Prune(ctx, 2); err != nil {
		t.Fatalf("prune: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM stats_snapshots`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("snapshots after prune = %d, want 2", count)
	}
}
