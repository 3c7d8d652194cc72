package postgres_test

import (
	"context"
	"testing"
	"time"

	"klinefeed/internal/memorystore"
)

// go test -v --run TestSnapshotRoundTrip
func TestSnapshotRoundTrip(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	symbol := "PGTEST"
	t.Cleanup(func() { _ = client.DeleteSnapshot(ctx, symbol) })

	base := time.Now().Truncate(time.Minute)
	bars := []memorystore.Bar{
		{OpenTime: base, Open: 10, High: 11, Low: 9, Close: 10.5},
		{OpenTime: base.Add(time.Minute), Open: 10.5, High: 12, Low: 10, Close: 11.5},
	}

	if err := client.Save(ctx, symbol, bars); err != nil {
		t.Fatalf("save: %v", err)
	}
	// overwrite with a shorter snapshot
	if err := client.Save(ctx, symbol, bars[1:]); err != nil {
		t.Fatalf("save overwrite: %v", err)
	}

	got, err := client.Load(ctx, symbol)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Key() != bars[1].Key() || got[0].Close != 11.5 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	empty, err := client.Load(ctx, "PGNONE")
	if err != nil || len(empty) != 0 {
		t.Fatalf("want empty snapshot, got %v, %v", empty, err)
	}
}
