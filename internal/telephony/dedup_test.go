package telephony

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryDeduper_ClaimOnceUntilReleased(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper(time.Minute)

	if ok, _ := d.Claim(ctx, "EV_1"); !ok {
		t.Fatalf("first claim should succeed")
	}
	if ok, _ := d.Claim(ctx, "EV_1"); ok {
		t.Fatalf("second claim should fail")
	}
	if ok, _ := d.Claim(ctx, "EV_2"); !ok {
		t.Fatalf("other ids are independent")
	}
	_ = d.Release(ctx, "EV_1")
	if ok, _ := d.Claim(ctx, "EV_1"); !ok {
		t.Fatalf("claim after release should succeed")
	}
}

func TestMemoryDeduper_Expires(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduper(20 * time.Millisecond)
	_, _ = d.Claim(ctx, "EV_1")
	time.Sleep(40 * time.Millisecond)
	if ok, _ := d.Claim(ctx, "EV_1"); !ok {
		t.Fatalf("expired claim should be reclaimable")
	}
}

func TestRedisDeduper_UnreachableReportsError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	d := NewRedisDeduper(rdb, time.Minute)
	if _, err := d.Claim(context.Background(), "EV_1"); err == nil {
		t.Fatalf("expected error from unreachable redis")
	}
}
