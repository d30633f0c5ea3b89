package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrSnakeDoc/appendix/internal/logger"
)

func testOptions(addr string) ConnectOptions {
	return ConnectOptions{
		Addr:           addr,
		DialTimeout:    2 * time.Second,
		ReadTimeout:    time.Second,
		WriteTimeout:   time.Second,
		PoolSize:       4,
		ConnectTimeout: 30 * time.Second,
		RetryInterval:  time.Second,
		MaxWait:        10 * time.Second,
		PingTimeout:    2 * time.Second,
		WarnThreshold:  3,
	}
}

func TestNewConnects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), testOptions(mr.Addr()), logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("Set: %v", err)
	}
}

func TestNewGivesUpAfterTimeout(t *testing.T) {
	opts := testOptions("127.0.0.1:1")
	opts.ConnectTimeout = 150 * time.Millisecond
	opts.RetryInterval = 20 * time.Millisecond
	opts.MaxWait = 40 * time.Millisecond
	opts.PingTimeout = 20 * time.Millisecond
	opts.DialTimeout = 20 * time.Millisecond

	start := time.Now()
	if _, err := New(context.Background(), opts, logger.NewNop()); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("took %v to give up", elapsed)
	}
}

func TestNewStopsOnCancel(t *testing.T) {
	opts := testOptions("127.0.0.1:1")
	opts.RetryInterval = 20 * time.Millisecond
	opts.PingTimeout = 20 * time.Millisecond
	opts.DialTimeout = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := New(ctx, opts, logger.NewNop()); err == nil {
		t.Fatal("expected error after cancel")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancel ignored, took %v", elapsed)
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	opts := testOptions("127.0.0.1:1")
	opts.ConnectTimeout = 0
	if _, err := New(context.Background(), opts, logger.NewNop()); err == nil {
		t.Fatal("expected validation error")
	}
}
