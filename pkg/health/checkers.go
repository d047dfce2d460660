package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports the dependency unhealthy when Ping fails.
func PingCheck(name string, p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return errors.Wrapf(p.Ping(ctx), "ping %s", name)
	}
}

// RedisCheck pings the promotion cache.
func RedisCheck(client redis.UniversalClient) CheckFunc {
	return func(ctx context.Context) error {
		return errors.Wrap(client.Ping(ctx).Err(), "ping redis")
	}
}

// GoroutineCountCheck fails when the goroutine count exceeds threshold,
// which usually means a leak.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when any recorded GC pause exceeds threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		if len(stats.Pause) == 0 {
			return nil
		}
		if worst := slices.Max(stats.Pause); worst > threshold {
			return errors.Errorf("GC pause %s exceeds threshold %s", worst, threshold)
		}
		return nil
	}
}
