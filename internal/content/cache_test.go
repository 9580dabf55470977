package content

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/progress"
)

func unreachableRedis(t *testing.T) *cache.Cache {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return &cache.Cache{Client: client}
}

func TestRedisDifficultyCache_Unavailable(t *testing.T) {
	dc := NewRedisDifficultyCache(unreachableRedis(t), time.Minute)

	if _, ok, err := dc.Get(t.Context(), "u1", "c1"); err == nil || ok {
		t.Errorf("Get() = ok %v, err %v; want error", ok, err)
	}
	if err := dc.Set(t.Context(), "u1", "c1", progress.Advanced); err == nil {
		t.Error("Set() should fail against an unreachable server")
	}
	if err := dc.Invalidate(t.Context(), "u1", "c1"); err == nil {
		t.Error("Invalidate() should fail against an unreachable server")
	}
}

func TestSelector_RedisUnavailableFallsBack(t *testing.T) {
	ctx := t.Context()
	store := progress.NewMemoryStore()
	orch := progress.NewOrchestrator(progress.OrchestratorConfig{Store: store})
	if _, err := orch.SubmitScore(ctx, "u1", "c1", "intro", 85); err != nil {
		t.Fatalf("SubmitScore() error = %v", err)
	}

	s := NewSelector(testCatalog(), store, NewRedisDifficultyCache(unreachableRedis(t), time.Minute))
	got, err := s.ForLearner(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("ForLearner() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "deep" {
		t.Errorf("ForLearner() = %+v, want deep only", got)
	}
}

func TestDifficultyKey(t *testing.T) {
	if got := difficultyKey("u1", "c1"); got != "learn:difficulty:u1:c1" {
		t.Errorf("difficultyKey() = %q", got)
	}
}
