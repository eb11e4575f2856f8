package main

import (
	"testing"

	"github.com/dentalops/recallbridge/internal/cache"
	"github.com/dentalops/recallbridge/internal/config"
)

func testCfg() config.Config {
	return config.Config{
		Practice: config.PracticeConfig{
			PracticeID:       "prac-1",
			ActiveCampaignID: "camp-1",
			KillSwitch:       config.KillSwitchOff,
			Mode:             config.ModeDryRun,
		},
	}
}

func TestNewDedupeCache_MemoryWhenNoRedis(t *testing.T) {
	c := newDedupeCache(testCfg())
	if _, ok := c.(*cache.Memory); !ok {
		t.Fatalf("expected in-memory cache, got %T", c)
	}
}

func TestNewDedupeCache_RedisWhenConfigured(t *testing.T) {
	cfg := testCfg()
	cfg.Redis.Addr = "localhost:6379"
	c := newDedupeCache(cfg)
	if _, ok := c.(*cache.Redis); !ok {
		t.Fatalf("expected redis cache, got %T", c)
	}
}
