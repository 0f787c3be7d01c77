package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("RESULTS_CACHE_TTL_SECONDS", "not-a-number")
	Load()

	if AppConfig.APIPort != "8080" {
		t.Errorf("APIPort = %q", AppConfig.APIPort)
	}
	if AppConfig.ResultsCacheTTL() != 300*time.Second {
		t.Errorf("unparsable ttl should fall back, got %v", AppConfig.ResultsCacheTTL())
	}
	if !strings.Contains(AppConfig.DBConnStr, "host=db.internal") {
		t.Errorf("DBConnStr = %q", AppConfig.DBConnStr)
	}
	if AppConfig.CarryOverMaxDepth != 32 || AppConfig.CacheDriver != "redis" {
		t.Errorf("defaults = %+v", AppConfig)
	}
}

func TestLoadSQLite(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("BUILD_LOCK_TTL_SECONDS", "7")
	t.Setenv("CACHE_DRIVER", "memory")
	Load()

	if !strings.HasPrefix(AppConfig.DBConnStr, "file:/tmp/x.db?") || !strings.Contains(AppConfig.DBConnStr, "foreign_keys(1)") {
		t.Errorf("DBConnStr = %q", AppConfig.DBConnStr)
	}
	if AppConfig.BuildLockTTL() != 7*time.Second || AppConfig.CacheDriver != "memory" {
		t.Errorf("config = %+v", AppConfig)
	}
}
