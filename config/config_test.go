package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("REDIS_HOST", "")
	t.Setenv("S3_BUCKET", "")

	cfg := LoadConfig()

	req.Equal("8080", cfg.AppPort)
	req.Equal("0.3", cfg.NegotiationLimit)
	req.Equal("0.5", cfg.NegotiationHardFloor)
	req.Equal(time.Minute, cfg.SweepInterval)
	req.Equal(2000, cfg.MaxMessageLength)
	req.False(cfg.RedisEnabled())
	req.False(cfg.ArchiveEnabled())
}

func TestLoadConfig_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("STORE_DRIVER", StoreMemory)
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("MAX_MESSAGE_LENGTH", "not-a-number")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("S3_BUCKET", "transcripts")
	t.Setenv("S3_REGION", "eu-west-1")

	cfg := LoadConfig()

	req.Equal(StoreMemory, cfg.StoreDriver)
	req.Equal(30*time.Second, cfg.SweepInterval)
	req.Equal(2000, cfg.MaxMessageLength)
	req.True(cfg.RedisEnabled())
	req.True(cfg.ArchiveEnabled())
}
