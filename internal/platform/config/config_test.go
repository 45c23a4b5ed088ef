package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.True(t, cfg.Chain.Simulated())
	assert.Equal(t, uint8(18), cfg.Mint.TokenDecimals)
	assert.Equal(t, uint64(300000), cfg.Mint.GasLimit)
	assert.Equal(t, 5*time.Second, cfg.Mint.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Mint.ConfirmTimeout)
	assert.Equal(t, 30*time.Second, cfg.Mint.SubmitTimeout)
	assert.Equal(t, 2*time.Second, cfg.Sim.BlockInterval)
	assert.Equal(t, int64(1337), cfg.Sim.NetworkID)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ETH_NODE_URL", "http://node:8545")
	t.Setenv("PRIVATE_KEY", "0xabc")
	t.Setenv("CONTRACT_ADDRESS", "0x00000000000000000000000000000000000c0de0")
	t.Setenv("CONFIRM_POLL_INTERVAL", "250ms")
	t.Setenv("CONFIRM_TIMEOUT", "10s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SIM_MINTERS", "0xAb, 0xab,0x02")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr())
	assert.False(t, cfg.Chain.Simulated())
	assert.Equal(t, 250*time.Millisecond, cfg.Mint.PollInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"0xAb", "0x02"}, cfg.Sim.Minters)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "node without key or contract",
			env:  map[string]string{"ETH_NODE_URL": "http://node:8545"},
			want: "PRIVATE_KEY is required",
		},
		{
			name: "timeout shorter than poll interval",
			env:  map[string]string{"CONFIRM_POLL_INTERVAL": "10s", "CONFIRM_TIMEOUT": "1s"},
			want: "CONFIRM_TIMEOUT must not be shorter",
		},
		{
			name: "malformed duration",
			env:  map[string]string{"SUBMIT_TIMEOUT": "soon"},
			want: "parse env",
		},
		{
			name: "redis lock ttl too short to renew",
			env:  map[string]string{"REDIS_URL": "redis://cache:6379", "REDIS_LOCK_TTL": "500ms"},
			want: "REDIS_LOCK_TTL must be at least 3s",
		},
		{
			name: "negative supply",
			env:  map[string]string{"SIM_INITIAL_SUPPLY": "-1"},
			want: "SIM_INITIAL_SUPPLY",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
