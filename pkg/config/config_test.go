package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Agent.ID != "bitcoin_predictor" || c.Agent.AssetID != "bitcoin" {
		t.Fatalf("unexpected agent %+v", c.Agent)
	}
	if c.Agent.TrainingInterval != 6*time.Hour || c.Agent.PollInterval != 5*time.Minute {
		t.Fatalf("unexpected intervals %+v", c.Agent)
	}
	if c.Pipeline.Window != 30 || c.Pipeline.Horizon != 7 || c.Pipeline.Epochs != 50 || c.Pipeline.BatchSize != 32 {
		t.Fatalf("unexpected pipeline %+v", c.Pipeline)
	}
	if c.Pipeline.ValidationSplit != 0.2 || c.Agent.LookbackDays != 730 {
		t.Fatalf("unexpected split/lookback")
	}
	if c.Retry.MaxAttempts != 3 || c.Retry.InitialDelay != time.Second || c.Retry.Multiplier != 2 {
		t.Fatalf("unexpected retry %+v", c.Retry)
	}
	if c.Source.Timeout != 10*time.Second || c.Cache.LatestPriceTTL != 5*time.Minute {
		t.Fatalf("unexpected timeouts")
	}
	if c.Store.Type != "memory" || c.Model.Type != "linear" {
		t.Fatalf("unexpected store/model")
	}
	if len(c.Kafka.Brokers) != 1 || c.Kafka.Brokers[0] != "localhost:9092" {
		t.Fatalf("unexpected brokers %v", c.Kafka.Brokers)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
environment: production
agent:
  asset_id: ethereum
  training_interval: 12h
pipeline:
  window: 60
  horizon: 14
store:
  type: postgres
  postgres:
    host: db.internal
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Agent.AssetID != "ethereum" || c.Agent.TrainingInterval != 12*time.Hour {
		t.Fatalf("file values not applied: %+v", c.Agent)
	}
	if c.Agent.ID != "bitcoin_predictor" {
		t.Fatalf("unset keys keep defaults")
	}
	if c.Pipeline.Window != 60 || c.Pipeline.Horizon != 14 || c.Pipeline.Epochs != 50 {
		t.Fatalf("unexpected pipeline %+v", c.Pipeline)
	}
	if c.Store.Type != "postgres" || c.Store.Postgres.Host != "db.internal" || c.Store.Postgres.Port != 5432 {
		t.Fatalf("unexpected store %+v", c.Store)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown store":   "store:\n  type: sqlite\n",
		"remote no url":   "model:\n  type: remote\n",
		"short lookback":  "agent:\n  lookback_days: 20\n",
		"poll > interval": "agent:\n  training_interval: 1m\n  poll_interval: 5m\n",
		"bad split":       "pipeline:\n  validation_split: 1.5\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("STORE_TYPE", "mongo")
	t.Setenv("MONGO_URI", "mongodb://mongo:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("PORT", "9090")

	c, err := LoadWithEnv(writeFile(t, "store:\n  type: postgres\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Store.Type != "mongo" || c.Store.Mongo.URI != "mongodb://mongo:27017" {
		t.Fatalf("env did not override store: %+v", c.Store)
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected kafka %+v", c.Kafka)
	}
	if c.Server.Port != 9090 {
		t.Fatalf("unexpected port %d", c.Server.Port)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
}
