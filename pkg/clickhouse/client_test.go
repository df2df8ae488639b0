package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

func TestOptions(t *testing.T) {
	cfg := ClientConfig{}
	for _, opt := range []ClientOption{
		WithHost("ch.local", 8123),
		WithDatabase("agent"),
		WithCredentials("u", "p"),
		WithHTTP(true),
		WithMaxExecutionTime(30 * time.Second),
	} {
		opt(&cfg)
	}
	o := options(cfg)
	if len(o.Addr) != 1 || o.Addr[0] != "ch.local:8123" {
		t.Fatalf("addr %v", o.Addr)
	}
	if o.Auth.Database != "agent" || o.Auth.Username != "u" || o.Auth.Password != "p" {
		t.Fatalf("auth %+v", o.Auth)
	}
	if o.Protocol != ch.HTTP {
		t.Fatalf("expected http protocol")
	}
	if o.Settings["max_execution_time"] != 30 {
		t.Fatalf("settings %v", o.Settings)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatalf("expected error without host")
	}
}
