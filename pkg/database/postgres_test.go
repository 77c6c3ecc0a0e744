package database

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestPoolOptionsApply(t *testing.T) {
	config, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/prepcoach?sslmode=disable")
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	defaultMax := config.MaxConns

	PoolOptions{}.apply(config)
	if config.MaxConns != defaultMax {
		t.Fatalf("zero options changed max conns to %d", config.MaxConns)
	}

	PoolOptions{MaxConns: 20, ConnectTimeout: 3 * time.Second}.apply(config)
	if config.MaxConns != 20 || config.ConnConfig.ConnectTimeout != 3*time.Second {
		t.Fatalf("unexpected config: max=%d timeout=%s", config.MaxConns, config.ConnConfig.ConnectTimeout)
	}
}
