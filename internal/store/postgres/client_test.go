package postgres

import (
	"testing"
	"time"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://x@y/z", Host: "ignored"},
			want: "postgres://x@y/z",
		},
		{
			name: "defaults",
			cfg:  ClientConfig{Host: "db", Database: "realloc", User: "bot", Password: "pw"},
			want: "postgres://bot:pw@db:5432/realloc?sslmode=disable",
		},
		{
			name: "escaped password",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "realloc", User: "bot", Password: "p@ss/w", SSLMode: "require"},
			want: "postgres://bot:p%40ss%2Fw@db:6543/realloc?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("DSN=%q, expected %q", got, tt.want)
			}
		})
	}
}

func TestListQuery(t *testing.T) {
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	tests := []struct {
		name     string
		opts     domain.ListOpts
		want     string
		wantArgs int
	}{
		{
			name: "no filters",
			opts: domain.ListOpts{},
			want: "SELECT x FROM t ORDER BY ts DESC, id DESC",
		},
		{
			name:     "paged",
			opts:     domain.ListOpts{Limit: 10, Offset: 20},
			want:     "SELECT x FROM t ORDER BY ts DESC, id DESC LIMIT $1 OFFSET $2",
			wantArgs: 2,
		},
		{
			name:     "until only",
			opts:     domain.ListOpts{Until: &until},
			want:     "SELECT x FROM t WHERE ts <= $1 ORDER BY ts DESC, id DESC",
			wantArgs: 1,
		},
		{
			name:     "window and limit",
			opts:     domain.ListOpts{Since: &since, Until: &until, Limit: 5},
			want:     "SELECT x FROM t WHERE ts >= $1 AND ts <= $2 ORDER BY ts DESC, id DESC LIMIT $3",
			wantArgs: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args := listQuery("SELECT x FROM t", "ts", tt.opts)
			if got != tt.want {
				t.Fatalf("query=%q, expected %q", got, tt.want)
			}
			if len(args) != tt.wantArgs {
				t.Fatalf("args=%v, expected %d", args, tt.wantArgs)
			}
		})
	}
}
