package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/slab-engine/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	t.Run("livez returns 200", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, nil, nil)

		resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	tests := []struct {
		name       string
		sqlDB      func(t *testing.T) *sql.DB
		rdb        func(t *testing.T) *redis.Client
		wantCode   int
		wantChecks map[string]string
	}{
		{
			name:       "healthy dependencies",
			sqlDB:      stubDB(nil),
			rdb:        stubRedis(nil),
			wantCode:   fiber.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name:       "dependencies down",
			sqlDB:      stubDB(errors.New("postgres down")),
			rdb:        stubRedis(errors.New("redis down")),
			wantCode:   fiber.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "down", "redis": "down"},
		},
		{
			name:       "memory store without redis",
			sqlDB:      func(t *testing.T) *sql.DB { return nil },
			rdb:        func(t *testing.T) *redis.Client { return nil },
			wantCode:   fiber.StatusOK,
			wantChecks: map[string]string{"postgres": "disabled", "redis": "disabled"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
			RegisterHealthRoutes(app, tt.sqlDB(t), tt.rdb(t))

			resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tt.wantCode, string(body))
			}

			var parsed struct {
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(body, &parsed); err != nil {
				t.Fatalf("json unmarshal error = %v", err)
			}
			for dep, want := range tt.wantChecks {
				if parsed.Checks[dep] != want {
					t.Fatalf("checks[%s] = %s, want %s", dep, parsed.Checks[dep], want)
				}
			}
		})
	}
}

func stubDB(pingErr error) func(t *testing.T) *sql.DB {
	return func(t *testing.T) *sql.DB {
		db := sql.OpenDB(stubConnector{pingErr: pingErr})
		t.Cleanup(func() { _ = db.Close() })
		return db
	}
}

func stubRedis(pingErr error) func(t *testing.T) *redis.Client {
	return func(t *testing.T) *redis.Client {
		rdb := newStubRedisClient(pingErr)
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}
}
