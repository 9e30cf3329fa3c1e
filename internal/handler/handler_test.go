package handler

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/slab-engine/internal/domain"
	"github.com/kursadbilgin/slab-engine/internal/lifecycle"
	"github.com/kursadbilgin/slab-engine/internal/observability"
	"github.com/kursadbilgin/slab-engine/internal/repository"
	"github.com/kursadbilgin/slab-engine/internal/service"
	"github.com/kursadbilgin/slab-engine/internal/transport"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type testEnv struct {
	app          *fiber.App
	store        *repository.MemorySlabStore
	transitions  *repository.MemoryTransitionRepo
	orchestrator *service.Orchestrator
}

func fixtureSlab(id string, status domain.Status, created time.Time) domain.Slab {
	received := created
	return domain.Slab{
		ID:           id,
		Serial:       "SN-" + id,
		Material:     "Granite",
		Color:        "Black",
		Length:       3200,
		Width:        1600,
		Thickness:    30,
		Cost:         decimal.RequireFromString("1250.50"),
		SlabType:     domain.SlabTypeFull,
		Status:       status,
		ReceivedDate: &received,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func newTestEnv(t *testing.T, commands BatchCommandPublisher, seed ...domain.Slab) *testEnv {
	t.Helper()

	store := repository.NewMemorySlabStore(seed...)
	transitions := repository.NewMemoryTransitionRepo()
	engine := lifecycle.NewEngine()

	slabs := service.NewSlabService(store, transitions, engine, zap.NewNop())

	orchestrator := service.NewOrchestrator(store, engine, zap.NewNop())
	orchestrator.SetItemDelay(0)
	orchestrator.SetTransitionRepository(transitions)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = orchestrator.Shutdown(ctx)
	})

	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	app.Use(observability.CorrelationMiddleware())
	if err := RegisterSlabRoutes(app, slabs); err != nil {
		t.Fatalf("RegisterSlabRoutes() error = %v", err)
	}
	if err := RegisterBatchRoutes(app, orchestrator, commands); err != nil {
		t.Fatalf("RegisterBatchRoutes() error = %v", err)
	}

	return &testEnv{
		app:          app,
		store:        store,
		transitions:  transitions,
		orchestrator: orchestrator,
	}
}

func newJSONRequest(method string, path string, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()
	return doRequest(t, app, newJSONRequest(method, path, body))
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func TestToHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: domain.ErrValidation, want: fiber.StatusBadRequest},
		{name: "business rule", err: domain.ErrBusinessRule, want: fiber.StatusUnprocessableEntity},
		{name: "unit not found", err: &domain.UnitNotFoundError{ID: "s1"}, want: fiber.StatusNotFound},
		{name: "conflict", err: domain.ErrConflict, want: fiber.StatusConflict},
		{name: "not implemented", err: domain.ErrNotImplemented, want: fiber.StatusNotImplemented},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var fiberErr *fiber.Error
			if !errors.As(toHTTPError(tt.err), &fiberErr) {
				t.Fatalf("toHTTPError(%v) is not a fiber error", tt.err)
			}
			if fiberErr.Code != tt.want {
				t.Fatalf("code = %d, want %d", fiberErr.Code, tt.want)
			}
		})
	}

	plain := errors.New("boom")
	if got := toHTTPError(plain); got != plain {
		t.Fatalf("toHTTPError(plain) = %v, want passthrough", got)
	}
}

func TestSplitIDs(t *testing.T) {
	got := splitIDs(" a, ,b,,c ")
	if strings.Join(got, "|") != "a|b|c" {
		t.Fatalf("splitIDs() = %v, want [a b c]", got)
	}
	if got := splitIDs(""); len(got) != 0 {
		t.Fatalf("splitIDs(\"\") = %v, want empty", got)
	}
}

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") && h.pingErr != nil {
			cmd.SetErr(h.pingErr)
			return h.pingErr
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
