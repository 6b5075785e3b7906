package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/dermesser/clusterrpc/dispatch"
	"github.com/dermesser/clusterrpc/message"
)

func okHandler(ctx context.Context, hctx *dispatch.Context) {
	hctx.Ok = true
	hctx.Response = hctx.Input
}

func TestChainOrdersExecution(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, hctx *dispatch.Context) {
				order = append(order, name+":before")
				next(ctx, hctx)
				order = append(order, name+":after")
			}
		}
	}

	chain := Chain(mark("A"), mark("B"))
	handler := chain(okHandler)

	hctx := &dispatch.Context{Input: []byte("x")}
	handler(context.Background(), hctx)

	want := []string{"A:before", "B:before", "B:after", "A:after"}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
	if !hctx.Ok || string(hctx.Response) != "x" {
		t.Errorf("unexpected final context: %+v", hctx)
	}
}

func TestLoggingMiddlewarePassesThrough(t *testing.T) {
	handler := LoggingMiddleware("echo.any")(okHandler)
	hctx := &dispatch.Context{Input: []byte("hi")}
	handler(context.Background(), hctx)
	if !hctx.Ok || string(hctx.Response) != "hi" {
		t.Errorf("unexpected context after LoggingMiddleware: %+v", hctx)
	}
}

func TestTimeOutMiddlewareAllowsFastHandler(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(okHandler)
	hctx := &dispatch.Context{Input: []byte("hi")}
	handler(context.Background(), hctx)
	if !hctx.Ok {
		t.Errorf("expected fast handler to succeed, got %+v", hctx)
	}
}

func TestTimeOutMiddlewareFailsSlowHandler(t *testing.T) {
	slow := func(ctx context.Context, hctx *dispatch.Context) {
		time.Sleep(50 * time.Millisecond)
		hctx.Ok = true
	}
	handler := TimeOutMiddleware(5 * time.Millisecond)(slow)
	hctx := &dispatch.Context{}
	handler(context.Background(), hctx)
	if hctx.Ok {
		t.Errorf("expected timeout to mark context as failed")
	}
	if hctx.ErrorString != "request timed out" {
		t.Errorf("unexpected error string: %q", hctx.ErrorString)
	}
	if hctx.Status != message.StatusTimeout {
		t.Errorf("expected StatusTimeout, got %v", hctx.Status)
	}
}

func TestRateLimitMiddlewareRejectsOverBurst(t *testing.T) {
	handler := RateLimitMiddleware(1, 1)(okHandler)

	first := &dispatch.Context{Input: []byte("a")}
	handler(context.Background(), first)
	if !first.Ok {
		t.Fatalf("expected first request to pass, got %+v", first)
	}

	second := &dispatch.Context{Input: []byte("b")}
	handler(context.Background(), second)
	if second.Ok {
		t.Errorf("expected second request to be rate limited, got %+v", second)
	}
	if second.ErrorString != "rate limit exceeded" {
		t.Errorf("unexpected error string: %q", second.ErrorString)
	}
	if second.Status != message.StatusLoadshed {
		t.Errorf("expected StatusLoadshed, got %v", second.Status)
	}
}
