package broker

import (
	"context"
	"testing"
	"time"

	czmq "github.com/zeromq/goczmq/v4"

	"github.com/dermesser/clusterrpc/codec"
	"github.com/dermesser/clusterrpc/dispatch"
	"github.com/dermesser/clusterrpc/message"
)

type echoService struct{}

func (e *echoService) Any(ctx *dispatch.Context) {
	ctx.Ok = true
	ctx.Response = ctx.Input
}

func (e *echoService) Fail(ctx *dispatch.Context) {
	ctx.Ok = false
	ctx.ErrorString = "bad input"
}

// dealerClient returns a DEALER socket connected to endpoint. Tests send a
// well-formed 3-frame request on it; the frontend ROUTER prepends the peer's
// identity on receipt, producing the 4-frame envelope the broker expects.
func dealerClient(t *testing.T, endpoint string) *czmq.Sock {
	t.Helper()
	sock, err := czmq.NewDealer(endpoint)
	if err != nil {
		t.Fatalf("NewDealer failed: %v", err)
	}
	t.Cleanup(sock.Destroy)
	return sock
}

func startTestBroker(t *testing.T, addr string, workerCount, queueCap int) context.CancelFunc {
	t.Helper()
	dispatchFn, err := dispatch.NewReflectDispatcher(&echoService{})
	if err != nil {
		t.Fatalf("NewReflectDispatcher failed: %v", err)
	}

	b, err := New(Options{
		Address:       addr,
		Dispatch:      dispatchFn,
		WorkerCount:   workerCount,
		QueueCapacity: queueCap,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := b.Run(ctx); err != nil {
			t.Logf("broker.Run returned: %v", err)
		}
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Errorf("broker did not shut down in time")
		}
	})

	time.Sleep(200 * time.Millisecond) // let sockets bind and workers register
	return cancel
}

func TestBrokerEchoesRequest(t *testing.T) {
	addr := "inproc://broker-test-echo"
	startTestBroker(t, addr, 2, 2)

	client := dealerClient(t, addr)

	req := &message.RPCRequest{RpcID: "r1", Srvc: "echoService", Procedure: "Any", Data: []byte("hello")}
	payload := codec.EncodeRequest(req)
	if err := client.SendMessage([][]byte{[]byte("req-1"), {}, payload}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	frames, err := client.RecvMessage()
	if err != nil {
		t.Fatalf("RecvMessage failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames back on the dealer (request_id, \"\", payload), got %d", len(frames))
	}
	resp, err := codec.DecodeResponse(frames[2])
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if resp.ResponseStatus != message.StatusOK {
		t.Errorf("expected StatusOK, got %v", resp.ResponseStatus)
	}
	if string(resp.ResponseData) != "hello" {
		t.Errorf("expected echoed data, got %q", resp.ResponseData)
	}
}

func TestBrokerNotFoundForUnknownService(t *testing.T) {
	addr := "inproc://broker-test-notfound"
	startTestBroker(t, addr, 1, 1)

	client := dealerClient(t, addr)

	req := &message.RPCRequest{RpcID: "r2", Srvc: "missing", Procedure: "any", Data: []byte("x")}
	payload := codec.EncodeRequest(req)
	if err := client.SendMessage([][]byte{[]byte("req-2"), {}, payload}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	frames, err := client.RecvMessage()
	if err != nil {
		t.Fatalf("RecvMessage failed: %v", err)
	}
	resp, err := codec.DecodeResponse(frames[2])
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if resp.ResponseStatus != message.StatusNotFound {
		t.Errorf("expected StatusNotFound, got %v", resp.ResponseStatus)
	}
	if resp.ErrorMessage != "no handler could be found" {
		t.Errorf("unexpected error message: %q", resp.ErrorMessage)
	}
}

func TestBrokerHandlerFailurePath(t *testing.T) {
	addr := "inproc://broker-test-fail"
	startTestBroker(t, addr, 1, 1)

	client := dealerClient(t, addr)

	req := &message.RPCRequest{RpcID: "r3", Srvc: "echoService", Procedure: "Fail", Data: []byte("x")}
	payload := codec.EncodeRequest(req)
	if err := client.SendMessage([][]byte{[]byte("req-3"), {}, payload}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	frames, err := client.RecvMessage()
	if err != nil {
		t.Fatalf("RecvMessage failed: %v", err)
	}
	resp, err := codec.DecodeResponse(frames[2])
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if resp.ResponseStatus != message.StatusNotOK {
		t.Errorf("expected StatusNotOK, got %v", resp.ResponseStatus)
	}
	if resp.ErrorMessage != "bad input" {
		t.Errorf("unexpected error message: %q", resp.ErrorMessage)
	}
}

func TestBrokerShedsLoadWhenSaturated(t *testing.T) {
	// A single worker with a one-slot queue (a QueueCapacity of 0 would be
	// replaced by DefaultQueueCapacity): while the first request holds the
	// worker and a second fills the queue, the next concurrent request must
	// be shed with StatusOverloadedRetry. The handler sleeps briefly to hold
	// the worker busy.
	addr := "inproc://broker-test-overload"

	dispatchFn, err := dispatch.NewReflectDispatcher(&slowService{})
	if err != nil {
		t.Fatalf("NewReflectDispatcher failed: %v", err)
	}
	b, err := New(Options{Address: addr, Dispatch: dispatchFn, WorkerCount: 1, QueueCapacity: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	time.Sleep(200 * time.Millisecond)

	c1 := dealerClient(t, addr)
	c2 := dealerClient(t, addr)
	c3 := dealerClient(t, addr)

	req := &message.RPCRequest{RpcID: "slow", Srvc: "slowService", Procedure: "Slow", Data: []byte("x")}
	payload := codec.EncodeRequest(req)

	if err := c1.SendMessage([][]byte{[]byte("req-1"), {}, payload}); err != nil {
		t.Fatalf("c1 SendMessage failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the broker dispatch to the only worker
	if err := c3.SendMessage([][]byte{[]byte("req-3"), {}, payload}); err != nil {
		t.Fatalf("c3 SendMessage failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the broker fill the one-slot queue
	if err := c2.SendMessage([][]byte{[]byte("req-2"), {}, payload}); err != nil {
		t.Fatalf("c2 SendMessage failed: %v", err)
	}

	frames, err := c2.RecvMessage()
	if err != nil {
		t.Fatalf("c2 RecvMessage failed: %v", err)
	}
	resp, err := codec.DecodeResponse(frames[2])
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if resp.ResponseStatus != message.StatusOverloadedRetry {
		t.Errorf("expected StatusOverloadedRetry, got %v", resp.ResponseStatus)
	}

	if _, err := c1.RecvMessage(); err != nil {
		t.Fatalf("c1 RecvMessage failed: %v", err)
	}
}

type slowService struct{}

func (s *slowService) Slow(ctx *dispatch.Context) {
	time.Sleep(150 * time.Millisecond)
	ctx.Ok = true
	ctx.Response = ctx.Input
}
