// Package trace implements the optional per-request timing annotation
// described in SPEC_FULL.md §4.4: if a request opts in via want_trace, the
// worker timestamps receive and reply and stamps the response with the
// process hostname and "srvc.procedure" endpoint name.
package trace

import (
	"os"
	"sync"
	"time"

	"github.com/dermesser/clusterrpc/message"
)

var (
	machineNameOnce sync.Once
	machineName     string
)

// MachineName returns the process hostname, computed once and cached for
// the lifetime of the process — every worker reads the same value.
func MachineName() string {
	machineNameOnce.Do(func() {
		name, err := os.Hostname()
		if err != nil {
			name = "unknown"
		}
		machineName = name
	})
	return machineName
}

// nowMicros returns the current time as UNIX microseconds.
func nowMicros() int64 {
	return time.Now().UnixMicro()
}

// Recorder captures the lifecycle of a single traced request. A worker
// calls Start right after decoding a request that has want_trace set, then
// Finish immediately before encoding the response.
type Recorder struct {
	endpoint string
	received int64
}

// Start begins a trace for the given "srvc.procedure" endpoint, stamping
// received_time as the current time.
func Start(endpoint string) *Recorder {
	return &Recorder{endpoint: endpoint, received: nowMicros()}
}

// Finish stamps replied_time and builds the TraceInfo to attach to the
// response. child_calls is always left empty: this core never issues
// downstream calls of its own, the field exists purely for client-side
// composition across hops.
func (r *Recorder) Finish() *message.TraceInfo {
	return &message.TraceInfo{
		ReceivedTime: r.received,
		RepliedTime:  nowMicros(),
		MachineName:  MachineName(),
		EndpointName: r.endpoint,
	}
}
