package testbed

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	rpcstack "github.com/wippyai/rpc-stack"
	"github.com/wippyai/rpc-stack/status"
)

// stageEvents records pipeline activity across filters.
type stageEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *stageEvents) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *stageEvents) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *stageEvents) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// stage is a pipeline filter with fixed region sizes. It records its
// lifecycle, forwards ops it cannot complete, and completes ops at the
// transport edge.
type stage struct {
	name     string
	chanSize int
	callSize int
	rec      *stageEvents
}

func (s *stage) Name() string         { return s.name }
func (s *stage) ChannelDataSize() int { return s.chanSize }
func (s *stage) CallDataSize() int    { return s.callSize }

func (s *stage) InitChannelElem(elem *rpcstack.ChannelElement, cfg *rpcstack.ChannelArgs, meta any, head, tail bool) {
	s.rec.add("init_channel %s head=%t tail=%t", s.name, head, tail)
}

func (s *stage) DestroyChannelElem(elem *rpcstack.ChannelElement) {
	s.rec.add("destroy_channel %s", s.name)
}

func (s *stage) InitCallElem(elem *rpcstack.CallElement, transportData any, initialOp *rpcstack.CallOp) {
	s.rec.add("init_call %s", s.name)
}

func (s *stage) DestroyCallElem(elem *rpcstack.CallElement) {
	s.rec.add("destroy_call %s", s.name)
}

func (s *stage) ChannelOp(elem, from *rpcstack.ChannelElement, op *rpcstack.ChannelOp) {
	s.rec.add("channel_op %s at=%d", op.Type, elem.Index())
	next := elem.Index() + int(op.Dir)
	if next >= 0 && next < elem.Stack().Count() {
		elem.NextOp(op)
	}
}

func (s *stage) StartTransportOp(elem *rpcstack.CallElement, op *rpcstack.CallOp) {
	s.rec.add("transport_op %s at=%d", s.name, elem.Index())
	if elem.Index()+1 < elem.Stack().Count() {
		elem.NextOp(op)
		return
	}
	if op.CancelStatus != status.OK {
		s.rec.add("call cancelled with %s", op.CancelStatus)
	}
}

func newPipeline(t testing.TB, rec *stageEvents) *rpcstack.ChannelStack {
	t.Helper()
	stack, err := rpcstack.NewBuilder().
		Append(
			&stage{name: "auth", chanSize: 8, callSize: 4, rec: rec},
			&stage{name: "retry", chanSize: 0, callSize: 4, rec: rec},
			&stage{name: "transport", chanSize: 16, callSize: 0, rec: rec},
		).
		Build()
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	return stack
}

func TestPipeline_EndToEnd(t *testing.T) {
	rec := &stageEvents{}
	stack := newPipeline(t, rec)

	if got := stack.CallStackSize(); got != 96 {
		t.Fatalf("CallStackSize() = %d, want 96", got)
	}

	call := stack.NewCall(nil, nil)
	rec.reset()

	call.Element(0).SendCancel()
	got := rec.list()
	want := []string{
		"transport_op retry at=1",
		"transport_op transport at=2",
		"call cancelled with Cancelled",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("cancel trace:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	rec.reset()
	call.Destroy()
	stack.Destroy()
	got = rec.list()
	want = []string{
		"destroy_call auth",
		"destroy_call retry",
		"destroy_call transport",
		"destroy_channel auth",
		"destroy_channel retry",
		"destroy_channel transport",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("destroy order:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

// meterStage counts calls in its channel region, shared across calls.
type meterStage struct {
	stage
}

func (m *meterStage) InitChannelElem(elem *rpcstack.ChannelElement, cfg *rpcstack.ChannelArgs, meta any, head, tail bool) {
	binary.LittleEndian.PutUint64(elem.ChannelData(), 0)
}

func (m *meterStage) InitCallElem(elem *rpcstack.CallElement, transportData any, initialOp *rpcstack.CallOp) {
	data := elem.ChannelData()
	binary.LittleEndian.PutUint64(data, binary.LittleEndian.Uint64(data)+1)
}

func TestPipeline_SharedChannelState(t *testing.T) {
	rec := &stageEvents{}
	meter := &meterStage{stage: stage{name: "meter", chanSize: 8, rec: rec}}
	stack, err := rpcstack.NewBuilder().
		Append(meter, &stage{name: "transport", rec: rec}).
		Build()
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	defer stack.Destroy()

	const calls = 10
	for i := 0; i < calls; i++ {
		call := stack.NewCall(nil, nil)
		call.Destroy()
	}

	count := binary.LittleEndian.Uint64(stack.Element(0).ChannelData())
	if count != calls {
		t.Errorf("meter counted %d calls, want %d", count, calls)
	}
}

// scratchStage writes a caller-chosen tag into its call region and checks
// it survives the op walk. Call regions must never be shared between
// concurrent calls.
type scratchStage struct {
	stage
}

func (s *scratchStage) InitCallElem(elem *rpcstack.CallElement, transportData any, initialOp *rpcstack.CallOp) {
	binary.LittleEndian.PutUint32(elem.CallData(), transportData.(uint32))
}

func (s *scratchStage) StartTransportOp(elem *rpcstack.CallElement, op *rpcstack.CallOp) {
	got := binary.LittleEndian.Uint32(elem.CallData())
	want := op.SendOps.(uint32)
	if got != want {
		panic(fmt.Sprintf("call region clobbered: tag %d, want %d", got, want))
	}
}

func TestPipeline_ConcurrentCalls(t *testing.T) {
	rec := &stageEvents{}
	scratch := &scratchStage{stage: stage{name: "scratch", callSize: 4, rec: rec}}
	stack, err := rpcstack.NewBuilder().Append(scratch).Build()
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	defer stack.Destroy()

	const numGoroutines = 8
	const callsPerGoroutine = 50

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs <- fmt.Errorf("goroutine %d: %v", goroutineID, r)
				}
			}()

			for i := 0; i < callsPerGoroutine; i++ {
				tag := uint32(goroutineID<<16 | i)
				call := stack.NewCall(tag, nil)
				call.StartOp(&rpcstack.CallOp{SendOps: tag})
				if call.Element(0).Stack() != call {
					errs <- fmt.Errorf("goroutine %d: element lost its stack", goroutineID)
					call.Destroy()
					return
				}
				call.Destroy()
			}
		}(g)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent error: %v", err)
		}
	}
}

// policyStage consults a WASM policy to admit or cancel frames.
type policyStage struct {
	stage
	allow api.Function
	limit uint32
}

func (p *policyStage) InitChannelElem(elem *rpcstack.ChannelElement, cfg *rpcstack.ChannelArgs, meta any, head, tail bool) {
	binary.LittleEndian.PutUint32(elem.ChannelData(), p.limit)
}

func (p *policyStage) StartTransportOp(elem *rpcstack.CallElement, op *rpcstack.CallOp) {
	if frame, ok := op.SendOps.([]byte); ok && op.CancelStatus == status.OK {
		limit := binary.LittleEndian.Uint32(elem.ChannelData())
		res, err := p.allow.Call(context.Background(), uint64(len(frame)), uint64(limit))
		if err != nil || len(res) == 0 || res[0] == 0 {
			op.SendOps = nil
			op.CancelStatus = status.ResourceExhausted
		}
	}
	elem.NextOp(op)
}

func TestPipeline_WasmPolicy(t *testing.T) {
	ctx := context.Background()

	wasmBytes, err := os.ReadFile("testdata/policy.wasm")
	if err != nil {
		t.Skipf("testdata/policy.wasm not found: %v", err)
	}

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig())
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		t.Fatalf("compile policy: %v", err)
	}
	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		t.Fatalf("instantiate policy: %v", err)
	}
	allow := mod.ExportedFunction("allow")
	if allow == nil {
		t.Fatalf("policy does not export allow")
	}

	rec := &stageEvents{}
	policy := &policyStage{
		stage: stage{name: "policy", chanSize: 4, rec: rec},
		allow: allow,
		limit: 1024,
	}
	stack, err := rpcstack.NewBuilder().
		Append(policy, &stage{name: "transport", rec: rec}).
		Build()
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	defer stack.Destroy()

	tests := []struct {
		name      string
		frameSize int
		cancelled bool
	}{
		{"small_frame_passes", 512, false},
		{"exact_limit_passes", 1024, false},
		{"oversized_frame_cancelled", 4096, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec.reset()
			call := stack.NewCall(nil, nil)
			defer call.Destroy()

			call.StartOp(&rpcstack.CallOp{SendOps: make([]byte, tc.frameSize)})

			cancelled := false
			for _, ev := range rec.list() {
				if strings.Contains(ev, "call cancelled") {
					cancelled = true
				}
			}
			if cancelled != tc.cancelled {
				t.Errorf("frame of %d bytes cancelled = %t, want %t", tc.frameSize, cancelled, tc.cancelled)
			}
		})
	}
}

// Benchmarks

func BenchmarkPipeline_NewCall(b *testing.B) {
	stack, err := rpcstack.NewBuilder().
		Append(
			&muteStage{name: "auth", callSize: 4},
			&muteStage{name: "retry", callSize: 4},
			&muteStage{name: "transport"},
		).
		Build()
	if err != nil {
		b.Fatal(err)
	}
	defer stack.Destroy()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stack.NewCall(nil, nil).Destroy()
	}
}

func BenchmarkPipeline_Cancel(b *testing.B) {
	stack, err := rpcstack.NewBuilder().
		Append(
			&muteStage{name: "auth", callSize: 4},
			&muteStage{name: "retry", callSize: 4},
			&muteStage{name: "transport"},
		).
		Build()
	if err != nil {
		b.Fatal(err)
	}
	defer stack.Destroy()

	call := stack.NewCall(nil, nil)
	defer call.Destroy()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		call.Element(0).SendCancel()
	}
}

// muteStage is a stage without recording overhead for benchmarks.
type muteStage struct {
	name     string
	chanSize int
	callSize int
}

func (s *muteStage) Name() string         { return s.name }
func (s *muteStage) ChannelDataSize() int { return s.chanSize }
func (s *muteStage) CallDataSize() int    { return s.callSize }

func (s *muteStage) InitChannelElem(elem *rpcstack.ChannelElement, cfg *rpcstack.ChannelArgs, meta any, head, tail bool) {
}

func (s *muteStage) DestroyChannelElem(elem *rpcstack.ChannelElement) {}

func (s *muteStage) InitCallElem(elem *rpcstack.CallElement, transportData any, initialOp *rpcstack.CallOp) {
}

func (s *muteStage) DestroyCallElem(elem *rpcstack.CallElement) {}

func (s *muteStage) ChannelOp(elem, from *rpcstack.ChannelElement, op *rpcstack.ChannelOp) {}

func (s *muteStage) StartTransportOp(elem *rpcstack.CallElement, op *rpcstack.CallOp) {
	if elem.Index()+1 < elem.Stack().Count() {
		elem.NextOp(op)
	}
}
