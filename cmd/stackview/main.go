package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/term"

	rpcstack "github.com/wippyai/rpc-stack"
	"github.com/wippyai/rpc-stack/errors"
	"github.com/wippyai/rpc-stack/status"
)

func main() {
	var (
		filterSpec  = flag.String("filters", "", "Pipeline spec (name:chanBytes:callBytes,...)")
		trace       = flag.Bool("trace", false, "Run a cancellation through a call and print the op trace")
		verbose     = flag.Bool("v", false, "Log stack lifecycle events")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *filterSpec == "" {
		fmt.Fprintln(os.Stderr, "Usage: stackview -filters auth:8:4,retry:0:4,transport:16:0")
		fmt.Fprintln(os.Stderr, "       stackview -filters <spec> -trace")
		fmt.Fprintln(os.Stderr, "       stackview -filters <spec> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*filterSpec); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*filterSpec, *trace, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(spec string, trace, verbose bool) error {
	tl := &traceLog{}
	demos, err := parseFilterSpec(spec, tl)
	if err != nil {
		return err
	}

	var logger *zap.Logger
	if verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer logger.Sync()
	}

	b := rpcstack.NewBuilder().WithLogger(logger)
	for _, d := range demos {
		b.Append(d)
	}
	stack, err := b.Build()
	if err != nil {
		return fmt.Errorf("build stack: %w", err)
	}
	defer stack.Destroy()

	fmt.Printf("Pipeline: %s\n", spec)
	fmt.Printf("\nChannel stack: %d bytes\n", rpcstack.ChannelStackSize(filterList(demos)))
	printLayout(stack.Layout())

	call := stack.NewCall(nil, nil)
	defer call.Destroy()

	fmt.Printf("\nCall stack: %d bytes\n", stack.CallStackSize())
	printLayout(call.Layout())

	if trace {
		if stack.Count() < 2 {
			return errors.InvalidInput(errors.PhaseOp, "cancel trace needs at least two filters")
		}
		tl.reset()
		fmt.Printf("\nOp trace (cancel from element 0):\n")
		call.Element(0).SendCancel()
		for _, line := range tl.list() {
			fmt.Printf("  %s\n", line)
		}
	}

	return nil
}

func filterList(demos []*demoFilter) []rpcstack.Filter {
	filters := make([]rpcstack.Filter, len(demos))
	for i, d := range demos {
		filters[i] = d
	}
	return filters
}

func printLayout(regs []rpcstack.RegionInfo) {
	fmt.Printf("  %6s  %5s  %4s  %s\n", "OFFSET", "SIZE", "PAD", "REGION")
	for _, r := range regs {
		fmt.Printf("  %6d  %5d  %4d  %s\n", r.Off, r.Size, r.Pad, r.Name)
	}
}

// parseFilterSpec turns "name:chanBytes:callBytes,..." into demo filters
// sharing one trace log.
func parseFilterSpec(spec string, tl *traceLog) ([]*demoFilter, error) {
	var demos []*demoFilter
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 || parts[0] == "" {
			return nil, errors.InvalidInput(errors.PhaseParse,
				fmt.Sprintf("entry %q: want name:chanBytes:callBytes", entry))
		}
		chanSize, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, errors.InvalidInput(errors.PhaseParse,
				fmt.Sprintf("entry %q: bad channel size: %v", entry, err))
		}
		callSize, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, errors.InvalidInput(errors.PhaseParse,
				fmt.Sprintf("entry %q: bad call size: %v", entry, err))
		}
		demos = append(demos, &demoFilter{
			name:     parts[0],
			chanSize: chanSize,
			callSize: callSize,
			trace:    tl,
		})
	}
	return demos, nil
}

// traceLog accumulates op trace lines across filters.
type traceLog struct {
	mu    sync.Mutex
	lines []string
}

func (t *traceLog) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, fmt.Sprintf(format, args...))
}

func (t *traceLog) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

func (t *traceLog) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = nil
}

// demoFilter is a pass-through pipeline stage used to visualize layout
// and op flow. It fills its channel region with its name so region
// ownership is visible in dumps.
type demoFilter struct {
	name     string
	chanSize int
	callSize int
	trace    *traceLog
}

func (d *demoFilter) Name() string         { return d.name }
func (d *demoFilter) ChannelDataSize() int { return d.chanSize }
func (d *demoFilter) CallDataSize() int    { return d.callSize }

func (d *demoFilter) InitChannelElem(elem *rpcstack.ChannelElement, cfg *rpcstack.ChannelArgs, meta any, head, tail bool) {
	data := elem.ChannelData()
	for i := range data {
		data[i] = d.name[i%len(d.name)]
	}
}

func (d *demoFilter) DestroyChannelElem(elem *rpcstack.ChannelElement) {}

func (d *demoFilter) InitCallElem(elem *rpcstack.CallElement, transportData any, initialOp *rpcstack.CallOp) {
}

func (d *demoFilter) DestroyCallElem(elem *rpcstack.CallElement) {}

func (d *demoFilter) ChannelOp(elem, from *rpcstack.ChannelElement, op *rpcstack.ChannelOp) {
	d.trace.add("channel op %s at element %d (%s)", op.Type, elem.Index(), d.name)
	next := elem.Index() + int(op.Dir)
	if next >= 0 && next < elem.Stack().Count() {
		elem.NextOp(op)
	}
}

func (d *demoFilter) StartTransportOp(elem *rpcstack.CallElement, op *rpcstack.CallOp) {
	verb := "op"
	if op.CancelStatus != status.OK {
		verb = "cancel " + op.CancelStatus.String()
	}
	d.trace.add("%s at element %d (%s)", verb, elem.Index(), d.name)
	if elem.Index()+1 < elem.Stack().Count() {
		elem.NextOp(op)
		return
	}
	d.trace.add("%s completed at the transport edge", verb)
}
