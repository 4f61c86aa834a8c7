// Broadway E2E Load Benchmark
//
// This benchmark is designed to answer the questions we actually care about
// in production:
// - What is the p50/p95/p99 roundtrip latency under concurrent load?
// - How much allocation + GC work does that load generate?
//
// A display owns a single client, so N concurrent clients means N display
// servers mounted on one HTTP listener. Each display runs a tiny paint app
// that answers every pointer motion with a small repaint at the pointer
// position, and each client is the real protocol client from pkg/client.
//
// It is intentionally browserless (no DOM). It measures:
// client send → kernel → server decode → route → app paint → diff → frame
// encode → WS write → client read + PNG decode + mirror apply
//
// Run:
//   cd benchmark/e2e_load
//   go run . -clients=200 -duration=30s -rps=5 -window=256 -block=16
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"net"
	"net/http"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/go-broadway/broadway/pkg/client"
	"github.com/go-broadway/broadway/pkg/display"
	"github.com/go-broadway/broadway/pkg/protocol"
	"github.com/go-broadway/broadway/pkg/surface"
)

func main() {
	var (
		clients  = flag.Int("clients", 100, "number of concurrent display clients (one display server each)")
		duration = flag.Duration("duration", 15*time.Second, "how long to run the load test")
		rps      = flag.Float64("rps", 2, "target events/sec per client (best-effort, response-gated)")
		window   = flag.Int("window", 256, "window edge in pixels (affects diff + encode cost)")
		block    = flag.Int("block", 16, "repaint block edge in pixels (affects patch size)")
		binary   = flag.Bool("binary", false, "use the binary WebSocket endpoint")
	)
	flag.Parse()

	if *clients <= 0 {
		log.Fatal("-clients must be > 0")
	}
	if *duration <= 0 {
		log.Fatal("-duration must be > 0")
	}
	if *rps <= 0 {
		log.Fatal("-rps must be > 0")
	}
	if *window < 16 {
		log.Fatal("-window must be >= 16")
	}
	if *block <= 0 || *block > *window {
		log.Fatal("-block must be in 1..window")
	}

	// Reduce incidental variability a bit.
	debug.SetGCPercent(100)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	servers := make([]*display.Server, *clients)
	r := chi.NewRouter()
	for i := 0; i < *clients; i++ {
		app := newPaintApp(*window, *block)
		srv := display.New(display.DefaultConfig().WithLogger(quiet).WithOnEvent(app.handleEvent))
		app.start(ctx, srv)
		servers[i] = srv

		prefix := fmt.Sprintf("/d/%d", i)
		r.Handle(prefix+"/*", http.StripPrefix(prefix, srv))
	}
	defer func() {
		for _, srv := range servers {
			srv.Close()
		}
	}()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	httpServer := &http.Server{Handler: r}
	go func() {
		_ = httpServer.Serve(ln)
	}()
	defer func() {
		_ = httpServer.Shutdown(context.Background())
	}()

	baseURL := "http://" + ln.Addr().String()

	samplesCh := make(chan time.Duration, 1024)
	var samples []time.Duration
	var samplesMu sync.Mutex
	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for rtt := range samplesCh {
			samplesMu.Lock()
			samples = append(samples, rtt)
			samplesMu.Unlock()
		}
	}()

	var (
		totalEvents atomic.Uint64
		totalErrors atomic.Uint64
	)

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readRuntimeMetrics()

	var wg sync.WaitGroup
	wg.Add(*clients)
	for i := 0; i < *clients; i++ {
		serverURL := fmt.Sprintf("%s/d/%d", baseURL, i)
		go func() {
			defer wg.Done()
			if err := runClient(ctx, serverURL, *rps, *window, *block, *binary, quiet, samplesCh, &totalEvents); err != nil {
				totalErrors.Add(1)
			}
		}()
	}

	wg.Wait()
	close(samplesCh)
	<-collectorDone

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readRuntimeMetrics()

	samplesMu.Lock()
	latencies := append([]time.Duration(nil), samples...)
	samplesMu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	total := totalEvents.Load()
	errs := totalErrors.Load()
	runSeconds := math.Max(0.001, (*duration).Seconds())

	framing := "text"
	if *binary {
		framing = "binary"
	}

	fmt.Println("=== Broadway E2E Load Benchmark ===")
	fmt.Printf("Clients: %d\n", *clients)
	fmt.Printf("Duration: %s\n", (*duration).String())
	fmt.Printf("Target per-client rate: %.2f events/s\n", *rps)
	fmt.Printf("Window: %dx%d\n", *window, *window)
	fmt.Printf("Block: %dx%d\n", *block, *block)
	fmt.Printf("Framing: %s\n", framing)
	fmt.Printf("Total events: %d\n", total)
	fmt.Printf("Errors: %d\n", errs)
	fmt.Printf("Throughput: %.1f events/s\n", float64(total)/runSeconds)
	fmt.Println()

	if len(latencies) == 0 {
		fmt.Println("No latency samples recorded.")
	} else {
		fmt.Println("RTT (client send → server paint → client decode+apply):")
		fmt.Printf("  min: %s\n", latencies[0])
		fmt.Printf("  p50: %s\n", percentile(latencies, 0.50))
		fmt.Printf("  p95: %s\n", percentile(latencies, 0.95))
		fmt.Printf("  p99: %s\n", percentile(latencies, 0.99))
		fmt.Printf("  max: %s\n", latencies[len(latencies)-1])
	}
	fmt.Println()

	fmt.Println("Go runtime / GC (process-wide):")
	fmt.Printf("  alloc:     %.2f MB\n", float64(after.TotalAlloc-before.TotalAlloc)/(1024*1024))
	fmt.Printf("  heap_live: %.2f MB\n", float64(after.HeapAlloc)/(1024*1024))
	fmt.Printf("  num_gc:    %d\n", after.NumGC-before.NumGC)
	fmt.Printf("  gc_pause:  %s (total)\n", time.Duration(after.PauseTotalNs-before.PauseTotalNs))
	fmt.Printf("  gc_pause:  %s (avg)\n", avgPause(after, before))
	fmt.Printf("  gc_cpu:    %.2f%%\n", 100*cpuFraction(afterMetrics, beforeMetrics))
	fmt.Printf("  allocs:    %.2f M objects\n", float64(afterMetrics.heapAllocsObjects-beforeMetrics.heapAllocsObjects)/1_000_000)
}

// paintApp is the per-display application under test: every pointer motion
// repaints a block at the pointer position in a color derived from the event
// sequence, so each event produces exactly one content change the client can
// correlate. OnEvent only enqueues; a painter goroutine calls back into the
// server.
type paintApp struct {
	srv    *display.Server
	win    int32
	size   int
	block  int
	moves  chan [2]int32
	canvas *surface.Surface
}

func newPaintApp(size, block int) *paintApp {
	return &paintApp{
		size:   size,
		block:  block,
		moves:  make(chan [2]int32, 16),
		canvas: surface.New(size, size),
	}
}

// start registers the window and launches the painter.
func (a *paintApp) start(ctx context.Context, srv *display.Server) {
	a.srv = srv
	a.win = srv.CreateWindow(1, 0, 0, int32(a.size), int32(a.size), false)
	a.canvas.Fill(10, 10, 10, 255)
	srv.SetWindowContent(a.win, a.canvas.NRGBA())
	srv.ShowWindow(a.win)
	go a.run(ctx)
}

// handleEvent runs on the display loop and must not block it.
func (a *paintApp) handleEvent(msg *protocol.InputMsg) {
	if msg.Type != protocol.EventMotion {
		return
	}
	select {
	case a.moves <- [2]int32{msg.Pointer.WinX, msg.Pointer.WinY}:
	default:
	}
}

func (a *paintApp) run(ctx context.Context) {
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case mv := <-a.moves:
			seq++
			x, y := clampBlock(int(mv[0]), a.size, a.block), clampBlock(int(mv[1]), a.size, a.block)
			cr, cg, cb := colorFor(seq)
			for yy := y; yy < y+a.block; yy++ {
				for xx := x; xx < x+a.block; xx++ {
					a.canvas.SetPixel(xx, yy, cr, cg, cb, 255)
				}
			}
			a.srv.SetWindowContent(a.win, a.canvas.NRGBA())
		}
	}
}

// clampBlock keeps a block anchored at v inside [0, size).
func clampBlock(v, size, block int) int {
	if v < 0 {
		return 0
	}
	if v > size-block {
		return size - block
	}
	return v
}

// colorFor is the event → color contract shared by server and client: the
// low 24 bits of the sequence. Colors repeat only after 16M events per
// client, far beyond any run, so a matched pixel always means our paint.
func colorFor(seq uint64) (r, g, b byte) {
	return byte(seq), byte(seq >> 8), byte(seq >> 16)
}

func runClient(
	ctx context.Context,
	serverURL string,
	rps float64,
	window int,
	block int,
	binary bool,
	logger *slog.Logger,
	samples chan<- time.Duration,
	totalEvents *atomic.Uint64,
) error {
	frames := make(chan struct{}, 4)
	c, err := client.Dial(ctx, serverURL, &client.Config{
		Logger: logger,
		Binary: binary,
		OnCommand: func(cmd *protocol.Command) {
			switch cmd.Op {
			case protocol.OpPutImage, protocol.OpPatchImage:
				select {
				case frames <- struct{}{}:
				default:
				}
			}
		},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	// Let the resync land so the initial full frame is not measured.
	if err := c.WaitFor(ctx, func() bool { return c.WindowCount() > 0 }); err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	win := c.Windows()[0].ID

	period := time.Duration(float64(time.Second) / rps)
	var seq uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		seq++
		// Walk the block around the window; distinct from the previous spot.
		x := int32((seq * 29) % uint64(window))
		y := int32((seq * 37) % uint64(window))
		px := clampBlock(int(x), window, block)
		py := clampBlock(int(y), window, block)
		wr, wg, wb := colorFor(seq)

		start := time.Now()
		if err := c.SendMotion(win, win, x, y, x, y, 0); err != nil {
			return fmt.Errorf("motion write: %w", err)
		}

		// Wait for the patch that carries our color at our block position.
		if err := waitForPaint(ctx, c, frames, win, px, py, wr, wg, wb); err != nil {
			return fmt.Errorf("wait for paint: %w", err)
		}

		rtt := time.Since(start)
		totalEvents.Add(1)
		samples <- rtt

		// Best-effort pacing. We intentionally gate on response to measure
		// real queueing/tail behavior.
		elapsed := time.Since(start)
		if sleep := period - elapsed; sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

// waitForPaint blocks until the mirrored window shows the expected color at
// the expected block position.
func waitForPaint(ctx context.Context, c *client.Client, frames <-chan struct{}, win int32, px, py int, wr, wg, wb byte) error {
	for {
		if r, g, b, _, ok := c.Pixel(win, px, py); ok && r == wr && g == wg && b == wb {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Done():
			return c.Err()
		case <-frames:
		}
	}
}

func avgPause(after, before runtime.MemStats) time.Duration {
	gcCount := after.NumGC - before.NumGC
	if gcCount == 0 {
		return 0
	}
	return time.Duration((after.PauseTotalNs - before.PauseTotalNs) / uint64(gcCount))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type runtimeMetricsSnapshot struct {
	cpuTotalSeconds float64
	cpuGCSeconds    float64

	heapAllocsBytes   uint64
	heapAllocsObjects uint64
}

func readRuntimeMetrics() runtimeMetricsSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
		{Name: "/gc/heap/allocs:bytes"},
		{Name: "/gc/heap/allocs:objects"},
	}
	metrics.Read(samples)

	var out runtimeMetricsSnapshot
	for _, s := range samples {
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotalSeconds = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGCSeconds = s.Value.Float64()
		case "/gc/heap/allocs:bytes":
			out.heapAllocsBytes = s.Value.Uint64()
		case "/gc/heap/allocs:objects":
			out.heapAllocsObjects = s.Value.Uint64()
		}
	}
	return out
}

func cpuFraction(after, before runtimeMetricsSnapshot) float64 {
	total := after.cpuTotalSeconds - before.cpuTotalSeconds
	if total <= 0 {
		return 0
	}
	gc := after.cpuGCSeconds - before.cpuGCSeconds
	if gc < 0 {
		return 0
	}
	return gc / total
}
