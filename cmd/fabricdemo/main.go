// Command fabricdemo is a local smoke test for the fabric module: it
// builds a Fabric, submits ordinary and compute-flagged tasks, pipes a
// stream transform through a StreamChan, runs a sized compute
// dispatch, and prints a snapshot of Sysmon/metrics state before
// shutting down. It is grounded on the teacher's cmd/example, replacing
// Fluxor's Ping/Pong reactor-deployment demo with Fabric's
// task/compute/stream surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/quadgate/fabric/pkg/compute"
	"github.com/quadgate/fabric/pkg/config"
	"github.com/quadgate/fabric/pkg/fabric"
	"github.com/quadgate/fabric/pkg/fabrictrace"
	"github.com/quadgate/fabric/pkg/metrics"
	"github.com/quadgate/fabric/pkg/qchan"
	"github.com/quadgate/fabric/pkg/streamchan"
	"github.com/quadgate/fabric/pkg/sysmon"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
)

func main() {
	configPath := flag.String("config", "", "path to a fabric settings YAML/JSON file (defaults built in if empty)")
	trace := flag.Bool("trace", false, "print OpenTelemetry spans to stdout")
	flag.Parse()

	settings := fabric.DefaultSettings()
	settings.Name = "fabricdemo"
	if *configPath != "" {
		loaded, err := config.LoadFabricSettings(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fabricdemo: load config:", err)
			os.Exit(1)
		}
		if err := loaded.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, "fabricdemo: invalid config:", err)
			os.Exit(1)
		}
		applyFile(&settings, loaded)
	}

	if *trace {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			fmt.Fprintln(os.Stderr, "fabricdemo: trace exporter:", err)
			os.Exit(1)
		}
		tp := fabrictrace.NewTracerProvider(exporter, settings.Name)
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	f := fabric.New(settings)
	sysmon.Attach(f)
	if err := f.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "fabricdemo: start:", err)
		os.Exit(1)
	}
	defer f.Stop()

	runTasks(f)
	runChan(f)
	runStream(f)
	runCompute(f)

	time.Sleep(20 * time.Millisecond) // let the last sysmon tick settle
	printSummary(f)
}

func applyFile(s *fabric.Settings, file config.FabricFile) {
	if file.Name != "" {
		s.Name = file.Name
	}
	if file.WorkersCount > 0 {
		s.WorkersCount = file.WorkersCount
	}
	if file.PutAsideWorkerCount > 0 {
		s.PutAsideWorkerCount = file.PutAsideWorkerCount
	}
	if file.CoopBlockingThresholdInMs > 0 {
		s.CoopBlockingThresholdInMs = file.CoopBlockingThresholdInMs
	}
	if file.ExternalBlockingThresholdInMs > 0 {
		s.ExternalBlockingThresholdInMs = file.ExternalBlockingThresholdInMs
	}
	if file.BlockingWorkersThreshold > 0 {
		s.BlockingWorkersThreshold = file.BlockingWorkersThreshold
	}
}

func runTasks(f *fabric.Fabric) {
	var done int32
	for i := 0; i < 8; i++ {
		if err := f.TaskDo(func() {
			atomic.AddInt32(&done, 1)
		}); err != nil {
			fmt.Fprintln(os.Stderr, "fabricdemo: TaskDo:", err)
		}
	}
	for atomic.LoadInt32(&done) < 8 {
		time.Sleep(time.Millisecond)
	}
	fmt.Println("fabricdemo: ran 8 tasks")
}

func runChan(f *fabric.Fabric) {
	ch := qchan.New[int](4)
	if err := f.TaskDo(func() {
		for i := 0; i < 5; i++ {
			ch.Send(i * i)
		}
		ch.Close()
	}); err != nil {
		fmt.Fprintln(os.Stderr, "fabricdemo: TaskDo(chan producer):", err)
		return
	}
	sum := 0
	ch.Range(func(v int) bool {
		sum += v
		return true
	})
	fmt.Println("fabricdemo: qchan sum of squares(0..4) =", sum)
}

func runStream(f *fabric.Fabric) {
	s, err := streamchan.LazyStream(f, func(w io.Writer) error {
		_, err := w.Write([]byte("FABRIC STREAM DEMO"))
		return err
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fabricdemo: LazyStream:", err)
		return
	}
	buf := make([]byte, 256)
	n, _ := s.Read(buf)
	fmt.Printf("fabricdemo: stream produced %q\n", buf[:n])
}

func runCompute(f *fabric.Fabric) {
	start := time.Now()
	var total int64
	compute.ComputeSized(f, compute.Dims{X: 10, Y: 10, Z: 1}, compute.Dims{X: 4, Y: 4, Z: 1}, func(a compute.Args) {
		atomic.AddInt64(&total, 1)
	})
	f.Metrics().RecordComputeDispatch("compute_sized", time.Since(start))
	fmt.Println("fabricdemo: compute_sized covered", atomic.LoadInt64(&total), "of 100 cells")
}

func printSummary(f *fabric.Fabric) {
	fmt.Println("fabricdemo: live workers =", len(f.LiveWorkers()))
	fmt.Println("fabricdemo: sysmon blocking count =", f.BlockingCount())

	families, err := metrics.DefaultRegistry.Gather()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fabricdemo: gather metrics:", err)
		return
	}
	for _, mf := range families {
		fmt.Printf("fabricdemo: metric %s\n", mf.GetName())
	}
}
