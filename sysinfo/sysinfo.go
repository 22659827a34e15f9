// Package sysinfo writes system diagnostic reports through the debug-file
// sink, complementing the per-operation timing reports with process and host
// level metrics.
package sysinfo

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"

	"github.com/proflab/debugkit/debugdir"
)

// A Logger collects host and runtime metrics and persists them as debug
// files.
type Logger struct {
	id   string
	sink *debugdir.Sink
}

// NewLogger creates a Logger writing through the given sink. The id prefixes
// the generated filenames.
func NewLogger(id string, sink *debugdir.Sink) *Logger {
	if sink == nil {
		panic("sink must not be nil")
	}

	return &Logger{
		id:   id,
		sink: sink,
	}
}

// LogSystemMetrics captures memory, CPU, and host metrics and writes them as
// one report file. The returned future resolves with the file path.
func (l *Logger) LogSystemMetrics() *debugdir.Future[string] {
	content := l.formatSystemMetrics(time.Now())

	return l.sink.Write(l.id+"_system_metrics", content)
}

func (l *Logger) formatSystemMetrics(now time.Time) string {
	var b strings.Builder

	b.WriteString("=== System Metrics Report ===\n")
	fmt.Fprintf(&b, "Timestamp: %s\n\n",
		now.Format("2006-01-02 15:04:05"))

	l.writeMemorySection(&b)
	l.writeCPUSection(&b)
	l.writeHostSection(&b)
	l.writeRuntimeSection(&b)

	return b.String()
}

func (l *Logger) writeMemorySection(b *strings.Builder) {
	b.WriteString("--- Memory Usage ---\n")

	vm, err := mem.VirtualMemory()
	if err != nil {
		fmt.Fprintf(b, "unavailable: %v\n\n", err)
		return
	}

	fmt.Fprintf(b, "Used: %dMB/%dMB (%.1f%%)\n\n",
		vm.Used/1024/1024, vm.Total/1024/1024, vm.UsedPercent)
}

func (l *Logger) writeCPUSection(b *strings.Builder) {
	b.WriteString("--- CPU ---\n")

	logical, err := cpu.Counts(true)
	if err != nil {
		fmt.Fprintf(b, "unavailable: %v\n\n", err)
		return
	}

	physical, err := cpu.Counts(false)
	if err != nil {
		physical = logical
	}

	fmt.Fprintf(b, "Logical Cores: %d\n", logical)
	fmt.Fprintf(b, "Physical Cores: %d\n\n", physical)
}

func (l *Logger) writeHostSection(b *strings.Builder) {
	b.WriteString("--- Operating System ---\n")

	info, err := host.Info()
	if err != nil {
		fmt.Fprintf(b, "unavailable: %v\n\n", err)
		return
	}

	fmt.Fprintf(b, "Host: %s\n", info.Hostname)
	fmt.Fprintf(b, "OS: %s %s\n", info.Platform, info.PlatformVersion)
	fmt.Fprintf(b, "Architecture: %s\n", info.KernelArch)
	fmt.Fprintf(b, "Uptime: %ds\n\n", info.Uptime)
}

func (l *Logger) writeRuntimeSection(b *strings.Builder) {
	b.WriteString("--- Go Runtime ---\n")

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	fmt.Fprintf(b, "Goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(b, "GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
	fmt.Fprintf(b, "Heap Alloc: %dMB\n", ms.HeapAlloc/1024/1024)
	fmt.Fprintf(b, "GC Cycles: %d\n", ms.NumGC)
}
