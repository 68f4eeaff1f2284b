package profiler

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
)

// TestDisabled 测试禁用时不记录
func TestDisabled(t *testing.T) {
	p := NewProfiler()
	p.Record("graph", time.Millisecond)
	p.Track("graph")()
	if len(p.Stats()) != 0 {
		t.Errorf("disabled profiler recorded %v", p.Stats())
	}

	var nilProfiler *Profiler
	if nilProfiler.Enabled() {
		t.Error("nil profiler reports enabled")
	}
}

// TestConcurrentRecord 测试并发累计
func TestConcurrentRecord(t *testing.T) {
	p := NewProfiler()
	p.Enable()

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Record("dataflow", time.Duration(i)*time.Millisecond)
			p.Record("structure", time.Millisecond)
		}(i)
	}
	wg.Wait()

	stats := p.Stats()
	if len(stats) != 2 {
		t.Fatalf("got %d stages", len(stats))
	}
	var df StageStats
	for _, s := range stats {
		if s.Stage == "dataflow" {
			df = s
		}
	}
	if df.Calls != 10 || df.Total != 55*time.Millisecond || df.Max != 10*time.Millisecond {
		t.Errorf("dataflow stats %+v", df)
	}
	if df.Average() != 5500*time.Microsecond {
		t.Errorf("average %s", df.Average())
	}
	if slow := p.Slowest(1); len(slow) != 1 || slow[0].Stage != "dataflow" {
		t.Errorf("Slowest = %+v", slow)
	}
}

// TestWriteReport 测试文本和 JSON 报告
func TestWriteReport(t *testing.T) {
	p := NewProfiler()
	p.Enable()
	p.Record("graph", 2*time.Millisecond)
	p.Record("dominators", time.Millisecond)

	var text bytes.Buffer
	if err := p.WriteReport(&text, FormatText); err != nil {
		t.Fatal(err)
	}
	out := text.String()
	if strings.Index(out, "graph") > strings.Index(out, "dominators") {
		t.Errorf("stages not in first-recorded order:\n%s", out)
	}
	if !strings.Contains(out, "total") {
		t.Errorf("missing total line:\n%s", out)
	}

	var js bytes.Buffer
	if err := p.WriteReport(&js, FormatJSON); err != nil {
		t.Fatal(err)
	}
	var decoded []StageStats
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Total != 2*time.Millisecond {
		t.Errorf("decoded %+v", decoded)
	}

	p.Reset()
	if len(p.Stats()) != 0 {
		t.Error("Reset kept stages")
	}
}

var sink [][]byte

// TestMemoryDelta 测试内存快照差值
func TestMemoryDelta(t *testing.T) {
	before := TakeMemorySnapshot()
	for i := 0; i < 64; i++ {
		sink = append(sink, make([]byte, 1024))
	}
	after := TakeMemorySnapshot()
	sink = nil

	d := after.Since(before)
	if d.Allocated < 64*1024 || d.Mallocs <= 0 {
		t.Errorf("delta %+v", d)
	}
	var out bytes.Buffer
	if _, err := d.WriteTo(&out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "allocated") {
		t.Errorf("unexpected text %q", out.String())
	}
	if formatBytes(3*1024*1024) != "3.00 MB" {
		t.Errorf("formatBytes = %q", formatBytes(3*1024*1024))
	}
}
