// profiler.go - 反编译阶段计时
//
// 每个流水线阶段累计调用次数和耗时，多个工作协程可以同时记录。
// -stats 时以文本或 JSON 输出。

package profiler

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/atomic"
)

// OutputFormat 输出格式
type OutputFormat int

const (
	// FormatText 文本格式
	FormatText OutputFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// stageTimer 单个阶段的累计值
type stageTimer struct {
	calls atomic.Int64
	total atomic.Duration
	max   atomic.Duration
}

// Profiler 阶段分析器
type Profiler struct {
	enabled atomic.Bool

	mu     sync.RWMutex
	order  []string // 首次记录的顺序
	stages map[string]*stageTimer
}

// NewProfiler 创建分析器（默认禁用）
func NewProfiler() *Profiler {
	return &Profiler{stages: make(map[string]*stageTimer)}
}

// Enable 启用分析器
func (p *Profiler) Enable() { p.enabled.Store(true) }

// Disable 禁用分析器
func (p *Profiler) Disable() { p.enabled.Store(false) }

// Enabled 是否启用
func (p *Profiler) Enabled() bool { return p != nil && p.enabled.Load() }

// timer 获取或创建阶段计时器
func (p *Profiler) timer(stage string) *stageTimer {
	p.mu.RLock()
	t := p.stages[stage]
	p.mu.RUnlock()
	if t != nil {
		return t
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if t = p.stages[stage]; t == nil {
		t = &stageTimer{}
		p.stages[stage] = t
		p.order = append(p.order, stage)
	}
	return t
}

// Record 记录一次阶段耗时
func (p *Profiler) Record(stage string, d time.Duration) {
	if !p.Enabled() {
		return
	}
	t := p.timer(stage)
	t.calls.Inc()
	t.total.Add(d)
	for {
		old := t.max.Load()
		if d <= old || t.max.CAS(old, d) {
			break
		}
	}
}

// Track 开始计时，返回的函数结束计时
//
//	defer prof.Track("dominators")()
func (p *Profiler) Track(stage string) func() {
	if !p.Enabled() {
		return func() {}
	}
	start := time.Now()
	return func() { p.Record(stage, time.Since(start)) }
}

// StageStats 阶段统计
type StageStats struct {
	Stage string        `json:"stage"`
	Calls int64         `json:"calls"`
	Total time.Duration `json:"total_ns"`
	Max   time.Duration `json:"max_ns"`
}

// Average 平均耗时
func (s StageStats) Average() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Calls)
}

// Stats 按首次记录顺序返回各阶段统计
func (p *Profiler) Stats() []StageStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]StageStats, 0, len(p.order))
	for _, name := range p.order {
		t := p.stages[name]
		out = append(out, StageStats{
			Stage: name,
			Calls: t.calls.Load(),
			Total: t.total.Load(),
			Max:   t.max.Load(),
		})
	}
	return out
}

// Slowest 按总耗时降序返回前 n 个阶段
func (p *Profiler) Slowest(n int) []StageStats {
	stats := p.Stats()
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Total > stats[j].Total
	})
	if n > 0 && n < len(stats) {
		stats = stats[:n]
	}
	return stats
}

// WriteReport 写入报告
func (p *Profiler) WriteReport(w io.Writer, format OutputFormat) error {
	stats := p.Stats()
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintf(w, "%-16s %8s %12s %12s %12s\n", "stage", "calls", "total", "avg", "max")
	var total time.Duration
	for _, s := range stats {
		fmt.Fprintf(w, "%-16s %8d %12s %12s %12s\n",
			s.Stage, s.Calls, s.Total.Round(time.Microsecond),
			s.Average().Round(time.Microsecond), s.Max.Round(time.Microsecond))
		total += s.Total
	}
	_, err := fmt.Fprintf(w, "%-16s %8s %12s\n", "total", "", total.Round(time.Microsecond))
	return err
}

// Reset 清空统计
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = nil
	p.stages = make(map[string]*stageTimer)
}
