// memory.go - 运行前后的内存快照
//
// 批量反编译时比较开始和结束的堆统计，随阶段耗时一起输出。

package profiler

import (
	"fmt"
	"io"
	"runtime"
	"time"
)

// MemorySnapshot 一次堆统计
type MemorySnapshot struct {
	Time       time.Time
	HeapAlloc  int64 // 当前堆占用
	TotalAlloc int64 // 累计分配字节
	Mallocs    int64 // 累计分配次数
	NumGC      uint32
}

// TakeMemorySnapshot 读取当前堆统计
func TakeMemorySnapshot() MemorySnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemorySnapshot{
		Time:       time.Now(),
		HeapAlloc:  int64(ms.HeapAlloc),
		TotalAlloc: int64(ms.TotalAlloc),
		Mallocs:    int64(ms.Mallocs),
		NumGC:      ms.NumGC,
	}
}

// MemoryDelta 两次快照之间的变化
type MemoryDelta struct {
	Elapsed   time.Duration
	Allocated int64 // 期间分配的字节
	Mallocs   int64
	HeapDelta int64
	GCs       uint32
}

// Since 计算从 before 到 s 的变化
func (s MemorySnapshot) Since(before MemorySnapshot) MemoryDelta {
	return MemoryDelta{
		Elapsed:   s.Time.Sub(before.Time),
		Allocated: s.TotalAlloc - before.TotalAlloc,
		Mallocs:   s.Mallocs - before.Mallocs,
		HeapDelta: s.HeapAlloc - before.HeapAlloc,
		GCs:       s.NumGC - before.NumGC,
	}
}

// WriteTo 以文本写出
func (d MemoryDelta) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "elapsed %s, allocated %s in %d objects, heap %+d B, %d GC\n",
		d.Elapsed.Round(time.Millisecond), formatBytes(d.Allocated), d.Mallocs, d.HeapDelta, d.GCs)
	return int64(n), err
}

// formatBytes 格式化字节数
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
