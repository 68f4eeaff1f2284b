package errors

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// ============================================================================
// 诊断报告器
// ============================================================================

// Reporter 诊断报告器，可被多个工作协程同时使用
type Reporter struct {
	mu        sync.Mutex
	formatter *Formatter
	out       io.Writer
	quiet     bool
	errors    []*Diagnostic
	warnings  []*Diagnostic
}

// NewReporter 创建输出到标准错误的报告器
func NewReporter() *Reporter {
	return &Reporter{
		formatter: NewFormatter(),
		out:       os.Stderr,
	}
}

// SetFormatter 设置格式化器
func (r *Reporter) SetFormatter(f *Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatter = f
}

// SetOutput 设置输出目标
func (r *Reporter) SetOutput(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = w
}

// SetQuiet 静默模式只收集不输出
func (r *Reporter) SetQuiet(quiet bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quiet = quiet
}

// ============================================================================
// 报告
// ============================================================================

// Report 报告一条诊断
func (r *Reporter) Report(d *Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.Level == LevelError {
		r.errors = append(r.errors, d)
	} else {
		r.warnings = append(r.warnings, d)
	}
	if !r.quiet && r.out != nil {
		fmt.Fprint(r.out, r.formatter.FormatDiagnostic(d))
	}
}

// ReportMethodError 报告方法反编译失败
func (r *Reporter) ReportMethodError(class string, err *MethodError) {
	r.Report(err.Diagnostic(class))
}

// Warn 报告警告，context 用于生成额外的修复建议
func (r *Reporter) Warn(code, class, method string, context map[string]interface{}, args ...interface{}) {
	d := NewDiagnostic(code, class, method, args...)
	d.Hints = append(d.Hints, GetSuggestions(code, context)...)
	r.Report(d)
}

// ============================================================================
// 状态查询
// ============================================================================

// HasErrors 是否有错误
func (r *Reporter) HasErrors() bool {
	return r.ErrorCount() > 0
}

// ErrorCount 错误数量
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

// WarningCount 警告数量
func (r *Reporter) WarningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

// Diagnostics 按报告顺序返回错误和警告的副本
func (r *Reporter) Diagnostics() (errs, warnings []*Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs = append([]*Diagnostic(nil), r.errors...)
	warnings = append([]*Diagnostic(nil), r.warnings...)
	return errs, warnings
}

// Summary 返回计数摘要
func (r *Reporter) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.formatter.FormatSummary(len(r.errors), len(r.warnings))
}

// Clear 清空错误和警告
func (r *Reporter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = nil
	r.warnings = nil
}
