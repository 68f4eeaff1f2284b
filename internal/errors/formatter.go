package errors

import (
	"fmt"
	"strings"

	"github.com/tangzhangming/dexdec/internal/i18n"
)

// ============================================================================
// 诊断
// ============================================================================

// Diagnostic 一条反编译诊断
type Diagnostic struct {
	Code    string   // 错误码 (D0001)
	Level   Level    // 错误级别
	Message string   // 主消息
	Class   string   // 类名
	Method  string   // 方法全名（类级诊断为空）
	Hints   []string // 修复建议
	Notes   []string // 附加说明
}

// NewDiagnostic 按错误码创建诊断，消息和建议使用当前语言
func NewDiagnostic(code, class, method string, args ...interface{}) *Diagnostic {
	d := &Diagnostic{
		Code:    code,
		Level:   LevelError,
		Message: Message(code, args...),
		Class:   class,
		Method:  method,
	}
	if info, ok := GetErrorInfo(code); ok {
		d.Level = info.Level
		if info.HintID != "" {
			d.Hints = append(d.Hints, i18n.T(info.HintID))
		}
	}
	return d
}

// Error 实现 error 接口
func (d *Diagnostic) Error() string {
	where := d.Class
	if d.Method != "" {
		where = d.Method
	}
	return fmt.Sprintf("%s[%s] %s: %s", d.Level, d.Code, where, d.Message)
}

// ============================================================================
// 方法级错误
// ============================================================================

// MethodError 单个方法反编译失败
type MethodError struct {
	Method string // 方法全名
	Code   string // 错误码
	Err    error  // 原始错误
}

// Error 实现 error 接口
func (e *MethodError) Error() string {
	return fmt.Sprintf("%s: [%s] %v", e.Method, e.Code, e.Err)
}

// Unwrap 返回原始错误
func (e *MethodError) Unwrap() error {
	return e.Err
}

// Diagnostic 转换为诊断
func (e *MethodError) Diagnostic(class string) *Diagnostic {
	return NewDiagnostic(e.Code, class, e.Method, e.Err)
}

// ============================================================================
// 格式化器
// ============================================================================

// Formatter 诊断格式化器
type Formatter struct {
	Colors    bool // 是否使用颜色
	ShowHints bool // 是否显示修复建议
}

// NewFormatter 创建默认格式化器
func NewFormatter() *Formatter {
	return &Formatter{
		Colors:    ColorsEnabled(),
		ShowHints: true,
	}
}

// FormatDiagnostic 格式化一条诊断
func (f *Formatter) FormatDiagnostic(d *Diagnostic) string {
	var sb strings.Builder

	// 头部: warning[W0001]: 消息
	levelStr := f.colorize(d.Level.String(), f.levelColor(d.Level))
	codeStr := f.colorize(fmt.Sprintf("[%s]", d.Code), f.levelColor(d.Level))
	sb.WriteString(fmt.Sprintf("%s%s: %s\n", levelStr, codeStr, f.paint(d.Message, BoldWhite)))

	// 位置: --> Lcom/example/Foo;->bar()V
	where := d.Method
	if where == "" {
		where = d.Class
	}
	if where != "" {
		sb.WriteString(fmt.Sprintf(" %s %s\n", f.paint("-->", Cyan), f.paint(where, Cyan)))
	}

	if f.ShowHints {
		for _, hint := range d.Hints {
			sb.WriteString(fmt.Sprintf("%s %s\n", f.paint(" = help:", Cyan), hint))
		}
	}
	for _, note := range d.Notes {
		sb.WriteString(fmt.Sprintf("%s %s\n", f.paint(" = note:", Cyan), note))
	}

	return sb.String()
}

// FormatSummary 格式化错误和警告计数
func (f *Formatter) FormatSummary(errors, warnings int) string {
	msg := i18n.T(i18n.MsgSummary, errors, warnings)
	switch {
	case errors > 0:
		return f.paint(msg, Red)
	case warnings > 0:
		return f.paint(msg, Yellow)
	default:
		return msg
	}
}

// levelColor 获取错误级别对应的颜色
func (f *Formatter) levelColor(level Level) Color {
	switch level {
	case LevelError:
		return ColorBoldRed
	case LevelWarning:
		return ColorBoldYellow
	case LevelNote:
		return ColorCyan
	default:
		return ColorWhite
	}
}

// colorize 着色字符串
func (f *Formatter) colorize(s string, color Color) string {
	if !f.Colors {
		return s
	}
	return Colorize(s, color)
}

// paint 用给定的着色函数处理字符串
func (f *Formatter) paint(s string, color func(string) string) string {
	if !f.Colors {
		return s
	}
	return color(s)
}
