package formatter

import "strings"

// Options 格式化选项
type Options struct {
	// 缩进设置
	IndentStyle string // "tabs" 或 "spaces"
	IndentSize  int    // 空格数（当使用 spaces 时）

	// 代码风格
	NewlineBeforeBrace bool // 大括号前是否换行
	ElseIfChains       bool // else 中只有一个 if 时输出 else if
	ShowBytecode       bool // 方法体前输出字节码注释

	// 其他
	RemoveTrailingSpace bool // 移除行尾空格
	EnsureNewlineAtEOF  bool // 确保文件末尾有换行符
}

// DefaultOptions 返回默认格式化选项（K&R 风格 + 4空格缩进）
func DefaultOptions() *Options {
	return &Options{
		IndentStyle:         "spaces",
		IndentSize:          4,
		NewlineBeforeBrace:  false,
		ElseIfChains:        true,
		ShowBytecode:        false,
		RemoveTrailingSpace: true,
		EnsureNewlineAtEOF:  true,
	}
}

// IndentString 一级缩进
func (o *Options) IndentString() string {
	if o.IndentStyle == "tabs" {
		return "\t"
	}
	return strings.Repeat(" ", o.IndentSize)
}
