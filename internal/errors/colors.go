package errors

import (
	"os"
	"strings"
)

// Color 终端颜色
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
	ColorBoldRed
	ColorBoldYellow
	ColorBoldWhite
)

// ANSI 颜色代码
var ansiCodes = map[Color]string{
	ColorReset:      "\033[0m",
	ColorRed:        "\033[31m",
	ColorGreen:      "\033[32m",
	ColorYellow:     "\033[33m",
	ColorBlue:       "\033[34m",
	ColorMagenta:    "\033[35m",
	ColorCyan:       "\033[36m",
	ColorWhite:      "\033[37m",
	ColorBoldRed:    "\033[1;31m",
	ColorBoldYellow: "\033[1;33m",
	ColorBoldWhite:  "\033[1;37m",
}

// colorsEnabled 是否启用颜色
var colorsEnabled = detectColorSupport()

// detectColorSupport 检测终端是否支持颜色
func detectColorSupport() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	term := os.Getenv("TERM")
	if term == "dumb" {
		return false
	}
	// 只有 TTY 才着色，重定向到文件时保持纯文本
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) != 0 {
			return true
		}
	}
	return os.Getenv("COLORTERM") != ""
}

// ColorsEnabled 检查颜色是否启用
func ColorsEnabled() bool {
	return colorsEnabled
}

// SetColorsEnabled 设置颜色启用状态
func SetColorsEnabled(enabled bool) {
	colorsEnabled = enabled
}

// Colorize 着色字符串
func Colorize(s string, color Color) string {
	if !colorsEnabled {
		return s
	}
	code, ok := ansiCodes[color]
	if !ok {
		return s
	}
	return code + s + ansiCodes[ColorReset]
}

// Red 红色
func Red(s string) string {
	return Colorize(s, ColorRed)
}

// Yellow 黄色
func Yellow(s string) string {
	return Colorize(s, ColorYellow)
}

// Cyan 青色
func Cyan(s string) string {
	return Colorize(s, ColorCyan)
}

// BoldWhite 加粗白色
func BoldWhite(s string) string {
	return Colorize(s, ColorBoldWhite)
}

// Strip 移除 ANSI 颜色代码
func Strip(s string) string {
	result := s
	for _, code := range ansiCodes {
		result = strings.ReplaceAll(result, code, "")
	}
	return result
}

// ============================================================================
// 代码语法高亮
// ============================================================================

// SyntaxHighlighter 反编译输出的 Java 语法高亮器
type SyntaxHighlighter struct {
	enabled bool
}

// NewSyntaxHighlighter 创建语法高亮器
func NewSyntaxHighlighter() *SyntaxHighlighter {
	return &SyntaxHighlighter{enabled: colorsEnabled}
}

// 关键字列表
var keywords = map[string]bool{
	"if": true, "else": true, "while": true, "do": true, "for": true,
	"switch": true, "case": true, "default": true, "break": true, "continue": true, "return": true,
	"class": true, "interface": true, "extends": true, "implements": true, "package": true,
	"public": true, "private": true, "protected": true, "static": true, "final": true, "abstract": true,
	"synchronized": true, "native": true, "transient": true, "volatile": true, "strictfp": true,
	"new": true, "try": true, "catch": true, "finally": true, "throw": true, "goto": true,
	"instanceof": true, "true": true, "false": true, "null": true, "this": true, "super": true,
}

// 类型关键字
var typeKeywords = map[string]bool{
	"int": true, "long": true, "short": true, "byte": true, "char": true,
	"float": true, "double": true, "boolean": true, "void": true,
}

// HighlightLine 高亮代码行
func (h *SyntaxHighlighter) HighlightLine(line string) string {
	if !h.enabled || !colorsEnabled {
		return line
	}
	return h.highlightTokens(line)
}

// Highlight 逐行高亮一段代码
func (h *SyntaxHighlighter) Highlight(src string) string {
	if !h.enabled || !colorsEnabled {
		return src
	}
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		lines[i] = h.highlightTokens(line)
	}
	return strings.Join(lines, "\n")
}

// highlightTokens 对源代码行进行 token 级别的高亮
func (h *SyntaxHighlighter) highlightTokens(line string) string {
	var result strings.Builder
	i := 0
	n := len(line)

	for i < n {
		ch := line[i]

		// 字符串和字符字面量
		if ch == '"' || ch == '\'' {
			quote := ch
			start := i
			i++
			for i < n && line[i] != quote {
				if line[i] == '\\' && i+1 < n {
					i++
				}
				i++
			}
			if i < n {
				i++
			}
			result.WriteString(Colorize(line[start:i], ColorGreen))
			continue
		}

		// 注释
		if ch == '/' && i+1 < n && line[i+1] == '/' {
			result.WriteString(Colorize(line[i:], ColorWhite))
			break
		}

		// 数字
		if isDigit(ch) {
			start := i
			for i < n && (isAlphaNumeric(line[i]) || line[i] == '.') {
				i++
			}
			result.WriteString(Colorize(line[start:i], ColorMagenta))
			continue
		}

		// 标识符/关键字
		if isAlpha(ch) {
			start := i
			for i < n && (isAlphaNumeric(line[i]) || line[i] == '$') {
				i++
			}
			word := line[start:i]
			switch {
			case keywords[word]:
				result.WriteString(Colorize(word, ColorYellow))
			case typeKeywords[word]:
				result.WriteString(Colorize(word, ColorBlue))
			default:
				result.WriteString(word)
			}
			continue
		}

		result.WriteByte(ch)
		i++
	}

	return result.String()
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isAlphaNumeric(ch byte) bool {
	return isAlpha(ch) || isDigit(ch)
}
