package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ============================================================================
// 行扫描器 - 汇编文本的词法处理
// ============================================================================
//
// 汇编文本按行组织，每行是一个指令、一个伪指令或一个标签。
// 扫描器只负责去掉注释、拆分操作数和解析字面量，语法由 Loader 处理。

// Error 加载错误
type Error struct {
	File    string
	Line    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// line 去掉注释和空白后的一行
type line struct {
	num  int
	text string
}

// scanLines 拆分源文本，去掉注释与空行
func scanLines(source string) []line {
	raw := strings.Split(source, "\n")
	out := make([]line, 0, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(stripComment(s))
		if s == "" {
			continue
		}
		out = append(out, line{num: i + 1, text: s})
	}
	return out
}

// stripComment 去掉 # 注释（字符串内的 # 保留）
func stripComment(s string) string {
	inString := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inString {
				i++
			}
		case '"':
			inString = !inString
		case '#':
			if !inString {
				return s[:i]
			}
		}
	}
	return s
}

// splitHead 拆出首个单词和其余部分
func splitHead(s string) (string, string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// splitOperands 按顶层逗号拆分操作数（花括号和字符串内的逗号不拆分）
func splitOperands(s string) []string {
	var out []string
	depth := 0
	inString := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && inString:
			i++
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
		case c == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// parseLiteral 解析整数或浮点字面量
//
// 支持 0x 十六进制、L/t/s 后缀；浮点数以 f 结尾时按 float 位模式返回，
// 否则按 double 位模式返回。
func parseLiteral(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if s == "" {
		return 0, fmt.Errorf("empty literal")
	}
	lower := strings.ToLower(s)
	isHex := strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "-0x")

	if !isHex && (strings.ContainsAny(lower, ".e") || strings.HasSuffix(lower, "f") ||
		strings.HasSuffix(lower, "infinity") || strings.HasSuffix(lower, "nan")) {
		return parseFloatLiteral(lower)
	}

	if n := len(lower); n > 1 {
		switch lower[n-1] {
		case 'l', 't', 's':
			lower = lower[:n-1]
		}
	}
	neg := strings.HasPrefix(lower, "-")
	lower = strings.TrimPrefix(lower, "-")
	base := 10
	if strings.HasPrefix(lower, "0x") {
		lower = lower[2:]
		base = 16
	}
	u, err := strconv.ParseUint(lower, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid literal %q", s)
	}
	v := int64(u)
	if neg {
		v = -v
	}
	return v, nil
}

func parseFloatLiteral(s string) (int64, error) {
	single := strings.HasSuffix(s, "f")
	body := strings.TrimSuffix(strings.TrimSuffix(s, "f"), "d")
	switch body {
	case "infinity":
		body = "+Inf"
	case "-infinity":
		body = "-Inf"
	case "nan":
		body = "NaN"
	}
	if single {
		f, err := strconv.ParseFloat(body, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid float literal %q", s)
		}
		return int64(math.Float32bits(float32(f))), nil
	}
	f, err := strconv.ParseFloat(body, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid double literal %q", s)
	}
	return int64(math.Float64bits(f)), nil
}

// parseString 解析带引号的字符串字面量
func parseString(s string) (string, error) {
	v, err := strconv.Unquote(s)
	if err != nil {
		return "", fmt.Errorf("invalid string literal %s", s)
	}
	return v, nil
}

// parseRegisterList 解析 {v0, v1} 或 {v0 .. v3}
func parseRegisterList(s string) ([]string, error) {
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, fmt.Errorf("expected register list, got %q", s)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, nil
	}
	if strings.Contains(body, "..") {
		parts := strings.SplitN(body, "..", 2)
		lo, hi := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if len(lo) < 2 || len(hi) < 2 || lo[0] != hi[0] {
			return nil, fmt.Errorf("invalid register range %q", s)
		}
		a, err1 := strconv.Atoi(lo[1:])
		b, err2 := strconv.Atoi(hi[1:])
		if err1 != nil || err2 != nil || b < a {
			return nil, fmt.Errorf("invalid register range %q", s)
		}
		out := make([]string, 0, b-a+1)
		for i := a; i <= b; i++ {
			out = append(out, fmt.Sprintf("%c%d", lo[0], i))
		}
		return out, nil
	}
	var out []string
	for _, r := range strings.Split(body, ",") {
		out = append(out, strings.TrimSpace(r))
	}
	return out, nil
}

// parseMember 解析 Lcls;->name:Type 或 Lcls;->name(params)ret
func parseMember(s string) (class, name, rest string, err error) {
	i := strings.Index(s, "->")
	if i < 0 {
		return "", "", "", fmt.Errorf("invalid member reference %q", s)
	}
	class = s[:i]
	member := s[i+2:]
	j := strings.IndexAny(member, ":(")
	if j <= 0 {
		return "", "", "", fmt.Errorf("invalid member reference %q", s)
	}
	name = member[:j]
	rest = member[j:]
	return class, name, rest, nil
}
