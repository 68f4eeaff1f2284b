package bytecode

import (
	"strings"
)

// primitiveNames 基本类型描述符 -> 源码类型名
var primitiveNames = map[byte]string{
	'V': "void",
	'Z': "boolean",
	'B': "byte",
	'S': "short",
	'C': "char",
	'I': "int",
	'J': "long",
	'F': "float",
	'D': "double",
}

// TypeSize 类型占用的寄存器数量（long/double 占两个）
func TypeSize(desc string) int {
	if desc == "J" || desc == "D" {
		return 2
	}
	return 1
}

// IsPrimitive 是否为基本类型描述符
func IsPrimitive(desc string) bool {
	if len(desc) != 1 {
		return false
	}
	_, ok := primitiveNames[desc[0]]
	return ok
}

// JavaType 将类型描述符转换为源码类型名
//
// java.lang 包下的类型省略包名，数组转换为 T[] 形式。
func JavaType(desc string) string {
	if desc == "" {
		return "?"
	}
	dims := 0
	for dims < len(desc) && desc[dims] == '[' {
		dims++
	}
	base := desc[dims:]
	var name string
	switch {
	case len(base) == 1:
		if n, ok := primitiveNames[base[0]]; ok {
			name = n
		} else {
			name = base
		}
	case strings.HasPrefix(base, "L") && strings.HasSuffix(base, ";"):
		name = ClassName(base)
		if strings.HasPrefix(name, "java.lang.") && !strings.Contains(name[len("java.lang."):], ".") {
			name = name[len("java.lang."):]
		}
	default:
		name = base
	}
	return name + strings.Repeat("[]", dims)
}

// ClassName 类描述符转换为带包名的类名，Lcom/a/B; -> com.a.B
func ClassName(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		desc = desc[1 : len(desc)-1]
	}
	return strings.ReplaceAll(desc, "/", ".")
}

// SimpleName 类的简单名（去掉包名与外部类前缀）
func SimpleName(desc string) string {
	name := ClassName(desc)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '$'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// PackageName 类所在的包名
func PackageName(desc string) string {
	name := ClassName(desc)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// SplitParams 拆分参数描述符列表，"ILjava/lang/String;[J" -> [I Ljava/lang/String; [J]
func SplitParams(s string) ([]string, bool) {
	var out []string
	i := 0
	for i < len(s) {
		start := i
		for i < len(s) && s[i] == '[' {
			i++
		}
		if i >= len(s) {
			return nil, false
		}
		if s[i] == 'L' {
			end := strings.IndexByte(s[i:], ';')
			if end < 0 {
				return nil, false
			}
			i += end + 1
		} else {
			if _, ok := primitiveNames[s[i]]; !ok || s[i] == 'V' {
				return nil, false
			}
			i++
		}
		out = append(out, s[start:i])
	}
	return out, true
}

// ParseMethodDescriptor 解析 (params)ret 形式的方法描述符
func ParseMethodDescriptor(desc string) (params []string, ret string, ok bool) {
	if !strings.HasPrefix(desc, "(") {
		return nil, "", false
	}
	end := strings.IndexByte(desc, ')')
	if end < 0 || end == len(desc)-1 {
		return nil, "", false
	}
	params, ok = SplitParams(desc[1:end])
	if !ok {
		return nil, "", false
	}
	return params, desc[end+1:], true
}
