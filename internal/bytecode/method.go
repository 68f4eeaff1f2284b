package bytecode

import (
	"sort"
	"strings"
)

// ============================================================================
// 访问标志
// ============================================================================

// AccessFlags 访问标志位
type AccessFlags uint32

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
	AccConstructor  AccessFlags = 0x10000
)

// accessKeywords 汇编文本中的访问关键字
var accessKeywords = map[string]AccessFlags{
	"public":                AccPublic,
	"private":               AccPrivate,
	"protected":             AccProtected,
	"static":                AccStatic,
	"final":                 AccFinal,
	"synchronized":          AccSynchronized,
	"volatile":              AccVolatile,
	"bridge":                AccBridge,
	"transient":             AccTransient,
	"varargs":               AccVarargs,
	"native":                AccNative,
	"interface":             AccInterface,
	"abstract":              AccAbstract,
	"strictfp":              AccStrict,
	"synthetic":             AccSynthetic,
	"annotation":            AccAnnotation,
	"enum":                  AccEnum,
	"constructor":           AccConstructor,
	"declared-synchronized": AccSynchronized,
}

// ParseAccessFlag 解析单个访问关键字
func ParseAccessFlag(word string) (AccessFlags, bool) {
	f, ok := accessKeywords[word]
	return f, ok
}

// Has 是否包含标志
func (a AccessFlags) Has(f AccessFlags) bool { return a&f != 0 }

// 渲染顺序
var classModifiers = []struct {
	flag AccessFlags
	word string
}{
	{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
	{AccStatic, "static"}, {AccFinal, "final"}, {AccAbstract, "abstract"},
}

var fieldModifiers = []struct {
	flag AccessFlags
	word string
}{
	{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
	{AccStatic, "static"}, {AccFinal, "final"}, {AccVolatile, "volatile"}, {AccTransient, "transient"},
}

var methodModifiers = []struct {
	flag AccessFlags
	word string
}{
	{AccPublic, "public"}, {AccPrivate, "private"}, {AccProtected, "protected"},
	{AccStatic, "static"}, {AccFinal, "final"}, {AccAbstract, "abstract"},
	{AccSynchronized, "synchronized"}, {AccNative, "native"}, {AccStrict, "strictfp"},
}

// ClassModifiers 类修饰符（interface 的 abstract 省略）
func (a AccessFlags) ClassModifiers() []string {
	var out []string
	for _, m := range classModifiers {
		if m.flag == AccAbstract && a.Has(AccInterface) {
			continue
		}
		if a.Has(m.flag) {
			out = append(out, m.word)
		}
	}
	return out
}

// FieldModifiers 字段修饰符
func (a AccessFlags) FieldModifiers() []string {
	var out []string
	for _, m := range fieldModifiers {
		if a.Has(m.flag) {
			out = append(out, m.word)
		}
	}
	return out
}

// MethodModifiers 方法修饰符
func (a AccessFlags) MethodModifiers() []string {
	var out []string
	for _, m := range methodModifiers {
		if a.Has(m.flag) {
			out = append(out, m.word)
		}
	}
	return out
}

// ============================================================================
// 异常表
// ============================================================================

// Handler 异常处理入口
type Handler struct {
	Type   string // 捕获的异常类型描述符，"" 表示 catch-all
	Target int    // 处理代码偏移
}

// IsCatchAll 是否捕获所有异常
func (h Handler) IsCatchAll() bool { return h.Type == "" }

// TryRange 受保护的代码区间 [Start, End)
//
// Handlers 按异常表顺序排列，顺序即匹配优先级。
type TryRange struct {
	Start    int
	End      int
	Handlers []Handler
}

// Covers 偏移是否位于区间内
func (t *TryRange) Covers(offset int) bool {
	return offset >= t.Start && offset < t.End
}

// CatchDirective 汇编文本中的一条 .catch / .catchall
type CatchDirective struct {
	Start   int
	End     int
	Type    string // "" 表示 .catchall
	Handler int
}

// NormalizeTries 将可能重叠的 catch 指令整理成互不重叠的区间
//
// 每个区间的处理器列表按声明顺序拼接覆盖它的全部指令，
// 同一类型只保留第一个；相邻且处理器列表相同的区间合并。
func NormalizeTries(directives []CatchDirective) []*TryRange {
	if len(directives) == 0 {
		return nil
	}
	var bounds []int
	seen := make(map[int]bool)
	for _, d := range directives {
		for _, b := range []int{d.Start, d.End} {
			if !seen[b] {
				seen[b] = true
				bounds = append(bounds, b)
			}
		}
	}
	sort.Ints(bounds)

	var out []*TryRange
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		var handlers []Handler
		types := make(map[string]bool)
		for _, d := range directives {
			if d.Start <= lo && hi <= d.End && !types[d.Type] {
				types[d.Type] = true
				handlers = append(handlers, Handler{Type: d.Type, Target: d.Handler})
			}
		}
		if len(handlers) == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].End == lo && sameHandlers(out[n-1].Handlers, handlers) {
			out[n-1].End = hi
			continue
		}
		out = append(out, &TryRange{Start: lo, End: hi, Handlers: handlers})
	}
	return out
}

// PartialOverlaps 返回部分重叠（既不相离也不嵌套）的 catch 指令对中后一条的起始偏移
func PartialOverlaps(directives []CatchDirective) []int {
	seen := make(map[int]bool)
	var out []int
	for i, a := range directives {
		for _, b := range directives[i+1:] {
			if a.End <= b.Start || b.End <= a.Start {
				continue
			}
			if (a.Start <= b.Start && b.End <= a.End) || (b.Start <= a.Start && a.End <= b.End) {
				continue
			}
			at := a.Start
			if b.Start > at {
				at = b.Start
			}
			if !seen[at] {
				seen[at] = true
				out = append(out, at)
			}
		}
	}
	sort.Ints(out)
	return out
}

func sameHandlers(a, b []Handler) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ============================================================================
// 方法与类
// ============================================================================

// Method 方法
type Method struct {
	Class      string // 声明类描述符
	Name       string
	Descriptor string
	Access     AccessFlags
	Registers  int // 寄存器总数
	Index      int // 在类中的序号
	Line       int // .method 指令所在行

	Code     []*Instruction
	Tries    []*TryRange
	Overlaps []int // 部分重叠的 catch 指令起点
}

// HasCode 是否有方法体（native/abstract 方法没有）
func (m *Method) HasCode() bool {
	return len(m.Code) > 0
}

// IsStatic 是否为静态方法
func (m *Method) IsStatic() bool { return m.Access.Has(AccStatic) }

// IsConstructor 是否为构造器或静态初始化块
func (m *Method) IsConstructor() bool {
	return m.Name == "<init>" || m.Name == "<clinit>"
}

// ParamTypes 参数类型描述符
func (m *Method) ParamTypes() []string {
	params, _, _ := ParseMethodDescriptor(m.Descriptor)
	return params
}

// ReturnType 返回类型描述符
func (m *Method) ReturnType() string {
	_, ret, ok := ParseMethodDescriptor(m.Descriptor)
	if !ok {
		return "V"
	}
	return ret
}

// Ins 参数占用的寄存器数（含 this）
func (m *Method) Ins() int {
	n := 0
	if !m.IsStatic() {
		n++
	}
	for _, p := range m.ParamTypes() {
		n += TypeSize(p)
	}
	return n
}

// FullName 方法全名 Lcom/a/B;->name(I)V
func (m *Method) FullName() string {
	return m.Class + "->" + m.Name + m.Descriptor
}

// InstructionAt 按偏移查找指令
func (m *Method) InstructionAt(offset int) (*Instruction, int) {
	i := sort.Search(len(m.Code), func(i int) bool { return m.Code[i].Offset >= offset })
	if i < len(m.Code) && m.Code[i].Offset == offset {
		return m.Code[i], i
	}
	return nil, -1
}

// CodeEnd 代码结束偏移
func (m *Method) CodeEnd() int {
	if len(m.Code) == 0 {
		return 0
	}
	return m.Code[len(m.Code)-1].Next()
}

// Field 字段
type Field struct {
	Name     string
	Type     string
	Access   AccessFlags
	Value    string // 初始值字面量（汇编文本形式）
	HasValue bool
}

// Class 类
type Class struct {
	Name       string // 类描述符
	Access     AccessFlags
	Super      string // 父类描述符，可为空
	Interfaces []string
	SourceFile string
	Line       int // .class 指令所在行
	Fields     []*Field
	Methods    []*Method
}

// IsInterface 是否为接口
func (c *Class) IsInterface() bool { return c.Access.Has(AccInterface) }

// OuterName 外部类描述符（非内部类返回空）
func (c *Class) OuterName() string {
	name := strings.TrimSuffix(c.Name, ";")
	i := strings.LastIndexByte(name, '$')
	if i <= 0 {
		return ""
	}
	return name[:i] + ";"
}
