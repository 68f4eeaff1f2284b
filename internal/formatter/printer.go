package formatter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tangzhangming/dexdec/internal/ast"
	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// ClassSource 输出一个类需要的全部内容
type ClassSource struct {
	Class   *bytecode.Class
	Methods []*MethodSource
	Nested  []*ClassSource // 内部类，输出在外部类之中
}

// MethodSource 一个方法的反编译结果
type MethodSource struct {
	Method *bytecode.Method
	Params []*ir.Variable // this 与参数变量，按寄存器顺序
	Body   *ast.Block     // 没有代码时为 nil
	Err    error          // 反编译失败的原因
	Text   string         // 缓存的方法文本（缩进为 0），非空时原样输出
}

// Printer 源码打印器
type Printer struct {
	options *Options
	buf     strings.Builder
	indent  int
	line    int
	col     int
	class   *bytecode.Class // 当前类
}

// NewPrinter 创建打印器
func NewPrinter(options *Options) *Printer {
	return &Printer{
		options: options,
		indent:  0,
		line:    1,
		col:     0,
	}
}

// String 返回已打印的文本
func (p *Printer) String() string {
	result := p.buf.String()

	// 移除行尾空格
	if p.options.RemoveTrailingSpace {
		lines := strings.Split(result, "\n")
		for i, line := range lines {
			lines[i] = strings.TrimRight(line, " \t")
		}
		result = strings.Join(lines, "\n")
	}

	// 确保文件末尾有换行符
	if p.options.EnsureNewlineAtEOF && result != "" && !strings.HasSuffix(result, "\n") {
		result += "\n"
	}

	return result
}

// 辅助方法

func (p *Printer) write(s string) {
	p.buf.WriteString(s)
	p.col += len(s)
}

func (p *Printer) writeln(s ...string) {
	for _, str := range s {
		p.buf.WriteString(str)
	}
	p.buf.WriteString("\n")
	p.line++
	p.col = 0
}

func (p *Printer) writeIndent() {
	if p.options.IndentStyle == "tabs" {
		p.buf.WriteString(strings.Repeat("\t", p.indent))
	} else {
		p.buf.WriteString(strings.Repeat(" ", p.indent*p.options.IndentSize))
	}
	p.col = p.indent * p.options.IndentSize
}

func (p *Printer) openBrace() {
	if p.options.NewlineBeforeBrace {
		p.writeln()
		p.writeIndent()
		p.write("{")
	} else {
		// K&R 风格：开括号前一个空格，不换行
		p.write(" {")
	}
	p.writeln()
	p.indent++
}

func (p *Printer) closeBrace() {
	p.indent--
	p.writeIndent()
	p.write("}")
}

// closeBraceInline 关闭大括号，后面还有 else/catch 等
func (p *Printer) closeBraceInline() {
	p.indent--
	p.writeIndent()
	p.write("}")
	if p.options.NewlineBeforeBrace {
		p.writeln()
		p.writeIndent()
	} else {
		p.write(" ")
	}
}

func (p *Printer) line1(s string) {
	p.writeIndent()
	p.writeln(s)
}

// ============================================================================
// 类
// ============================================================================

// PrintClass 打印类及其内部类
func (p *Printer) PrintClass(cs *ClassSource) {
	cls := cs.Class
	outer := p.indent == 0
	if outer {
		if pkg := bytecode.PackageName(cls.Name); pkg != "" && cls.OuterName() == "" {
			p.writeln("package " + pkg + ";")
			p.writeln()
		}
	}

	prev := p.class
	p.class = cls
	defer func() { p.class = prev }()

	p.writeIndent()
	mods := cls.Access.ClassModifiers()
	if len(mods) > 0 {
		p.write(strings.Join(mods, " "))
		p.write(" ")
	}
	if cls.IsInterface() {
		p.write("interface ")
	} else {
		p.write("class ")
	}
	p.write(bytecode.SimpleName(cls.Name))

	// 继承
	if cls.Super != "" && cls.Super != "Ljava/lang/Object;" && !cls.IsInterface() {
		p.write(" extends ")
		p.write(bytecode.JavaType(cls.Super))
	}

	// 实现接口
	if len(cls.Interfaces) > 0 {
		if cls.IsInterface() {
			p.write(" extends ")
		} else {
			p.write(" implements ")
		}
		for i, iface := range cls.Interfaces {
			if i > 0 {
				p.write(", ")
			}
			p.write(bytecode.JavaType(iface))
		}
	}

	p.openBrace()

	// 字段按名字排序
	fields := append([]*bytecode.Field(nil), cls.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	for _, f := range fields {
		p.printField(f)
	}

	for _, n := range cs.Nested {
		p.writeln()
		p.PrintClass(n)
	}

	for _, m := range cs.Methods {
		p.writeln()
		p.PrintMethod(m)
	}

	p.closeBrace()
	p.writeln()
}

func (p *Printer) printField(f *bytecode.Field) {
	p.writeIndent()
	if mods := f.Access.FieldModifiers(); len(mods) > 0 {
		p.write(strings.Join(mods, " "))
		p.write(" ")
	}
	p.write(bytecode.JavaType(f.Type))
	p.write(" ")
	p.write(f.Name)
	if f.HasValue {
		p.write(" = ")
		p.write(fieldValue(f))
	}
	p.writeln(";")
}

// fieldValue 字段初始值的源码形式
func fieldValue(f *bytecode.Field) string {
	v := f.Value
	if f.Type == "Ljava/lang/String;" {
		if s, err := strconv.Unquote(v); err == nil {
			return strconv.Quote(s)
		}
		return strconv.Quote(v)
	}
	switch f.Type {
	case "Z":
		if v == "0x0" || v == "0" {
			return "false"
		}
		if v == "0x1" || v == "1" {
			return "true"
		}
	case "I", "S", "B", "J":
		lit := strings.TrimRight(v, "LlSsTt")
		if n, err := strconv.ParseInt(lit, 0, 64); err == nil {
			if f.Type == "J" {
				return strconv.FormatInt(n, 10) + "L"
			}
			return strconv.FormatInt(n, 10)
		}
	}
	return v
}

// ============================================================================
// 方法
// ============================================================================

// PrintMethod 打印方法签名和方法体
func (p *Printer) PrintMethod(ms *MethodSource) {
	if ms.Text != "" {
		for _, line := range strings.Split(strings.TrimSuffix(ms.Text, "\n"), "\n") {
			if line == "" {
				p.writeln()
			} else {
				p.line1(line)
			}
		}
		return
	}
	m := ms.Method
	if p.options.ShowBytecode && m.HasCode() {
		p.line1("/*")
		for _, inst := range m.Code {
			p.line1(" * " + inst.String())
		}
		p.line1(" */")
	}

	p.writeIndent()
	if m.Name == "<clinit>" {
		p.write("static")
	} else {
		if mods := m.Access.MethodModifiers(); len(mods) > 0 {
			p.write(strings.Join(mods, " "))
			p.write(" ")
		}
		if m.Name == "<init>" {
			p.write(bytecode.SimpleName(m.Class))
		} else {
			p.write(bytecode.JavaType(m.ReturnType()))
			p.write(" ")
			p.write(m.Name)
		}
		p.write("(")
		p.write(strings.Join(paramList(ms), ", "))
		p.write(")")
	}

	if !m.HasCode() {
		p.writeln(";")
		return
	}

	p.openBrace()
	if ms.Err != nil {
		p.line1("// decompilation failed: " + ms.Err.Error())
	} else if ms.Body != nil {
		p.printBody(ms.Body)
	}
	p.closeBrace()
	p.writeln()
}

// paramList 参数声明，this 不输出
func paramList(ms *MethodSource) []string {
	types := ms.Method.ParamTypes()
	var params []*ir.Variable
	for _, v := range ms.Params {
		if v.Kind != ir.KindThis {
			params = append(params, v)
		}
	}
	out := make([]string, len(types))
	for i, t := range types {
		name := fmt.Sprintf("arg%d", i)
		if i < len(params) {
			name = params[i].String()
		}
		out[i] = bytecode.JavaType(t) + " " + name
	}
	return out
}

// ============================================================================
// 语句
// ============================================================================

func (p *Printer) printBody(b *ast.Block) {
	for _, n := range b.Body {
		p.printNode(n)
	}
}

func (p *Printer) printLabel(n ast.Node) {
	if l := n.LabelName(); l != "" {
		p.indent--
		p.line1(l + ":")
		p.indent++
	}
}

func (p *Printer) printNode(node ast.Node) {
	p.printLabel(node)
	switch n := node.(type) {
	case *ast.Block:
		p.printBody(n)
	case *ast.Statement:
		for _, s := range n.Stmts {
			p.printStmt(s)
		}
	case *ast.If:
		p.writeIndent()
		p.printIf(n)
		p.writeln()
	case *ast.Loop:
		p.printLoop(n)
	case *ast.Switch:
		p.printSwitch(n)
	case *ast.TryCatch:
		p.printTry(n)
	case *ast.Goto:
		p.line1("goto " + n.Target + ";")
	case *ast.Break, *ast.Continue:
		p.line1(n.String() + ";")
	}
}

func (p *Printer) printStmt(s ir.Stmt) {
	switch s.(type) {
	case *ir.IfStmt, *ir.SwitchStmt:
		// 由 If/Switch 节点输出
		return
	}
	p.line1(s.String() + ";")
}

func (p *Printer) printIf(n *ast.If) {
	p.write("if (")
	p.write(n.Cond.String())
	p.write(")")
	p.openBrace()
	p.printBody(n.Then)
	if n.Else == nil {
		p.closeBrace()
		return
	}
	p.closeBraceInline()
	p.write("else")
	if p.options.ElseIfChains && len(n.Else.Body) == 1 {
		if inner, ok := n.Else.Body[0].(*ast.If); ok && inner.Label == "" {
			p.write(" ")
			p.printIf(inner)
			return
		}
	}
	p.openBrace()
	p.printBody(n.Else)
	p.closeBrace()
}

func (p *Printer) printLoop(n *ast.Loop) {
	p.writeIndent()
	switch n.Kind {
	case ast.LoopWhile:
		p.write("while (" + n.Cond.String() + ")")
	case ast.LoopDoWhile:
		p.write("do")
	default:
		p.write("while (true)")
	}
	p.openBrace()
	p.printBody(n.Body)
	if n.Kind == ast.LoopDoWhile {
		p.closeBrace()
		p.writeln(" while (" + n.Cond.String() + ");")
		return
	}
	p.closeBrace()
	p.writeln()
}

func (p *Printer) printSwitch(n *ast.Switch) {
	p.writeIndent()
	value := "<unresolved>"
	if n.Value != nil {
		value = n.Value.String()
	}
	p.write("switch (" + value + ")")
	p.openBrace()
	for _, c := range n.Cases {
		for _, k := range c.Keys {
			p.line1("case " + strconv.FormatInt(k, 10) + ":")
		}
		if c.Default {
			p.line1("default:")
		}
		p.indent++
		p.printBody(c.Body)
		p.indent--
	}
	p.closeBrace()
	p.writeln()
}

func (p *Printer) printTry(n *ast.TryCatch) {
	p.writeIndent()
	p.write("try")
	p.openBrace()
	p.printBody(n.Body)
	for _, c := range n.Catches {
		p.closeBraceInline()
		name := "e"
		if c.Var != nil {
			name = c.Var.String()
		}
		p.write("catch (" + c.TypeNames() + " " + name + ")")
		p.openBrace()
		p.printBody(c.Body)
	}
	if n.Finally != nil {
		p.closeBraceInline()
		p.write("finally")
		p.openBrace()
		p.printBody(n.Finally)
	}
	p.closeBrace()
	p.writeln()
}
