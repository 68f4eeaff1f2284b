package ir

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tangzhangming/dexdec/internal/bytecode"
)

// Expr 表达式
type Expr interface {
	// Type 表达式类型描述符（未知时为空）
	Type() string
	// Vars 按求值顺序收集读取的变量（保留重复）
	Vars() []*Variable
	// HasSideEffects 求值是否有副作用（调用、分配）
	HasSideEffects() bool
	// CanThrow 求值是否可能抛出异常
	CanThrow() bool
	// ReadsMemory 求值是否读取堆内存（字段、数组、调用）
	ReadsMemory() bool
	String() string

	substitute(v *Variable, e Expr) Expr
}

// Substitute 把表达式中对 v 的读取替换为 e
func Substitute(expr Expr, v *Variable, e Expr) Expr {
	if expr == nil {
		return nil
	}
	return expr.substitute(v, e)
}

// IsLeaf 表达式是否为单个变量或常量
func IsLeaf(e Expr) bool {
	switch e.(type) {
	case *Local, *Constant:
		return true
	}
	return false
}

func collect(exprs ...Expr) []*Variable {
	var out []*Variable
	for _, e := range exprs {
		if e != nil {
			out = append(out, e.Vars()...)
		}
	}
	return out
}

func anyOf(f func(Expr) bool, exprs ...Expr) bool {
	for _, e := range exprs {
		if e != nil && f(e) {
			return true
		}
	}
	return false
}

func sideEffects(e Expr) bool { return e.HasSideEffects() }
func canThrow(e Expr) bool    { return e.CanThrow() }
func readsMemory(e Expr) bool { return e.ReadsMemory() }

// ============================================================================
// 叶子表达式
// ============================================================================

// Local 变量读取
type Local struct {
	Var *Variable
}

func (l *Local) Type() string         { return l.Var.Type }
func (l *Local) Vars() []*Variable    { return []*Variable{l.Var} }
func (l *Local) HasSideEffects() bool { return false }
func (l *Local) CanThrow() bool       { return false }
func (l *Local) ReadsMemory() bool    { return false }
func (l *Local) String() string       { return l.Var.String() }

func (l *Local) substitute(v *Variable, e Expr) Expr {
	if l.Var == v {
		return e
	}
	return l
}

// Constant 常量
type Constant struct {
	Typ   string // I J F D Z ... 或类描述符
	Int   int64  // 整数值或浮点位模式
	Str   string // 字符串常量
	IsStr bool
}

// IntConst 创建 int 常量
func IntConst(v int64) *Constant { return &Constant{Typ: "I", Int: v} }

// StringConst 创建字符串常量
func StringConst(s string) *Constant {
	return &Constant{Typ: "Ljava/lang/String;", Str: s, IsStr: true}
}

func (c *Constant) Type() string                        { return c.Typ }
func (c *Constant) Vars() []*Variable                   { return nil }
func (c *Constant) HasSideEffects() bool                { return false }
func (c *Constant) CanThrow() bool                      { return false }
func (c *Constant) ReadsMemory() bool                   { return false }
func (c *Constant) substitute(v *Variable, e Expr) Expr { return c }

// IsZero 是否为 0（或 null）
func (c *Constant) IsZero() bool { return !c.IsStr && c.Int == 0 }

func (c *Constant) String() string {
	if c.IsStr {
		return strconv.Quote(c.Str)
	}
	switch c.Typ {
	case "Z":
		if c.Int == 0 {
			return "false"
		}
		return "true"
	case "J":
		return strconv.FormatInt(c.Int, 10) + "L"
	case "F":
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(c.Int))), 'g', -1, 32) + "F"
	case "D":
		return strconv.FormatFloat(math.Float64frombits(uint64(c.Int)), 'g', -1, 64) + "D"
	case "C":
		if c.Int >= 0x20 && c.Int < 0x7f {
			return strconv.QuoteRune(rune(c.Int))
		}
	case "I", "B", "S", "":
	default:
		if c.Int == 0 {
			return "null"
		}
	}
	return strconv.FormatInt(int64(int32(c.Int)), 10)
}

// ClassRef 类字面量 Foo.class
type ClassRef struct {
	Ref string
}

func (c *ClassRef) Type() string                        { return "Ljava/lang/Class;" }
func (c *ClassRef) Vars() []*Variable                   { return nil }
func (c *ClassRef) HasSideEffects() bool                { return false }
func (c *ClassRef) CanThrow() bool                      { return true }
func (c *ClassRef) ReadsMemory() bool                   { return false }
func (c *ClassRef) substitute(v *Variable, e Expr) Expr { return c }
func (c *ClassRef) String() string                      { return bytecode.JavaType(c.Ref) + ".class" }

// ExceptionRef 异常处理入口处捕获的异常对象
type ExceptionRef struct {
	Ref string
}

func (x *ExceptionRef) Type() string {
	if x.Ref == "" {
		return "Ljava/lang/Throwable;"
	}
	return x.Ref
}
func (x *ExceptionRef) Vars() []*Variable                   { return nil }
func (x *ExceptionRef) HasSideEffects() bool                { return false }
func (x *ExceptionRef) CanThrow() bool                      { return false }
func (x *ExceptionRef) ReadsMemory() bool                   { return false }
func (x *ExceptionRef) substitute(v *Variable, e Expr) Expr { return x }
func (x *ExceptionRef) String() string                      { return "<caught " + bytecode.JavaType(x.Type()) + ">" }

// ============================================================================
// 运算
// ============================================================================

// BinaryExpr 二元运算
type BinaryExpr struct {
	Op    bytecode.ArithOp
	Left  Expr
	Right Expr
	Typ   string
}

func (b *BinaryExpr) Type() string         { return b.Typ }
func (b *BinaryExpr) Vars() []*Variable    { return collect(b.Left, b.Right) }
func (b *BinaryExpr) HasSideEffects() bool { return anyOf(sideEffects, b.Left, b.Right) }
func (b *BinaryExpr) ReadsMemory() bool    { return anyOf(readsMemory, b.Left, b.Right) }
func (b *BinaryExpr) CanThrow() bool {
	if b.Op.CanThrow(b.Typ) {
		if c, ok := b.Right.(*Constant); !ok || c.IsZero() {
			return true
		}
	}
	return anyOf(canThrow, b.Left, b.Right)
}
func (b *BinaryExpr) substitute(v *Variable, e Expr) Expr {
	b.Left = b.Left.substitute(v, e)
	b.Right = b.Right.substitute(v, e)
	return b
}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("%s %s %s", paren(b.Left), b.Op.Symbol(), paren(b.Right))
}

// UnaryExpr 一元运算（取负、按位取反）
type UnaryExpr struct {
	Op      bytecode.ArithOp
	Operand Expr
	Typ     string
}

func (u *UnaryExpr) Type() string         { return u.Typ }
func (u *UnaryExpr) Vars() []*Variable    { return u.Operand.Vars() }
func (u *UnaryExpr) HasSideEffects() bool { return u.Operand.HasSideEffects() }
func (u *UnaryExpr) CanThrow() bool       { return u.Operand.CanThrow() }
func (u *UnaryExpr) ReadsMemory() bool    { return u.Operand.ReadsMemory() }
func (u *UnaryExpr) substitute(v *Variable, e Expr) Expr {
	u.Operand = u.Operand.substitute(v, e)
	return u
}
func (u *UnaryExpr) String() string { return u.Op.Symbol() + paren(u.Operand) }

// CastExpr 类型转换（基本类型转换或 check-cast）
type CastExpr struct {
	To      string
	Operand Expr
	Check   bool // check-cast，可能抛出 ClassCastException
}

func (c *CastExpr) Type() string         { return c.To }
func (c *CastExpr) Vars() []*Variable    { return c.Operand.Vars() }
func (c *CastExpr) HasSideEffects() bool { return c.Operand.HasSideEffects() }
func (c *CastExpr) CanThrow() bool       { return c.Check || c.Operand.CanThrow() }
func (c *CastExpr) ReadsMemory() bool    { return c.Operand.ReadsMemory() }
func (c *CastExpr) substitute(v *Variable, e Expr) Expr {
	c.Operand = c.Operand.substitute(v, e)
	return c
}
func (c *CastExpr) String() string {
	return "(" + bytecode.JavaType(c.To) + ") " + paren(c.Operand)
}

// CompareExpr cmp/cmpl/cmpg 比较，结果为 -1/0/1
type CompareExpr struct {
	Left  Expr
	Right Expr
	Typ   string // 操作数类型
	Bias  string
}

func (c *CompareExpr) Type() string         { return "I" }
func (c *CompareExpr) Vars() []*Variable    { return collect(c.Left, c.Right) }
func (c *CompareExpr) HasSideEffects() bool { return anyOf(sideEffects, c.Left, c.Right) }
func (c *CompareExpr) CanThrow() bool       { return anyOf(canThrow, c.Left, c.Right) }
func (c *CompareExpr) ReadsMemory() bool    { return anyOf(readsMemory, c.Left, c.Right) }
func (c *CompareExpr) substitute(v *Variable, e Expr) Expr {
	c.Left = c.Left.substitute(v, e)
	c.Right = c.Right.substitute(v, e)
	return c
}
func (c *CompareExpr) String() string {
	return fmt.Sprintf("%s cmp%s %s", paren(c.Left), c.Bias, paren(c.Right))
}

// Condition 分支条件；Right 为 nil 时与 0/null 比较
type Condition struct {
	Op    bytecode.Cond
	Left  Expr
	Right Expr
}

func (c *Condition) Type() string         { return "Z" }
func (c *Condition) Vars() []*Variable    { return collect(c.Left, c.Right) }
func (c *Condition) HasSideEffects() bool { return anyOf(sideEffects, c.Left, c.Right) }
func (c *Condition) CanThrow() bool       { return anyOf(canThrow, c.Left, c.Right) }
func (c *Condition) ReadsMemory() bool    { return anyOf(readsMemory, c.Left, c.Right) }
func (c *Condition) substitute(v *Variable, e Expr) Expr {
	c.Left = c.Left.substitute(v, e)
	if c.Right != nil {
		c.Right = c.Right.substitute(v, e)
	}
	return c
}

// Negate 返回取反后的新条件，c 本身不变
func (c *Condition) Negate() *Condition {
	return &Condition{Op: c.Op.Negate(), Left: c.Left, Right: c.Right}
}

func (c *Condition) String() string {
	left := c.Left
	if c.Right == nil {
		t := left.Type()
		// boolean 与 0 比较直接写成 x / !x
		if t == "Z" && (c.Op == bytecode.CondEq || c.Op == bytecode.CondNe) {
			if c.Op == bytecode.CondNe {
				return left.String()
			}
			return "!" + paren(left)
		}
		zero := "0"
		if isReference(t) {
			zero = "null"
		}
		return fmt.Sprintf("%s %s %s", paren(left), c.Op.Symbol(), zero)
	}
	return fmt.Sprintf("%s %s %s", paren(left), c.Op.Symbol(), paren(c.Right))
}

// InstanceOf instanceof 判断
type InstanceOf struct {
	Operand Expr
	Ref     string
}

func (i *InstanceOf) Type() string         { return "Z" }
func (i *InstanceOf) Vars() []*Variable    { return i.Operand.Vars() }
func (i *InstanceOf) HasSideEffects() bool { return i.Operand.HasSideEffects() }
func (i *InstanceOf) CanThrow() bool       { return true }
func (i *InstanceOf) ReadsMemory() bool    { return i.Operand.ReadsMemory() }
func (i *InstanceOf) substitute(v *Variable, e Expr) Expr {
	i.Operand = i.Operand.substitute(v, e)
	return i
}
func (i *InstanceOf) String() string {
	return paren(i.Operand) + " instanceof " + bytecode.JavaType(i.Ref)
}

// ============================================================================
// 内存访问与调用
// ============================================================================

// FieldExpr 字段读取；Object 为 nil 表示静态字段
type FieldExpr struct {
	Field  *bytecode.FieldRef
	Object Expr
}

func (f *FieldExpr) Type() string         { return f.Field.Type }
func (f *FieldExpr) Vars() []*Variable    { return collect(f.Object) }
func (f *FieldExpr) HasSideEffects() bool { return anyOf(sideEffects, f.Object) }
func (f *FieldExpr) CanThrow() bool       { return true }
func (f *FieldExpr) ReadsMemory() bool    { return true }
func (f *FieldExpr) substitute(v *Variable, e Expr) Expr {
	if f.Object != nil {
		f.Object = f.Object.substitute(v, e)
	}
	return f
}
func (f *FieldExpr) String() string {
	if f.Object == nil {
		return bytecode.JavaType(f.Field.Class) + "." + f.Field.Name
	}
	return paren(f.Object) + "." + f.Field.Name
}

// ArrayExpr 数组元素读取
type ArrayExpr struct {
	Array Expr
	Index Expr
	Typ   string
}

func (a *ArrayExpr) Type() string {
	if t := a.Array.Type(); strings.HasPrefix(t, "[") {
		return t[1:]
	}
	return a.Typ
}
func (a *ArrayExpr) Vars() []*Variable    { return collect(a.Array, a.Index) }
func (a *ArrayExpr) HasSideEffects() bool { return anyOf(sideEffects, a.Array, a.Index) }
func (a *ArrayExpr) CanThrow() bool       { return true }
func (a *ArrayExpr) ReadsMemory() bool    { return true }
func (a *ArrayExpr) substitute(v *Variable, e Expr) Expr {
	a.Array = a.Array.substitute(v, e)
	a.Index = a.Index.substitute(v, e)
	return a
}
func (a *ArrayExpr) String() string { return paren(a.Array) + "[" + a.Index.String() + "]" }

// LengthExpr 数组长度
type LengthExpr struct {
	Array Expr
}

func (l *LengthExpr) Type() string         { return "I" }
func (l *LengthExpr) Vars() []*Variable    { return l.Array.Vars() }
func (l *LengthExpr) HasSideEffects() bool { return l.Array.HasSideEffects() }
func (l *LengthExpr) CanThrow() bool       { return true }
func (l *LengthExpr) ReadsMemory() bool    { return true }
func (l *LengthExpr) substitute(v *Variable, e Expr) Expr {
	l.Array = l.Array.substitute(v, e)
	return l
}
func (l *LengthExpr) String() string { return paren(l.Array) + ".length" }

// NewInstance 对象分配；Args 非 nil 表示已与构造器调用合并
type NewInstance struct {
	Ref  string
	Args []Expr
	Init bool
}

func (n *NewInstance) Type() string         { return n.Ref }
func (n *NewInstance) Vars() []*Variable    { return collect(n.Args...) }
func (n *NewInstance) HasSideEffects() bool { return true }
func (n *NewInstance) CanThrow() bool       { return true }
func (n *NewInstance) ReadsMemory() bool    { return n.Init }
func (n *NewInstance) substitute(v *Variable, e Expr) Expr {
	for i := range n.Args {
		n.Args[i] = n.Args[i].substitute(v, e)
	}
	return n
}
func (n *NewInstance) String() string {
	if !n.Init {
		return "new " + bytecode.JavaType(n.Ref)
	}
	return "new " + bytecode.JavaType(n.Ref) + "(" + joinExprs(n.Args) + ")"
}

// NewArray 数组分配
type NewArray struct {
	Ref  string // 数组类型描述符
	Size Expr
}

func (n *NewArray) Type() string         { return n.Ref }
func (n *NewArray) Vars() []*Variable    { return n.Size.Vars() }
func (n *NewArray) HasSideEffects() bool { return true }
func (n *NewArray) CanThrow() bool       { return true }
func (n *NewArray) ReadsMemory() bool    { return n.Size.ReadsMemory() }
func (n *NewArray) substitute(v *Variable, e Expr) Expr {
	n.Size = n.Size.substitute(v, e)
	return n
}
func (n *NewArray) String() string {
	elem := strings.TrimPrefix(n.Ref, "[")
	typ := bytecode.JavaType(elem)
	// 多维数组：new int[n][]
	base := typ
	dims := ""
	if i := strings.IndexByte(typ, '['); i >= 0 {
		base, dims = typ[:i], typ[i:]
	}
	return "new " + base + "[" + n.Size.String() + "]" + dims
}

// FilledArray filled-new-array 形成的数组
type FilledArray struct {
	Ref   string
	Elems []Expr
}

func (f *FilledArray) Type() string         { return f.Ref }
func (f *FilledArray) Vars() []*Variable    { return collect(f.Elems...) }
func (f *FilledArray) HasSideEffects() bool { return true }
func (f *FilledArray) CanThrow() bool       { return true }
func (f *FilledArray) ReadsMemory() bool    { return anyOf(readsMemory, f.Elems...) }
func (f *FilledArray) substitute(v *Variable, e Expr) Expr {
	for i := range f.Elems {
		f.Elems[i] = f.Elems[i].substitute(v, e)
	}
	return f
}
func (f *FilledArray) String() string {
	return "new " + bytecode.JavaType(f.Ref) + " {" + joinExprs(f.Elems) + "}"
}

// InvokeExpr 方法调用；Receiver 为 nil 表示静态调用
type InvokeExpr struct {
	Kind     bytecode.InvokeKind
	Method   *bytecode.MethodRef
	Receiver Expr
	Args     []Expr
}

func (c *InvokeExpr) Type() string { return c.Method.Return }
func (c *InvokeExpr) Vars() []*Variable {
	return append(collect(c.Receiver), collect(c.Args...)...)
}
func (c *InvokeExpr) HasSideEffects() bool { return true }
func (c *InvokeExpr) CanThrow() bool       { return true }
func (c *InvokeExpr) ReadsMemory() bool    { return true }
func (c *InvokeExpr) substitute(v *Variable, e Expr) Expr {
	if c.Receiver != nil {
		c.Receiver = c.Receiver.substitute(v, e)
	}
	for i := range c.Args {
		c.Args[i] = c.Args[i].substitute(v, e)
	}
	return c
}

// NestedSideEffects 参数或接收者中是否还有其他副作用
func (c *InvokeExpr) NestedSideEffects() bool {
	return anyOf(sideEffects, c.Receiver) || anyOf(sideEffects, c.Args...)
}

func (c *InvokeExpr) String() string {
	args := joinExprs(c.Args)
	switch {
	case c.Method.Name == "<init>":
		recv := "this"
		if c.Receiver != nil {
			recv = c.Receiver.String()
		}
		if c.Kind == bytecode.InvokeDirect && recv == "this" {
			return "super(" + args + ")"
		}
		return recv + ".<init>(" + args + ")"
	case c.Receiver == nil:
		return bytecode.JavaType(c.Method.Class) + "." + c.Method.Name + "(" + args + ")"
	case c.Kind == bytecode.InvokeSuper:
		return "super." + c.Method.Name + "(" + args + ")"
	}
	return paren(c.Receiver) + "." + c.Method.Name + "(" + args + ")"
}

// ============================================================================
// 辅助函数
// ============================================================================

func joinExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// paren 复合表达式作为操作数时加括号
func paren(e Expr) string {
	switch e.(type) {
	case *BinaryExpr, *Condition, *CastExpr, *InstanceOf, *CompareExpr, *UnaryExpr:
		return "(" + e.String() + ")"
	}
	return e.String()
}

func isReference(t string) bool {
	return strings.HasPrefix(t, "L") || strings.HasPrefix(t, "[")
}
