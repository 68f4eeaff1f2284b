package ir

import (
	"fmt"
	"strings"

	"github.com/tangzhangming/dexdec/internal/bytecode"
)

// Stmt 语句
//
// 每条语句有方法内唯一的位置编号 Loc；AssignStmt 是唯一定义变量的语句。
type Stmt interface {
	Loc() int
	SetLoc(loc int)
	// Def 定义的变量，没有时返回 nil
	Def() *Variable
	// Uses 读取的变量（求值顺序，保留重复）
	Uses() []*Variable
	// Replace 把对 v 的读取替换为表达式 e
	Replace(v *Variable, e Expr)
	// RenameDef 修改定义的变量
	RenameDef(v *Variable)
	HasSideEffects() bool
	CanThrow() bool
	// Exprs 语句直接包含的表达式
	Exprs() []Expr
	String() string
}

// base 位置编号
type base struct {
	loc int
}

func (b *base) Loc() int              { return b.loc }
func (b *base) SetLoc(loc int)        { b.loc = loc }
func (b *base) Def() *Variable        { return nil }
func (b *base) RenameDef(v *Variable) {}

// RenameUses 把对 old 的读取改为 nv
func RenameUses(s Stmt, old, nv *Variable) {
	s.Replace(old, &Local{Var: nv})
}

// ReadsMemory 语句中是否有读取堆内存的表达式
func ReadsMemory(s Stmt) bool {
	for _, e := range s.Exprs() {
		if e != nil && e.ReadsMemory() {
			return true
		}
	}
	return false
}

// ============================================================================
// 赋值
// ============================================================================

// AssignStmt 变量赋值 v = expr
type AssignStmt struct {
	base
	Var     *Variable
	Value   Expr
	Declare bool // 此处同时声明变量
}

// NewAssign 创建赋值语句
func NewAssign(v *Variable, e Expr) *AssignStmt {
	return &AssignStmt{Var: v, Value: e}
}

func (s *AssignStmt) Def() *Variable        { return s.Var }
func (s *AssignStmt) Uses() []*Variable     { return s.Value.Vars() }
func (s *AssignStmt) RenameDef(v *Variable) { s.Var = v }
func (s *AssignStmt) Replace(v *Variable, e Expr) {
	s.Value = s.Value.substitute(v, e)
}
func (s *AssignStmt) HasSideEffects() bool { return s.Value.HasSideEffects() }
func (s *AssignStmt) CanThrow() bool       { return s.Value.CanThrow() }
func (s *AssignStmt) Exprs() []Expr        { return []Expr{s.Value} }
func (s *AssignStmt) String() string {
	if s.Declare {
		return fmt.Sprintf("%s %s = %s", bytecode.JavaType(varType(s.Var, s.Value)), s.Var, s.Value)
	}
	return fmt.Sprintf("%s = %s", s.Var, s.Value)
}

// IsMove 右侧是否只是另一个变量
func (s *AssignStmt) IsMove() bool {
	_, ok := s.Value.(*Local)
	return ok
}

// DeclStmt 单独的变量声明
type DeclStmt struct {
	base
	Var *Variable
}

func (s *DeclStmt) Uses() []*Variable           { return nil }
func (s *DeclStmt) Replace(v *Variable, e Expr) {}
func (s *DeclStmt) HasSideEffects() bool        { return false }
func (s *DeclStmt) CanThrow() bool              { return false }
func (s *DeclStmt) Exprs() []Expr               { return nil }
func (s *DeclStmt) String() string {
	return fmt.Sprintf("%s %s", bytecode.JavaType(varType(s.Var, nil)), s.Var)
}

func varType(v *Variable, e Expr) string {
	if v.Type != "" {
		return v.Type
	}
	if e != nil && e.Type() != "" {
		return e.Type()
	}
	return "Ljava/lang/Object;"
}

// ============================================================================
// 有副作用的语句
// ============================================================================

// InvokeStmt 丢弃结果的调用
type InvokeStmt struct {
	base
	Call Expr // *InvokeExpr 或 *NewInstance 等有副作用的表达式
}

func (s *InvokeStmt) Uses() []*Variable { return s.Call.Vars() }
func (s *InvokeStmt) Replace(v *Variable, e Expr) {
	s.Call = s.Call.substitute(v, e)
}
func (s *InvokeStmt) HasSideEffects() bool { return true }
func (s *InvokeStmt) CanThrow() bool       { return s.Call.CanThrow() }
func (s *InvokeStmt) Exprs() []Expr        { return []Expr{s.Call} }
func (s *InvokeStmt) String() string       { return s.Call.String() }

// StoreFieldStmt 字段写入；Object 为 nil 表示静态字段
type StoreFieldStmt struct {
	base
	Field  *bytecode.FieldRef
	Object Expr
	Value  Expr
}

func (s *StoreFieldStmt) Uses() []*Variable { return collect(s.Object, s.Value) }
func (s *StoreFieldStmt) Replace(v *Variable, e Expr) {
	if s.Object != nil {
		s.Object = s.Object.substitute(v, e)
	}
	s.Value = s.Value.substitute(v, e)
}
func (s *StoreFieldStmt) HasSideEffects() bool { return true }
func (s *StoreFieldStmt) CanThrow() bool       { return true }
func (s *StoreFieldStmt) Exprs() []Expr        { return []Expr{s.Object, s.Value} }
func (s *StoreFieldStmt) String() string {
	target := (&FieldExpr{Field: s.Field, Object: s.Object}).String()
	return target + " = " + s.Value.String()
}

// StoreArrayStmt 数组元素写入
type StoreArrayStmt struct {
	base
	Array Expr
	Index Expr
	Value Expr
}

func (s *StoreArrayStmt) Uses() []*Variable { return collect(s.Array, s.Index, s.Value) }
func (s *StoreArrayStmt) Replace(v *Variable, e Expr) {
	s.Array = s.Array.substitute(v, e)
	s.Index = s.Index.substitute(v, e)
	s.Value = s.Value.substitute(v, e)
}
func (s *StoreArrayStmt) HasSideEffects() bool { return true }
func (s *StoreArrayStmt) CanThrow() bool       { return true }
func (s *StoreArrayStmt) Exprs() []Expr        { return []Expr{s.Array, s.Index, s.Value} }
func (s *StoreArrayStmt) String() string {
	return paren(s.Array) + "[" + s.Index.String() + "] = " + s.Value.String()
}

// FillArrayStmt fill-array-data
type FillArrayStmt struct {
	base
	Array  Expr
	Values []int64
}

func (s *FillArrayStmt) Uses() []*Variable { return s.Array.Vars() }
func (s *FillArrayStmt) Replace(v *Variable, e Expr) {
	s.Array = s.Array.substitute(v, e)
}
func (s *FillArrayStmt) HasSideEffects() bool { return true }
func (s *FillArrayStmt) CanThrow() bool       { return true }
func (s *FillArrayStmt) Exprs() []Expr        { return []Expr{s.Array} }
func (s *FillArrayStmt) String() string {
	vals := make([]string, len(s.Values))
	for i, v := range s.Values {
		vals[i] = fmt.Sprint(v)
	}
	return s.Array.String() + " = {" + strings.Join(vals, ", ") + "}"
}

// MonitorStmt synchronized 进入/退出
type MonitorStmt struct {
	base
	Enter  bool
	Object Expr
}

func (s *MonitorStmt) Uses() []*Variable { return s.Object.Vars() }
func (s *MonitorStmt) Replace(v *Variable, e Expr) {
	s.Object = s.Object.substitute(v, e)
}
func (s *MonitorStmt) HasSideEffects() bool { return true }
func (s *MonitorStmt) CanThrow() bool       { return true }
func (s *MonitorStmt) Exprs() []Expr        { return []Expr{s.Object} }
func (s *MonitorStmt) String() string {
	if s.Enter {
		return "monitor-enter(" + s.Object.String() + ")"
	}
	return "monitor-exit(" + s.Object.String() + ")"
}

// ============================================================================
// 控制转移
// ============================================================================

// ReturnStmt 返回；Value 为 nil 表示 return-void
type ReturnStmt struct {
	base
	Value Expr
}

func (s *ReturnStmt) Uses() []*Variable { return collect(s.Value) }
func (s *ReturnStmt) Replace(v *Variable, e Expr) {
	if s.Value != nil {
		s.Value = s.Value.substitute(v, e)
	}
}
func (s *ReturnStmt) HasSideEffects() bool { return true }
func (s *ReturnStmt) CanThrow() bool       { return s.Value != nil && s.Value.CanThrow() }
func (s *ReturnStmt) Exprs() []Expr        { return []Expr{s.Value} }
func (s *ReturnStmt) String() string {
	if s.Value == nil {
		return "return"
	}
	return "return " + s.Value.String()
}

// ThrowStmt 抛出异常
type ThrowStmt struct {
	base
	Value Expr
}

func (s *ThrowStmt) Uses() []*Variable { return s.Value.Vars() }
func (s *ThrowStmt) Replace(v *Variable, e Expr) {
	s.Value = s.Value.substitute(v, e)
}
func (s *ThrowStmt) HasSideEffects() bool { return true }
func (s *ThrowStmt) CanThrow() bool       { return true }
func (s *ThrowStmt) Exprs() []Expr        { return []Expr{s.Value} }
func (s *ThrowStmt) String() string       { return "throw " + s.Value.String() }

// IfStmt 条件分支（只出现在条件节点的末尾）
type IfStmt struct {
	base
	Cond *Condition
}

func (s *IfStmt) Uses() []*Variable { return s.Cond.Vars() }
func (s *IfStmt) Replace(v *Variable, e Expr) {
	s.Cond.substitute(v, e)
}
func (s *IfStmt) HasSideEffects() bool { return true }
func (s *IfStmt) CanThrow() bool       { return s.Cond.CanThrow() }
func (s *IfStmt) Exprs() []Expr        { return []Expr{s.Cond} }
func (s *IfStmt) String() string       { return "if (" + s.Cond.String() + ")" }

// SwitchStmt 多路分支（只出现在 switch 节点的末尾）
type SwitchStmt struct {
	base
	Value Expr
}

func (s *SwitchStmt) Uses() []*Variable { return s.Value.Vars() }
func (s *SwitchStmt) Replace(v *Variable, e Expr) {
	s.Value = s.Value.substitute(v, e)
}
func (s *SwitchStmt) HasSideEffects() bool { return true }
func (s *SwitchStmt) CanThrow() bool       { return s.Value.CanThrow() }
func (s *SwitchStmt) Exprs() []Expr        { return []Expr{s.Value} }
func (s *SwitchStmt) String() string       { return "switch (" + s.Value.String() + ")" }
