package ir

import (
	"errors"
	"testing"

	"github.com/tangzhangming/dexdec/internal/bytecode"
)

func inst(t *testing.T, offset int, mnemonic string, regs ...int) *bytecode.Instruction {
	t.Helper()
	i, ok := bytecode.LookupMnemonic(mnemonic)
	if !ok {
		t.Fatalf("unknown mnemonic %s", mnemonic)
	}
	i.Offset = offset
	i.Regs = regs
	return i
}

func constant(t *testing.T, e Expr) int64 {
	t.Helper()
	c, ok := e.(*Constant)
	if !ok {
		t.Fatalf("expected a constant, got %s", e)
	}
	return c.Int
}

// TestFoldArithmetic 测试整数运算折叠按类型宽度截断
func TestFoldArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   bytecode.ArithOp
		a, b int64
		typ  string
		want int64
	}{
		{"add", bytecode.ArithAdd, 1, 1, "I", 2},
		{"overflow", bytecode.ArithMul, 0x40000000, 4, "I", 0},
		{"long", bytecode.ArithMul, 0x40000000, 4, "J", 0x100000000},
		{"shr", bytecode.ArithShr, -8, 1, "I", -4},
		{"ushr", bytecode.ArithUshr, -1, 28, "I", 15},
		{"shift mask", bytecode.ArithShl, 1, 33, "I", 2},
		{"rem", bytecode.ArithRem, -7, 3, "I", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, changed := Fold(&BinaryExpr{Op: tt.op, Left: &Constant{Typ: tt.typ, Int: tt.a}, Right: &Constant{Typ: tt.typ, Int: tt.b}, Typ: tt.typ})
			if !changed || constant(t, e) != tt.want {
				t.Errorf("got %s, want %d", e, tt.want)
			}
		})
	}
}

// TestFoldDivByZero 测试除零不折叠，且仍然可能抛出
func TestFoldDivByZero(t *testing.T) {
	div := &BinaryExpr{Op: bytecode.ArithDiv, Left: IntConst(1), Right: IntConst(0), Typ: "I"}
	e, changed := Fold(div)
	if changed || e != div {
		t.Fatalf("division by zero must not be folded, got %s", e)
	}
	if !div.CanThrow() {
		t.Error("division by zero must be able to throw")
	}
	safe := &BinaryExpr{Op: bytecode.ArithDiv, Left: IntConst(1), Right: IntConst(2), Typ: "F"}
	if _, changed := Fold(safe); changed || safe.CanThrow() {
		t.Error("float division is neither folded nor throwing")
	}
}

// TestFoldNested 测试只折叠常量子表达式
func TestFoldNested(t *testing.T) {
	vars := NewVarTable()
	v := vars.Register(0)
	e := &BinaryExpr{
		Op:    bytecode.ArithAdd,
		Left:  &BinaryExpr{Op: bytecode.ArithMul, Left: IntConst(2), Right: IntConst(3), Typ: "I"},
		Right: &Local{Var: v},
		Typ:   "I",
	}
	r, changed := Fold(e)
	if !changed || r.String() != "6 + v0" {
		t.Errorf("unexpected fold %s", r)
	}

	ret := &ReturnStmt{Value: &UnaryExpr{Op: bytecode.ArithNeg, Operand: IntConst(5), Typ: "I"}}
	if !FoldStmt(ret) || constant(t, ret.Value) != -5 {
		t.Errorf("unexpected return value %s", ret.Value)
	}
	if FoldStmt(ret) {
		t.Error("second fold must report no change")
	}
}

// TestFoldCast 测试整数窄化转换，check-cast 不折叠
func TestFoldCast(t *testing.T) {
	e, changed := Fold(&CastExpr{To: "B", Operand: IntConst(200)})
	if !changed || constant(t, e) != -56 {
		t.Errorf("unexpected narrowing %s", e)
	}
	e, _ = Fold(&CastExpr{To: "C", Operand: IntConst(-1)})
	if constant(t, e) != 0xffff {
		t.Errorf("unexpected char conversion %s", e)
	}
	checked := &CastExpr{To: "I", Operand: IntConst(1), Check: true}
	if _, changed := Fold(checked); changed {
		t.Error("check-cast must not be folded")
	}
}

// TestFoldCompare 测试 cmp 结果与 0 比较化简为直接比较
func TestFoldCompare(t *testing.T) {
	vars := NewVarTable()
	a, b := &Local{Var: vars.Register(0)}, &Local{Var: vars.Register(2)}
	cond := &Condition{Op: bytecode.CondLt, Left: &CompareExpr{Left: a, Right: b, Typ: "J"}}
	s := &IfStmt{Cond: cond}
	if !FoldStmt(s) {
		t.Fatal("expected the comparison to fold")
	}
	if s.Cond.Left != a || s.Cond.Right != b {
		t.Errorf("unexpected condition %s", s.Cond)
	}
}

// TestLowerInvoke 测试调用和 move-result 合并为一条赋值
func TestLowerInvoke(t *testing.T) {
	m := &bytecode.Method{Class: "LT;", Name: "f", Descriptor: "()I", Access: bytecode.AccStatic, Registers: 2}
	call := inst(t, 1, "invoke-static", 0)
	call.Method = &bytecode.MethodRef{Class: "LT;", Name: "g", Params: []string{"I"}, Return: "I"}
	code := []*bytecode.Instruction{
		inst(t, 0, "const/4", 0),
		call,
		inst(t, 4, "move-result", 1),
		inst(t, 5, "return", 1),
	}

	vars := NewVarTable()
	stmts, err := NewLowerer(vars, m).Block(code)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %v", stmts)
	}
	a, ok := stmts[1].(*AssignStmt)
	if !ok || a.Var != vars.Register(1) {
		t.Fatalf("expected an assignment to v1, got %v", stmts[1])
	}
	if a.Value.String() != "T.g(v0)" {
		t.Errorf("unexpected call %s", a.Value)
	}
}

// TestLowerErrors 测试无法翻译的指令返回 LowerError
func TestLowerErrors(t *testing.T) {
	m := &bytecode.Method{Class: "LT;", Name: "f", Descriptor: "()V", Access: bytecode.AccStatic, Registers: 2}

	_, err := NewLowerer(NewVarTable(), m).Block([]*bytecode.Instruction{inst(t, 0, "move-result", 0)})
	var lerr *LowerError
	if !errors.As(err, &lerr) || lerr.Offset != 0 {
		t.Errorf("expected a lower error for a lone move-result, got %v", err)
	}

	call := inst(t, 0, "invoke-static", 0)
	call.Method = &bytecode.MethodRef{Class: "LT;", Name: "g", Params: []string{"I", "I"}, Return: "V"}
	if _, err := NewLowerer(NewVarTable(), m).Block([]*bytecode.Instruction{call}); !errors.As(err, &lerr) {
		t.Errorf("expected an argument count error, got %v", err)
	}
}

// TestFoldConstructors 测试 new-instance 与构造器调用合并
func TestFoldConstructors(t *testing.T) {
	m := &bytecode.Method{Class: "LT;", Name: "f", Descriptor: "()V", Access: bytecode.AccStatic, Registers: 2}
	alloc := inst(t, 0, "new-instance", 0)
	alloc.Ref = "Ljava/lang/StringBuilder;"
	ctor := inst(t, 2, "invoke-direct", 0, 1)
	ctor.Method = &bytecode.MethodRef{Class: "Ljava/lang/StringBuilder;", Name: "<init>", Params: []string{"I"}, Return: "V"}

	stmts, err := NewLowerer(NewVarTable(), m).Block([]*bytecode.Instruction{alloc, ctor})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected the allocation and constructor to merge, got %v", stmts)
	}
	if got := stmts[0].String(); got != "v0 = new StringBuilder(v1)" {
		t.Errorf("unexpected statement %q", got)
	}
}

// TestHandlerExceptionType 测试多个类型共用处理入口时异常类型退化为 Throwable
func TestHandlerExceptionType(t *testing.T) {
	m := &bytecode.Method{
		Class: "LT;", Name: "f", Descriptor: "()V", Access: bytecode.AccStatic, Registers: 1,
		Tries: []*bytecode.TryRange{
			{Start: 0, End: 3, Handlers: []bytecode.Handler{{Type: "Ljava/io/IOException;", Target: 5}}},
			{Start: 3, End: 4, Handlers: []bytecode.Handler{{Type: "Ljava/lang/RuntimeException;", Target: 5}}},
		},
	}
	stmts, err := NewLowerer(NewVarTable(), m).Block([]*bytecode.Instruction{inst(t, 5, "move-exception", 0)})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if typ := stmts[0].(*AssignStmt).Value.Type(); typ != "Ljava/lang/Throwable;" {
		t.Errorf("unexpected exception type %s", typ)
	}
}

// TestVarTable 测试参数与拆分变量的命名
func TestVarTable(t *testing.T) {
	vars := NewVarTable()
	this := vars.Param(1, "LT;", true)
	p := vars.Param(2, "I", false)
	if this.String() != "this" || p.String() != "p2" || len(vars.Params()) != 2 {
		t.Errorf("unexpected params %v %v", this, p)
	}
	fresh := vars.Fresh(p)
	if fresh.Kind != KindTemp || fresh.Type != "" || fresh.String() != "v2_1" {
		t.Errorf("unexpected fresh variable %+v", fresh)
	}
	local := vars.Register(0)
	local.Type = "J"
	if v := vars.Fresh(local); v.Type != "J" || v.Kind != KindLocal || vars.Len() != 5 {
		t.Errorf("unexpected fresh local %+v", v)
	}
}

// TestConditionNegate 测试取反返回新条件且不改动原条件
func TestConditionNegate(t *testing.T) {
	vars := NewVarTable()
	p := vars.Param(0, "I", false)
	c := &Condition{Op: bytecode.CondLt, Left: &Local{Var: p}}
	n := c.Negate()
	if n == c {
		t.Fatal("Negate returned its receiver")
	}
	if c.Op != bytecode.CondLt || n.Op != bytecode.CondGe {
		t.Errorf("ops = %v, %v", c.Op, n.Op)
	}
	if n.Negate().Op != c.Op || n.Left != c.Left {
		t.Errorf("double negation = %s, want %s", n.Negate(), c)
	}
}
