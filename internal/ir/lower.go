package ir

import (
	"fmt"

	"github.com/tangzhangming/dexdec/internal/bytecode"
)

// LowerError 指令无法转换为语句
type LowerError struct {
	Offset  int
	Message string
}

func (e *LowerError) Error() string {
	return fmt.Sprintf("cannot lower instruction at %04x: %s", e.Offset, e.Message)
}

// Lowerer 把字节码指令翻译为语句
type Lowerer struct {
	vars     *VarTable
	handlers map[int]string // 异常处理入口偏移 -> 捕获类型
}

// NewLowerer 创建翻译器
func NewLowerer(vars *VarTable, m *bytecode.Method) *Lowerer {
	lw := &Lowerer{vars: vars, handlers: make(map[int]string)}
	for _, t := range m.Tries {
		for _, h := range t.Handlers {
			typ, seen := lw.handlers[h.Target]
			switch {
			case !seen:
				lw.handlers[h.Target] = h.Type
			case typ != h.Type:
				// 多个类型共用同一个入口
				lw.handlers[h.Target] = "Ljava/lang/Throwable;"
			}
		}
	}
	return lw
}

func (lw *Lowerer) local(r int) *Local {
	return &Local{Var: lw.vars.Register(r)}
}

func (lw *Lowerer) def(r int) *Variable {
	return lw.vars.Register(r)
}

// Block 翻译一个基本块的指令
//
// 调用指令与紧随的 move-result 合并为一条赋值；goto 和 nop 不产生语句。
func (lw *Lowerer) Block(insts []*bytecode.Instruction) ([]Stmt, error) {
	var out []Stmt
	for i := 0; i < len(insts); i++ {
		inst := insts[i]
		var next *bytecode.Instruction
		if i+1 < len(insts) && insts[i+1].Op == bytecode.OpMoveResult {
			next = insts[i+1]
		}
		switch inst.Op {
		case bytecode.OpInvoke, bytecode.OpFilledNewArray:
			call, err := lw.call(inst)
			if err != nil {
				return nil, err
			}
			if next != nil {
				out = append(out, NewAssign(lw.def(next.Regs[0]), call))
				i++
			} else {
				out = append(out, &InvokeStmt{Call: call})
			}
		case bytecode.OpMoveResult:
			return nil, &LowerError{Offset: inst.Offset, Message: "move-result without a preceding invoke"}
		default:
			s, err := lw.single(inst)
			if err != nil {
				return nil, err
			}
			if s != nil {
				out = append(out, s)
			}
		}
	}
	return FoldConstructors(out), nil
}

func (lw *Lowerer) call(inst *bytecode.Instruction) (Expr, error) {
	if inst.Op == bytecode.OpFilledNewArray {
		fa := &FilledArray{Ref: inst.Ref}
		for _, r := range inst.Regs {
			fa.Elems = append(fa.Elems, lw.local(r))
		}
		return fa, nil
	}
	if inst.Method == nil {
		return nil, &LowerError{Offset: inst.Offset, Message: "invoke without method reference"}
	}
	args := inst.ArgumentRegisters()
	c := &InvokeExpr{Kind: inst.Invoke, Method: inst.Method}
	if inst.Invoke != bytecode.InvokeStatic {
		if len(args) == 0 {
			return nil, &LowerError{Offset: inst.Offset, Message: "instance invoke without receiver"}
		}
		c.Receiver = lw.local(args[0])
		args = args[1:]
	}
	if len(args) != len(inst.Method.Params) {
		return nil, &LowerError{Offset: inst.Offset, Message: "argument count does not match descriptor"}
	}
	for _, r := range args {
		c.Args = append(c.Args, lw.local(r))
	}
	return c, nil
}

func (lw *Lowerer) single(inst *bytecode.Instruction) (Stmt, error) {
	r := inst.Regs
	need := func(n int) error {
		if len(r) < n {
			return &LowerError{Offset: inst.Offset, Message: fmt.Sprintf("%s needs %d registers", inst.Mnemonic, n)}
		}
		return nil
	}
	switch inst.Op {
	case bytecode.OpNop, bytecode.OpGoto:
		return nil, nil
	case bytecode.OpReturnVoid:
		return &ReturnStmt{}, nil
	}

	if err := need(minRegs(inst)); err != nil {
		return nil, err
	}

	switch inst.Op {
	case bytecode.OpMove:
		return NewAssign(lw.def(r[0]), lw.local(r[1])), nil
	case bytecode.OpMoveException:
		return NewAssign(lw.def(r[0]), &ExceptionRef{Ref: lw.handlers[inst.Offset]}), nil
	case bytecode.OpReturn:
		return &ReturnStmt{Value: lw.local(r[0])}, nil
	case bytecode.OpConst:
		return NewAssign(lw.def(r[0]), &Constant{Typ: "I", Int: inst.Literal}), nil
	case bytecode.OpConstWide:
		return NewAssign(lw.def(r[0]), &Constant{Typ: "J", Int: inst.Literal}), nil
	case bytecode.OpConstString:
		return NewAssign(lw.def(r[0]), StringConst(inst.Str)), nil
	case bytecode.OpConstClass:
		return NewAssign(lw.def(r[0]), &ClassRef{Ref: inst.Ref}), nil
	case bytecode.OpMonitorEnter, bytecode.OpMonitorExit:
		return &MonitorStmt{Enter: inst.Op == bytecode.OpMonitorEnter, Object: lw.local(r[0])}, nil
	case bytecode.OpCheckCast:
		return NewAssign(lw.def(r[0]), &CastExpr{To: inst.Ref, Operand: lw.local(r[0]), Check: true}), nil
	case bytecode.OpInstanceOf:
		return NewAssign(lw.def(r[0]), &InstanceOf{Operand: lw.local(r[1]), Ref: inst.Ref}), nil
	case bytecode.OpArrayLength:
		return NewAssign(lw.def(r[0]), &LengthExpr{Array: lw.local(r[1])}), nil
	case bytecode.OpNewInstance:
		return NewAssign(lw.def(r[0]), &NewInstance{Ref: inst.Ref}), nil
	case bytecode.OpNewArray:
		return NewAssign(lw.def(r[0]), &NewArray{Ref: inst.Ref, Size: lw.local(r[1])}), nil
	case bytecode.OpFillArrayData:
		var vals []int64
		if inst.Array != nil {
			vals = inst.Array.Values
		}
		return &FillArrayStmt{Array: lw.local(r[0]), Values: vals}, nil
	case bytecode.OpThrow:
		return &ThrowStmt{Value: lw.local(r[0])}, nil
	case bytecode.OpPackedSwitch, bytecode.OpSparseSwitch:
		return &SwitchStmt{Value: lw.local(r[0])}, nil
	case bytecode.OpCmp:
		return NewAssign(lw.def(r[0]), &CompareExpr{
			Left: lw.local(r[1]), Right: lw.local(r[2]), Typ: inst.Type, Bias: inst.Bias,
		}), nil
	case bytecode.OpIf:
		return &IfStmt{Cond: &Condition{Op: inst.Cond, Left: lw.local(r[0]), Right: lw.local(r[1])}}, nil
	case bytecode.OpIfZ:
		return &IfStmt{Cond: &Condition{Op: inst.Cond, Left: lw.local(r[0])}}, nil
	case bytecode.OpAGet:
		return NewAssign(lw.def(r[0]), &ArrayExpr{Array: lw.local(r[1]), Index: lw.local(r[2]), Typ: inst.Type}), nil
	case bytecode.OpAPut:
		return &StoreArrayStmt{Array: lw.local(r[1]), Index: lw.local(r[2]), Value: lw.local(r[0])}, nil
	case bytecode.OpIGet:
		if inst.Field == nil {
			return nil, &LowerError{Offset: inst.Offset, Message: "field access without reference"}
		}
		return NewAssign(lw.def(r[0]), &FieldExpr{Field: inst.Field, Object: lw.local(r[1])}), nil
	case bytecode.OpIPut:
		if inst.Field == nil {
			return nil, &LowerError{Offset: inst.Offset, Message: "field access without reference"}
		}
		return &StoreFieldStmt{Field: inst.Field, Object: lw.local(r[1]), Value: lw.local(r[0])}, nil
	case bytecode.OpSGet:
		if inst.Field == nil {
			return nil, &LowerError{Offset: inst.Offset, Message: "field access without reference"}
		}
		return NewAssign(lw.def(r[0]), &FieldExpr{Field: inst.Field}), nil
	case bytecode.OpSPut:
		if inst.Field == nil {
			return nil, &LowerError{Offset: inst.Offset, Message: "field access without reference"}
		}
		return &StoreFieldStmt{Field: inst.Field, Value: lw.local(r[0])}, nil
	case bytecode.OpUnary:
		return NewAssign(lw.def(r[0]), &UnaryExpr{Op: inst.Arith, Operand: lw.local(r[1]), Typ: inst.Type}), nil
	case bytecode.OpConvert:
		return NewAssign(lw.def(r[0]), &CastExpr{To: inst.ToType, Operand: lw.local(r[1])}), nil
	case bytecode.OpBinary:
		if inst.TwoAddr {
			return NewAssign(lw.def(r[0]), &BinaryExpr{
				Op: inst.Arith, Left: lw.local(r[0]), Right: lw.local(r[1]), Typ: inst.Type,
			}), nil
		}
		return NewAssign(lw.def(r[0]), &BinaryExpr{
			Op: inst.Arith, Left: lw.local(r[1]), Right: lw.local(r[2]), Typ: inst.Type,
		}), nil
	case bytecode.OpBinaryLit:
		lit := IntConst(inst.Literal)
		if inst.Arith == bytecode.ArithRsub {
			return NewAssign(lw.def(r[0]), &BinaryExpr{
				Op: bytecode.ArithSub, Left: lit, Right: lw.local(r[1]), Typ: "I",
			}), nil
		}
		return NewAssign(lw.def(r[0]), &BinaryExpr{
			Op: inst.Arith, Left: lw.local(r[1]), Right: lit, Typ: "I",
		}), nil
	}
	return nil, &LowerError{Offset: inst.Offset, Message: "unsupported opcode " + inst.Mnemonic}
}

// minRegs 指令需要的最少寄存器操作数
func minRegs(inst *bytecode.Instruction) int {
	switch inst.Op {
	case bytecode.OpMove, bytecode.OpInstanceOf, bytecode.OpArrayLength, bytecode.OpNewArray,
		bytecode.OpIf, bytecode.OpIGet, bytecode.OpIPut, bytecode.OpUnary, bytecode.OpConvert,
		bytecode.OpBinaryLit:
		return 2
	case bytecode.OpCmp, bytecode.OpAGet, bytecode.OpAPut:
		return 3
	case bytecode.OpBinary:
		if inst.TwoAddr {
			return 2
		}
		return 3
	}
	return 1
}

// FoldConstructors 把同一块内的 new-instance 与随后的构造器调用合并为 new T(args)
//
// 仅当两者之间没有重新定义或读取该变量时合并。
func FoldConstructors(stmts []Stmt) []Stmt {
	for i, s := range stmts {
		is, ok := s.(*InvokeStmt)
		if !ok {
			continue
		}
		call, ok := is.Call.(*InvokeExpr)
		if !ok || call.Method.Name != "<init>" || call.Kind != bytecode.InvokeDirect {
			continue
		}
		recv, ok := call.Receiver.(*Local)
		if !ok {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			prev := stmts[j]
			if a, ok := prev.(*AssignStmt); ok && a.Var == recv.Var {
				if ni, ok := a.Value.(*NewInstance); ok && !ni.Init && ni.Ref == call.Method.Class {
					stmts[i] = NewAssign(recv.Var, &NewInstance{Ref: ni.Ref, Args: call.Args, Init: true})
					stmts[j] = nil
				}
				break
			}
			if usesVar(prev, recv.Var) || usesVarIn(call.Args, recv.Var) {
				break
			}
		}
	}
	out := stmts[:0]
	for _, s := range stmts {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func usesVar(s Stmt, v *Variable) bool {
	if s == nil {
		return false
	}
	if s.Def() == v {
		return true
	}
	for _, u := range s.Uses() {
		if u == v {
			return true
		}
	}
	return false
}

func usesVarIn(es []Expr, v *Variable) bool {
	for _, u := range collect(es...) {
		if u == v {
			return true
		}
	}
	return false
}
