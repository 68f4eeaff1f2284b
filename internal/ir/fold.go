package ir

import (
	"github.com/tangzhangming/dexdec/internal/bytecode"
)

// ============================================================================
// 常量折叠
// ============================================================================

// FoldStmt 折叠语句中的常量表达式，返回是否有变化
func FoldStmt(s Stmt) bool {
	changed := false
	fold := func(e Expr) Expr {
		if e == nil {
			return nil
		}
		r, ok := Fold(e)
		if ok {
			changed = true
		}
		return r
	}
	switch st := s.(type) {
	case *AssignStmt:
		st.Value = fold(st.Value)
	case *ReturnStmt:
		st.Value = fold(st.Value)
	case *IfStmt:
		if c, ok := fold(st.Cond).(*Condition); ok {
			st.Cond = c
		}
	case *SwitchStmt:
		st.Value = fold(st.Value)
	case *StoreFieldStmt:
		st.Value = fold(st.Value)
	case *StoreArrayStmt:
		st.Index = fold(st.Index)
		st.Value = fold(st.Value)
	case *InvokeStmt:
		st.Call = fold(st.Call)
	}
	return changed
}

// Fold 递归折叠表达式，返回新表达式和是否发生折叠
func Fold(e Expr) (Expr, bool) {
	switch x := e.(type) {
	case *BinaryExpr:
		l, c1 := Fold(x.Left)
		r, c2 := Fold(x.Right)
		x.Left, x.Right = l, r
		lc, ok1 := l.(*Constant)
		rc, ok2 := r.(*Constant)
		if ok1 && ok2 {
			if v, ok := foldBinaryOp(lc, rc, x.Op, x.Typ); ok {
				return v, true
			}
		}
		return x, c1 || c2
	case *UnaryExpr:
		o, c := Fold(x.Operand)
		x.Operand = o
		if oc, ok := o.(*Constant); ok && isIntegral(x.Typ) && isIntegral(oc.Typ) {
			v := oc.Int
			if x.Op == bytecode.ArithNeg {
				v = -v
			} else {
				v = ^v
			}
			return &Constant{Typ: x.Typ, Int: truncate(v, x.Typ)}, true
		}
		return x, c
	case *Condition:
		l, c1 := Fold(x.Left)
		x.Left = l
		c2 := false
		if x.Right != nil {
			x.Right, c2 = Fold(x.Right)
		}
		// (a cmp b) op 0 -> a op b
		if cmp, ok := l.(*CompareExpr); ok && x.Right == nil {
			x.Left, x.Right = cmp.Left, cmp.Right
			return x, true
		}
		return x, c1 || c2
	case *CastExpr:
		o, c := Fold(x.Operand)
		x.Operand = o
		if oc, ok := o.(*Constant); ok && !x.Check && isIntegral(oc.Typ) && isIntegral(x.To) {
			return &Constant{Typ: x.To, Int: truncate(oc.Int, x.To)}, true
		}
		return x, c
	case *InvokeExpr:
		changed := false
		for i, a := range x.Args {
			var c bool
			x.Args[i], c = Fold(a)
			changed = changed || c
		}
		return x, changed
	}
	return e, false
}

// foldBinaryOp 折叠两个整数常量的二元运算
func foldBinaryOp(a, b *Constant, op bytecode.ArithOp, typ string) (*Constant, bool) {
	// 只处理整数常量
	if a.IsStr || b.IsStr || !isIntegral(typ) {
		return nil, false
	}
	ai, bi := a.Int, b.Int
	var v int64
	switch op {
	case bytecode.ArithAdd:
		v = ai + bi
	case bytecode.ArithSub:
		v = ai - bi
	case bytecode.ArithMul:
		v = ai * bi
	case bytecode.ArithDiv:
		if bi == 0 {
			return nil, false
		}
		v = ai / bi
	case bytecode.ArithRem:
		if bi == 0 {
			return nil, false
		}
		v = ai % bi
	case bytecode.ArithAnd:
		v = ai & bi
	case bytecode.ArithOr:
		v = ai | bi
	case bytecode.ArithXor:
		v = ai ^ bi
	case bytecode.ArithShl, bytecode.ArithShr, bytecode.ArithUshr:
		bits := uint(31)
		if typ == "J" {
			bits = 63
		}
		s := uint(bi) & bits
		switch op {
		case bytecode.ArithShl:
			v = ai << s
		case bytecode.ArithShr:
			if typ == "J" {
				v = ai >> s
			} else {
				v = int64(int32(ai) >> s)
			}
		default:
			if typ == "J" {
				v = int64(uint64(ai) >> s)
			} else {
				v = int64(uint32(ai) >> s)
			}
		}
	default:
		return nil, false
	}
	return &Constant{Typ: typ, Int: truncate(v, typ)}, true
}

func isIntegral(t string) bool {
	switch t {
	case "I", "J", "B", "S", "C", "Z":
		return true
	}
	return false
}

// truncate 按类型宽度截断
func truncate(v int64, typ string) int64 {
	switch typ {
	case "I":
		return int64(int32(v))
	case "B":
		return int64(int8(v))
	case "S":
		return int64(int16(v))
	case "C":
		return int64(uint16(v))
	case "Z":
		if v != 0 {
			return 1
		}
		return 0
	}
	return v
}
