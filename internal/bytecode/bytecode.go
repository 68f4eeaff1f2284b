// Package bytecode 定义寄存器字节码的指令、基本块与方法模型
package bytecode

import (
	"fmt"
	"strings"
)

// OpCode 操作码族
//
// 同一族的指令共享定义/使用规则，具体变体（宽度、操作数类型、条件等）
// 记录在 Instruction 的其他字段中。
type OpCode byte

const (
	OpNop OpCode = iota

	// 数据移动
	OpMove          // move vA, vB
	OpMoveResult    // move-result vA
	OpMoveException // move-exception vA

	// 返回
	OpReturnVoid // return-void
	OpReturn     // return vA

	// 常量
	OpConst       // const vA, #lit
	OpConstWide   // const-wide vA, #lit
	OpConstString // const-string vA, "str"
	OpConstClass  // const-class vA, Type

	// 同步
	OpMonitorEnter // monitor-enter vA
	OpMonitorExit  // monitor-exit vA

	// 类型与对象
	OpCheckCast      // check-cast vA, Type
	OpInstanceOf     // instance-of vA, vB, Type
	OpArrayLength    // array-length vA, vB
	OpNewInstance    // new-instance vA, Type
	OpNewArray       // new-array vA, vB, Type
	OpFilledNewArray // filled-new-array {..}, Type
	OpFillArrayData  // fill-array-data vA, :payload
	OpThrow          // throw vA

	// 跳转
	OpGoto         // goto :label
	OpPackedSwitch // packed-switch vA, :payload
	OpSparseSwitch // sparse-switch vA, :payload
	OpCmp          // cmpl/cmpg/cmp vA, vB, vC
	OpIf           // if-xx vA, vB, :label
	OpIfZ          // if-xxz vA, :label

	// 数组与字段
	OpAGet // aget vA, vB, vC
	OpAPut // aput vA, vB, vC
	OpIGet // iget vA, vB, Field
	OpIPut // iput vA, vB, Field
	OpSGet // sget vA, Field
	OpSPut // sput vA, Field

	// 调用
	OpInvoke // invoke-kind {..}, Method

	// 运算
	OpUnary      // neg-x / not-x vA, vB
	OpConvert    // x-to-y vA, vB
	OpBinary     // op vA, vB, vC 以及 op/2addr vA, vB
	OpBinaryLit  // op/lit8, op/lit16 vA, vB, #lit
	opCodeCount  // 操作码族数量
)

var opNames = [...]string{
	OpNop:            "nop",
	OpMove:           "move",
	OpMoveResult:     "move-result",
	OpMoveException:  "move-exception",
	OpReturnVoid:     "return-void",
	OpReturn:         "return",
	OpConst:          "const",
	OpConstWide:      "const-wide",
	OpConstString:    "const-string",
	OpConstClass:     "const-class",
	OpMonitorEnter:   "monitor-enter",
	OpMonitorExit:    "monitor-exit",
	OpCheckCast:      "check-cast",
	OpInstanceOf:     "instance-of",
	OpArrayLength:    "array-length",
	OpNewInstance:    "new-instance",
	OpNewArray:       "new-array",
	OpFilledNewArray: "filled-new-array",
	OpFillArrayData:  "fill-array-data",
	OpThrow:          "throw",
	OpGoto:           "goto",
	OpPackedSwitch:   "packed-switch",
	OpSparseSwitch:   "sparse-switch",
	OpCmp:            "cmp",
	OpIf:             "if",
	OpIfZ:            "ifz",
	OpAGet:           "aget",
	OpAPut:           "aput",
	OpIGet:           "iget",
	OpIPut:           "iput",
	OpSGet:           "sget",
	OpSPut:           "sput",
	OpInvoke:         "invoke",
	OpUnary:          "unary",
	OpConvert:        "convert",
	OpBinary:         "binary",
	OpBinaryLit:      "binary-lit",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// IsTerminator 指令之后不会顺序执行到下一条指令
func (op OpCode) IsTerminator() bool {
	switch op {
	case OpGoto, OpReturn, OpReturnVoid, OpThrow:
		return true
	}
	return false
}

// IsBranch 是否为分支指令（结束基本块）
func (op OpCode) IsBranch() bool {
	switch op {
	case OpGoto, OpIf, OpIfZ, OpPackedSwitch, OpSparseSwitch:
		return true
	}
	return false
}

// ============================================================================
// 条件与运算符
// ============================================================================

// Cond 比较条件
type Cond byte

const (
	CondEq Cond = iota
	CondNe
	CondLt
	CondGe
	CondGt
	CondLe
)

var condNames = [...]string{"eq", "ne", "lt", "ge", "gt", "le"}
var condSymbols = [...]string{"==", "!=", "<", ">=", ">", "<="}

func (c Cond) String() string { return condNames[c] }

// Symbol 条件对应的运算符
func (c Cond) Symbol() string { return condSymbols[c] }

// Negate 取反条件
func (c Cond) Negate() Cond {
	switch c {
	case CondEq:
		return CondNe
	case CondNe:
		return CondEq
	case CondLt:
		return CondGe
	case CondGe:
		return CondLt
	case CondGt:
		return CondLe
	default:
		return CondGt
	}
}

// ArithOp 算术/位运算符
type ArithOp byte

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithDiv
	ArithRem
	ArithAnd
	ArithOr
	ArithXor
	ArithShl
	ArithShr
	ArithUshr
	ArithRsub // rsub-int: lit - vB
	ArithNeg
	ArithNot
)

var arithSymbols = [...]string{"+", "-", "*", "/", "%", "&", "|", "^", "<<", ">>", ">>>", "-", "-", "~"}
var arithNames = [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr", "ushr", "rsub", "neg", "not"}

func (a ArithOp) String() string { return arithNames[a] }

// Symbol 运算符文本
func (a ArithOp) Symbol() string { return arithSymbols[a] }

// CanThrow 运算是否可能抛出 ArithmeticException（整数除零）
func (a ArithOp) CanThrow(typ string) bool {
	return (a == ArithDiv || a == ArithRem) && (typ == "I" || typ == "J")
}

// InvokeKind 调用类型
type InvokeKind byte

const (
	InvokeVirtual InvokeKind = iota
	InvokeSuper
	InvokeDirect
	InvokeStatic
	InvokeInterface
)

var invokeNames = [...]string{"virtual", "super", "direct", "static", "interface"}

func (k InvokeKind) String() string { return invokeNames[k] }

// ============================================================================
// 助记符表
// ============================================================================

// opInfo 助记符对应的指令信息
type opInfo struct {
	op      OpCode
	width   int     // 代码单元数
	typ     string  // 操作数类型描述符
	toType  string  // 转换目标类型
	cond    Cond    // 条件
	arith   ArithOp // 运算符
	invoke  InvokeKind
	twoAddr bool
	rangeOp bool
	bias    string // cmpl / cmpg
}

var mnemonics = map[string]opInfo{}

func reg(name string, info opInfo) {
	mnemonics[name] = info
}

func init() {
	reg("nop", opInfo{op: OpNop, width: 1})

	// move 族
	for _, v := range []struct{ suffix, typ string }{{"", "I"}, {"-wide", "J"}, {"-object", "L"}} {
		reg("move"+v.suffix, opInfo{op: OpMove, width: 1, typ: v.typ})
		reg("move"+v.suffix+"/from16", opInfo{op: OpMove, width: 2, typ: v.typ})
		reg("move"+v.suffix+"/16", opInfo{op: OpMove, width: 3, typ: v.typ})
		reg("move-result"+v.suffix, opInfo{op: OpMoveResult, width: 1, typ: v.typ})
		reg("return"+v.suffix, opInfo{op: OpReturn, width: 1, typ: v.typ})
	}
	reg("move-exception", opInfo{op: OpMoveException, width: 1, typ: "L"})
	reg("return-void", opInfo{op: OpReturnVoid, width: 1, typ: "V"})

	// 常量
	reg("const/4", opInfo{op: OpConst, width: 1, typ: "I"})
	reg("const/16", opInfo{op: OpConst, width: 2, typ: "I"})
	reg("const", opInfo{op: OpConst, width: 3, typ: "I"})
	reg("const/high16", opInfo{op: OpConst, width: 2, typ: "I"})
	reg("const-wide/16", opInfo{op: OpConstWide, width: 2, typ: "J"})
	reg("const-wide/32", opInfo{op: OpConstWide, width: 3, typ: "J"})
	reg("const-wide", opInfo{op: OpConstWide, width: 5, typ: "J"})
	reg("const-wide/high16", opInfo{op: OpConstWide, width: 2, typ: "J"})
	reg("const-string", opInfo{op: OpConstString, width: 2, typ: "Ljava/lang/String;"})
	reg("const-string/jumbo", opInfo{op: OpConstString, width: 3, typ: "Ljava/lang/String;"})
	reg("const-class", opInfo{op: OpConstClass, width: 2, typ: "Ljava/lang/Class;"})

	reg("monitor-enter", opInfo{op: OpMonitorEnter, width: 1})
	reg("monitor-exit", opInfo{op: OpMonitorExit, width: 1})
	reg("check-cast", opInfo{op: OpCheckCast, width: 2})
	reg("instance-of", opInfo{op: OpInstanceOf, width: 2, typ: "Z"})
	reg("array-length", opInfo{op: OpArrayLength, width: 1, typ: "I"})
	reg("new-instance", opInfo{op: OpNewInstance, width: 2})
	reg("new-array", opInfo{op: OpNewArray, width: 2})
	reg("filled-new-array", opInfo{op: OpFilledNewArray, width: 3})
	reg("filled-new-array/range", opInfo{op: OpFilledNewArray, width: 3, rangeOp: true})
	reg("fill-array-data", opInfo{op: OpFillArrayData, width: 3})
	reg("throw", opInfo{op: OpThrow, width: 1})

	reg("goto", opInfo{op: OpGoto, width: 1})
	reg("goto/16", opInfo{op: OpGoto, width: 2})
	reg("goto/32", opInfo{op: OpGoto, width: 3})
	reg("packed-switch", opInfo{op: OpPackedSwitch, width: 3})
	reg("sparse-switch", opInfo{op: OpSparseSwitch, width: 3})

	reg("cmpl-float", opInfo{op: OpCmp, width: 2, typ: "F", bias: "l"})
	reg("cmpg-float", opInfo{op: OpCmp, width: 2, typ: "F", bias: "g"})
	reg("cmpl-double", opInfo{op: OpCmp, width: 2, typ: "D", bias: "l"})
	reg("cmpg-double", opInfo{op: OpCmp, width: 2, typ: "D", bias: "g"})
	reg("cmp-long", opInfo{op: OpCmp, width: 2, typ: "J"})

	for c, name := range condNames {
		reg("if-"+name, opInfo{op: OpIf, width: 2, cond: Cond(c)})
		reg("if-"+name+"z", opInfo{op: OpIfZ, width: 2, cond: Cond(c)})
	}

	// 数组与字段访问
	accessTypes := []struct{ suffix, typ string }{
		{"", "I"}, {"-wide", "J"}, {"-object", "L"}, {"-boolean", "Z"},
		{"-byte", "B"}, {"-char", "C"}, {"-short", "S"},
	}
	for _, v := range accessTypes {
		reg("aget"+v.suffix, opInfo{op: OpAGet, width: 2, typ: v.typ})
		reg("aput"+v.suffix, opInfo{op: OpAPut, width: 2, typ: v.typ})
		reg("iget"+v.suffix, opInfo{op: OpIGet, width: 2, typ: v.typ})
		reg("iput"+v.suffix, opInfo{op: OpIPut, width: 2, typ: v.typ})
		reg("sget"+v.suffix, opInfo{op: OpSGet, width: 2, typ: v.typ})
		reg("sput"+v.suffix, opInfo{op: OpSPut, width: 2, typ: v.typ})
	}

	for k, name := range invokeNames {
		reg("invoke-"+name, opInfo{op: OpInvoke, width: 3, invoke: InvokeKind(k)})
		reg("invoke-"+name+"/range", opInfo{op: OpInvoke, width: 3, invoke: InvokeKind(k), rangeOp: true})
	}

	// 一元运算与类型转换
	prims := []struct{ name, typ string }{{"int", "I"}, {"long", "J"}, {"float", "F"}, {"double", "D"}}
	for _, p := range prims {
		reg("neg-"+p.name, opInfo{op: OpUnary, width: 1, typ: p.typ, arith: ArithNeg})
		if p.typ == "I" || p.typ == "J" {
			reg("not-"+p.name, opInfo{op: OpUnary, width: 1, typ: p.typ, arith: ArithNot})
		}
		for _, q := range prims {
			if p.typ != q.typ {
				reg(p.name+"-to-"+q.name, opInfo{op: OpConvert, width: 1, typ: p.typ, toType: q.typ})
			}
		}
	}
	reg("int-to-byte", opInfo{op: OpConvert, width: 1, typ: "I", toType: "B"})
	reg("int-to-char", opInfo{op: OpConvert, width: 1, typ: "I", toType: "C"})
	reg("int-to-short", opInfo{op: OpConvert, width: 1, typ: "I", toType: "S"})

	// 二元运算
	for _, p := range prims {
		for a := ArithAdd; a <= ArithUshr; a++ {
			if (p.typ == "F" || p.typ == "D") && a > ArithRem {
				continue
			}
			name := a.String() + "-" + p.name
			reg(name, opInfo{op: OpBinary, width: 2, typ: p.typ, arith: a})
			reg(name+"/2addr", opInfo{op: OpBinary, width: 1, typ: p.typ, arith: a, twoAddr: true})
		}
	}
	for a := ArithAdd; a <= ArithUshr; a++ {
		if a == ArithSub {
			continue
		}
		if a <= ArithXor {
			reg(a.String()+"-int/lit16", opInfo{op: OpBinaryLit, width: 2, typ: "I", arith: a})
		}
		reg(a.String()+"-int/lit8", opInfo{op: OpBinaryLit, width: 2, typ: "I", arith: a})
	}
	reg("rsub-int", opInfo{op: OpBinaryLit, width: 2, typ: "I", arith: ArithRsub})
	reg("rsub-int/lit8", opInfo{op: OpBinaryLit, width: 2, typ: "I", arith: ArithRsub})
}

// LookupMnemonic 根据助记符创建指令模板
func LookupMnemonic(name string) (*Instruction, bool) {
	info, ok := mnemonics[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &Instruction{
		Op:       info.op,
		Mnemonic: name,
		Width:    info.width,
		Type:     info.typ,
		ToType:   info.toType,
		Cond:     info.cond,
		Arith:    info.arith,
		Invoke:   info.invoke,
		TwoAddr:  info.twoAddr,
		Range:    info.rangeOp,
		Bias:     info.bias,
	}, true
}
