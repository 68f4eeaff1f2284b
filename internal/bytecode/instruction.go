package bytecode

import (
	"fmt"
	"strings"
)

// FieldRef 字段引用
type FieldRef struct {
	Class string // 声明类描述符
	Name  string
	Type  string // 字段类型描述符
}

func (f *FieldRef) String() string {
	return f.Class + "->" + f.Name + ":" + f.Type
}

// MethodRef 方法引用
type MethodRef struct {
	Class  string   // 声明类描述符
	Name   string   // 方法名
	Params []string // 参数类型描述符
	Return string   // 返回类型描述符
}

// Descriptor 方法描述符，如 (ILjava/lang/String;)V
func (m *MethodRef) Descriptor() string {
	return "(" + strings.Join(m.Params, "") + ")" + m.Return
}

func (m *MethodRef) String() string {
	return m.Class + "->" + m.Name + m.Descriptor()
}

// SwitchPayload switch 跳转表（键和目标偏移一一对应）
type SwitchPayload struct {
	Keys    []int64
	Targets []int
}

// ArrayPayload fill-array-data 数据
type ArrayPayload struct {
	ElementWidth int
	Values       []int64
}

// Instruction 一条已解码的字节码指令
//
// 加载后不再修改。Regs 按汇编文本中的操作数顺序保存寄存器编号，
// 宽值寄存器对只记录低位寄存器。
type Instruction struct {
	Op       OpCode
	Mnemonic string
	Offset   int // 代码单元偏移
	Width    int // 代码单元数
	Line     int // 源文件行号（汇编文本）

	Regs    []int
	Literal int64
	Str     string // const-string 的字符串
	Type    string // 操作数/结果类型描述符
	ToType  string // 转换目标类型
	Ref     string // const-class / check-cast / new-* / instance-of 引用的类型

	Field  *FieldRef
	Method *MethodRef

	Cond    Cond
	Arith   ArithOp
	Invoke  InvokeKind
	TwoAddr bool
	Range   bool
	Bias    string

	Target  int // 分支目标偏移
	Switch  *SwitchPayload
	Array   *ArrayPayload
	Payload string // 负载标签（加载期间解析）
}

// Next 顺序下一条指令的偏移
func (i *Instruction) Next() int {
	return i.Offset + i.Width
}

// IsWide 指令结果是否为宽值（long/double）
func (i *Instruction) IsWide() bool {
	t := i.Type
	switch i.Op {
	case OpConvert:
		t = i.ToType
	case OpCmp:
		return false
	}
	return t == "J" || t == "D"
}

// DefinedRegister 指令定义的寄存器
func (i *Instruction) DefinedRegister() (int, bool) {
	switch i.Op {
	case OpMove, OpMoveResult, OpMoveException,
		OpConst, OpConstWide, OpConstString, OpConstClass,
		OpCheckCast, OpInstanceOf, OpArrayLength, OpNewInstance, OpNewArray,
		OpCmp, OpAGet, OpIGet, OpSGet, OpUnary, OpConvert, OpBinary, OpBinaryLit:
		if len(i.Regs) > 0 {
			return i.Regs[0], true
		}
	}
	return -1, false
}

// UsedRegisters 指令读取的寄存器（按求值顺序，保留重复）
func (i *Instruction) UsedRegisters() []int {
	switch i.Op {
	case OpMove, OpInstanceOf, OpArrayLength, OpNewArray,
		OpIGet, OpUnary, OpConvert, OpBinaryLit:
		return i.regs(1, 2)
	case OpReturn, OpMonitorEnter, OpMonitorExit, OpCheckCast,
		OpFillArrayData, OpThrow, OpPackedSwitch, OpSparseSwitch,
		OpIfZ, OpSPut:
		return i.regs(0, 1)
	case OpIf, OpIPut:
		return i.regs(0, 2)
	case OpCmp, OpAGet:
		return i.regs(1, 3)
	case OpAPut:
		// aput vA, vB, vC: 数组、下标先求值
		r := i.regs(0, 3)
		if len(r) == 3 {
			return []int{r[1], r[2], r[0]}
		}
		return r
	case OpBinary:
		if i.TwoAddr {
			return i.regs(0, 2)
		}
		return i.regs(1, 3)
	case OpInvoke:
		return i.ArgumentRegisters()
	case OpFilledNewArray:
		return append([]int(nil), i.Regs...)
	}
	return nil
}

func (i *Instruction) regs(from, to int) []int {
	if to > len(i.Regs) {
		to = len(i.Regs)
	}
	if from >= to {
		return nil
	}
	return append([]int(nil), i.Regs[from:to]...)
}

// ArgumentRegisters 调用实参寄存器（宽值只取低位寄存器）
func (i *Instruction) ArgumentRegisters() []int {
	if i.Method == nil {
		return append([]int(nil), i.Regs...)
	}
	var out []int
	pos := 0
	if i.Invoke != InvokeStatic {
		if pos < len(i.Regs) {
			out = append(out, i.Regs[pos])
		}
		pos++
	}
	for _, p := range i.Method.Params {
		if pos >= len(i.Regs) {
			break
		}
		out = append(out, i.Regs[pos])
		pos += TypeSize(p)
	}
	return out
}

// CanThrow 指令是否可能抛出异常
func (i *Instruction) CanThrow() bool {
	switch i.Op {
	case OpConstString, OpConstClass, OpMonitorEnter, OpMonitorExit,
		OpCheckCast, OpInstanceOf, OpArrayLength, OpNewInstance, OpNewArray,
		OpFilledNewArray, OpFillArrayData, OpThrow,
		OpAGet, OpAPut, OpIGet, OpIPut, OpSGet, OpSPut, OpInvoke:
		return true
	case OpBinary, OpBinaryLit:
		return i.Arith.CanThrow(i.Type)
	}
	return false
}

// Successors 分支目标偏移（不含顺序后继）
func (i *Instruction) Successors() []int {
	switch i.Op {
	case OpGoto, OpIf, OpIfZ:
		return []int{i.Target}
	case OpPackedSwitch, OpSparseSwitch:
		if i.Switch != nil {
			return append([]int(nil), i.Switch.Targets...)
		}
	}
	return nil
}

func (i *Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(i.Mnemonic)
	var ops []string
	switch i.Op {
	case OpInvoke, OpFilledNewArray:
		var rs []string
		for _, r := range i.Regs {
			rs = append(rs, fmt.Sprintf("v%d", r))
		}
		ops = append(ops, "{"+strings.Join(rs, ", ")+"}")
	default:
		for _, r := range i.Regs {
			ops = append(ops, fmt.Sprintf("v%d", r))
		}
	}
	switch i.Op {
	case OpConst, OpConstWide, OpBinaryLit:
		ops = append(ops, fmt.Sprintf("%#x", i.Literal))
	case OpConstString:
		ops = append(ops, fmt.Sprintf("%q", i.Str))
	case OpConstClass, OpCheckCast, OpInstanceOf, OpNewInstance, OpNewArray, OpFilledNewArray:
		ops = append(ops, i.Ref)
	case OpIGet, OpIPut, OpSGet, OpSPut:
		if i.Field != nil {
			ops = append(ops, i.Field.String())
		}
	case OpInvoke:
		if i.Method != nil {
			ops = append(ops, i.Method.String())
		}
	case OpGoto, OpIf, OpIfZ:
		ops = append(ops, fmt.Sprintf("@%04x", i.Target))
	}
	if len(ops) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(ops, ", "))
	}
	return sb.String()
}
