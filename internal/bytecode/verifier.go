package bytecode

import (
	"fmt"
)

// VerificationError 字节码验证错误
type VerificationError struct {
	Method  string // 方法全名
	Offset  int    // 指令偏移量
	Message string // 错误消息
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("malformed bytecode in %s at %04x: %s", e.Method, e.Offset, e.Message)
}

// Verifier 字节码验证器
type Verifier struct {
	method     *Method
	boundaries map[int]bool // 所有指令起始偏移
}

// NewVerifier 创建验证器
func NewVerifier(m *Method) *Verifier {
	return &Verifier{
		method:     m,
		boundaries: make(map[int]bool, len(m.Code)),
	}
}

// Verify 验证方法代码
//
// 检查寄存器编号、跳转目标、异常表以及 move-result 的位置。
func Verify(m *Method) error {
	return NewVerifier(m).Verify()
}

// Verify 验证方法代码
func (v *Verifier) Verify() error {
	m := v.method
	if !m.HasCode() {
		return nil
	}

	offset := m.Code[0].Offset
	if offset != 0 {
		return v.fail(offset, "code does not start at offset 0")
	}
	for _, inst := range m.Code {
		if inst.Offset != offset {
			return v.fail(inst.Offset, "instruction overlaps previous one")
		}
		if inst.Width <= 0 {
			return v.fail(inst.Offset, "invalid instruction width")
		}
		v.boundaries[inst.Offset] = true
		offset = inst.Next()
	}

	var prev *Instruction
	for _, inst := range m.Code {
		if err := v.verifyRegisters(inst); err != nil {
			return err
		}
		for _, t := range inst.Successors() {
			if !v.boundaries[t] {
				return v.fail(inst.Offset, fmt.Sprintf("branch target %04x is not an instruction boundary", t))
			}
		}
		switch inst.Op {
		case OpPackedSwitch, OpSparseSwitch:
			if inst.Switch == nil {
				return v.fail(inst.Offset, "switch without payload")
			}
			if len(inst.Switch.Keys) != len(inst.Switch.Targets) {
				return v.fail(inst.Offset, "switch payload keys and targets differ in length")
			}
		case OpFillArrayData:
			if inst.Array == nil {
				return v.fail(inst.Offset, "fill-array-data without payload")
			}
		case OpMoveResult:
			if prev == nil || (prev.Op != OpInvoke && prev.Op != OpFilledNewArray) {
				return v.fail(inst.Offset, "move-result does not follow an invoke")
			}
		case OpMoveException:
			if !v.isHandlerEntry(inst.Offset) {
				return v.fail(inst.Offset, "move-exception outside of a handler entry")
			}
		case OpInvoke:
			if inst.Method == nil {
				return v.fail(inst.Offset, "invoke without method reference")
			}
		case OpIGet, OpIPut, OpSGet, OpSPut:
			if inst.Field == nil {
				return v.fail(inst.Offset, "field access without field reference")
			}
		}
		prev = inst
	}

	last := m.Code[len(m.Code)-1]
	if !last.Op.IsTerminator() {
		return v.fail(last.Offset, "execution falls off the end of the code")
	}

	for _, t := range m.Tries {
		if t.Start >= t.End {
			return v.fail(t.Start, "empty try range")
		}
		if !v.boundaries[t.Start] || (t.End != m.CodeEnd() && !v.boundaries[t.End]) {
			return v.fail(t.Start, "try range does not align with instructions")
		}
		for _, h := range t.Handlers {
			if !v.boundaries[h.Target] {
				return v.fail(t.Start, fmt.Sprintf("handler %04x is not an instruction boundary", h.Target))
			}
		}
	}
	return nil
}

func (v *Verifier) verifyRegisters(inst *Instruction) error {
	for _, r := range inst.Regs {
		if r < 0 || r >= v.method.Registers {
			return v.fail(inst.Offset, fmt.Sprintf("register v%d out of range (registers=%d)", r, v.method.Registers))
		}
	}
	if d, ok := inst.DefinedRegister(); ok && inst.IsWide() && d+1 >= v.method.Registers {
		return v.fail(inst.Offset, fmt.Sprintf("wide register pair v%d/v%d out of range", d, d+1))
	}
	return nil
}

func (v *Verifier) isHandlerEntry(offset int) bool {
	for _, t := range v.method.Tries {
		for _, h := range t.Handlers {
			if h.Target == offset {
				return true
			}
		}
	}
	return false
}

func (v *Verifier) fail(offset int, msg string) error {
	return &VerificationError{Method: v.method.FullName(), Offset: offset, Message: msg}
}
