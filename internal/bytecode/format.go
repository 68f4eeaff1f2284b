package bytecode

import (
	"fmt"
	"strings"
)

// ============================================================================
// 反汇编输出
// ============================================================================

// Disassemble 输出方法的反汇编文本（-bytecode 选项）
func Disassemble(m *Method) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s registers=%d ins=%d\n", m.FullName(), m.Registers, m.Ins())
	for _, inst := range m.Code {
		fmt.Fprintf(&sb, "%04x: %s\n", inst.Offset, inst)
		switch {
		case inst.Switch != nil:
			for i, k := range inst.Switch.Keys {
				fmt.Fprintf(&sb, "        %d -> %04x\n", k, inst.Switch.Targets[i])
			}
		case inst.Array != nil:
			fmt.Fprintf(&sb, "        width=%d %v\n", inst.Array.ElementWidth, inst.Array.Values)
		}
	}
	for _, t := range m.Tries {
		fmt.Fprintf(&sb, "try %04x-%04x", t.Start, t.End)
		for _, h := range t.Handlers {
			typ := h.Type
			if h.IsCatchAll() {
				typ = "<any>"
			}
			fmt.Fprintf(&sb, " %s@%04x", typ, h.Target)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
