package bytecode

import (
	"fmt"
	"sort"
)

// BasicBlock 基本块
//
// 块内指令顺序执行，只有最后一条指令可以跳转。
type BasicBlock struct {
	ID      int
	Start   int // 起始偏移
	End     int // 结束偏移（不含）
	Insts   []*Instruction
	Targets []int // 显式分支目标（if 的目标、goto 目标、switch 各分支目标）
	Fall    int   // 顺序后继偏移，-1 表示没有
}

// Last 块的最后一条指令
func (b *BasicBlock) Last() *Instruction {
	if len(b.Insts) == 0 {
		return nil
	}
	return b.Insts[len(b.Insts)-1]
}

func (b *BasicBlock) String() string {
	return fmt.Sprintf("B%d[%04x-%04x)", b.ID, b.Start, b.End)
}

// SplitBlocks 将方法代码划分为基本块
//
// 块首指令包括：入口、分支/switch 目标、终结或分支指令之后的指令、
// try 区间边界和异常处理入口。move-result 永远不作为块首，
// 它必须和前面的调用留在同一个块里。
func SplitBlocks(m *Method) ([]*BasicBlock, map[int]*BasicBlock) {
	if !m.HasCode() {
		return nil, map[int]*BasicBlock{}
	}

	leaders := map[int]bool{m.Code[0].Offset: true}
	for _, inst := range m.Code {
		for _, t := range inst.Successors() {
			leaders[t] = true
		}
		if inst.Op.IsBranch() || inst.Op.IsTerminator() {
			leaders[inst.Next()] = true
		}
	}
	for _, t := range m.Tries {
		leaders[t.Start] = true
		leaders[t.End] = true
		for _, h := range t.Handlers {
			leaders[h.Target] = true
		}
	}

	var offsets []int
	for off := range leaders {
		inst, _ := m.InstructionAt(off)
		if inst == nil || inst.Op == OpMoveResult {
			continue
		}
		offsets = append(offsets, off)
	}
	sort.Ints(offsets)

	blocks := make([]*BasicBlock, 0, len(offsets))
	byOffset := make(map[int]*BasicBlock, len(offsets))
	for i, start := range offsets {
		end := m.CodeEnd()
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		b := &BasicBlock{ID: i, Start: start, End: end, Fall: -1}
		_, idx := m.InstructionAt(start)
		for ; idx < len(m.Code) && m.Code[idx].Offset < end; idx++ {
			b.Insts = append(b.Insts, m.Code[idx])
		}
		last := b.Last()
		b.Targets = last.Successors()
		if !last.Op.IsTerminator() && end < m.CodeEnd() {
			b.Fall = end
		}
		blocks = append(blocks, b)
		byOffset[start] = b
	}
	return blocks, byOffset
}
