// Package ast 定义结构化恢复产生的语法树
//
// 树只由 structure 包生成，由 formatter 包消费；每个方法一棵，
// 输出源码后即可丢弃。
package ast

import (
	"fmt"
	"strings"

	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// Node 是所有结构化节点的基接口
type Node interface {
	String() string // 返回节点的字符串表示（用于调试）
	LabelName() string
	SetLabel(name string)
	node()
}

// Labeled 可以被 goto/break/continue 引用的标签
type Labeled struct {
	Label string `json:"label,omitempty"`
}

func (l *Labeled) LabelName() string    { return l.Label }
func (l *Labeled) SetLabel(name string) { l.Label = name }

func labelPrefix(l string) string {
	if l == "" {
		return ""
	}
	return l + ": "
}

// ============================================================================
// 顺序结构
// ============================================================================

// Block 顺序执行的节点列表
type Block struct {
	Labeled
	Body []Node
}

func (b *Block) node() {}
func (b *Block) String() string {
	parts := make([]string, len(b.Body))
	for i, n := range b.Body {
		parts[i] = n.String()
	}
	return labelPrefix(b.Label) + "{" + strings.Join(parts, "; ") + "}"
}

// Append 追加节点
func (b *Block) Append(n ...Node) {
	b.Body = append(b.Body, n...)
}

// Last 最后一个节点
func (b *Block) Last() Node {
	if b == nil || len(b.Body) == 0 {
		return nil
	}
	return b.Body[len(b.Body)-1]
}

// Statement 一个图节点中的线性语句
type Statement struct {
	Labeled
	Node  int // 对应的图节点 ID，复制的代码为 -1
	Stmts []ir.Stmt
}

func (s *Statement) node() {}
func (s *Statement) String() string {
	parts := make([]string, len(s.Stmts))
	for i, st := range s.Stmts {
		parts[i] = st.String()
	}
	return labelPrefix(s.Label) + strings.Join(parts, "; ")
}

// ============================================================================
// 分支
// ============================================================================

// If 条件分支，Else 可以为 nil
type If struct {
	Labeled
	Node int
	Cond *ir.Condition
	Then *Block
	Else *Block
}

func (n *If) node() {}
func (n *If) String() string {
	s := fmt.Sprintf("%sif (%s) %s", labelPrefix(n.Label), n.Cond, n.Then)
	if n.Else != nil {
		s += " else " + n.Else.String()
	}
	return s
}

// LoopKind 循环种类
type LoopKind int

const (
	LoopWhile   LoopKind = iota // 先判断
	LoopDoWhile                 // 后判断
	LoopEndless                 // while (true)
)

func (k LoopKind) String() string {
	switch k {
	case LoopDoWhile:
		return "do-while"
	case LoopEndless:
		return "endless"
	default:
		return "while"
	}
}

// Loop 循环；Node 是条件所在的图节点，无限循环为 -1
type Loop struct {
	Labeled
	Kind   LoopKind
	Node   int
	Header int // 循环头的图节点 ID
	Cond   *ir.Condition
	Body   *Block
}

func (n *Loop) node() {}
func (n *Loop) String() string {
	switch n.Kind {
	case LoopDoWhile:
		return fmt.Sprintf("%sdo %s while (%s)", labelPrefix(n.Label), n.Body, n.Cond)
	case LoopEndless:
		return fmt.Sprintf("%swhile (true) %s", labelPrefix(n.Label), n.Body)
	default:
		return fmt.Sprintf("%swhile (%s) %s", labelPrefix(n.Label), n.Cond, n.Body)
	}
}

// Switch 多路分支，Cases 按源码顺序排列，相邻分支之间可以贯穿
type Switch struct {
	Labeled
	Node  int
	Value ir.Expr
	Cases []*Case
}

// Case switch 的一个分支
type Case struct {
	Keys    []int64
	Default bool
	Body    *Block
}

func (n *Switch) node() {}
func (n *Switch) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%sswitch (%s) {", labelPrefix(n.Label), n.Value)
	for _, c := range n.Cases {
		for _, k := range c.Keys {
			fmt.Fprintf(&sb, " case %d:", k)
		}
		if c.Default {
			sb.WriteString(" default:")
		}
		sb.WriteString(" " + c.Body.String())
	}
	sb.WriteString(" }")
	return sb.String()
}

// ============================================================================
// 异常处理
// ============================================================================

// TryCatch try 区域及其处理器，Finally 可以为 nil
type TryCatch struct {
	Labeled
	Region  int
	Body    *Block
	Catches []*Catch
	Finally *Block
}

// Catch 一个 catch 子句，多个类型共用一个处理入口时合并
type Catch struct {
	Types []string // 类型描述符
	Var   *ir.Variable
	Node  int // 处理入口的图节点 ID
	Body  *Block
}

func (n *TryCatch) node() {}
func (n *TryCatch) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%stry %s", labelPrefix(n.Label), n.Body)
	for _, c := range n.Catches {
		fmt.Fprintf(&sb, " catch (%s) %s", c.TypeNames(), c.Body)
	}
	if n.Finally != nil {
		sb.WriteString(" finally " + n.Finally.String())
	}
	return sb.String()
}

// TypeNames 以 | 连接的 Java 类型名
func (c *Catch) TypeNames() string {
	names := make([]string, len(c.Types))
	for i, t := range c.Types {
		names[i] = bytecode.JavaType(t)
	}
	return strings.Join(names, " | ")
}

// ============================================================================
// 跳转
// ============================================================================

// Goto 无法结构化的跳转
type Goto struct {
	Labeled
	Target string
}

func (n *Goto) node()          {}
func (n *Goto) String() string { return "goto " + n.Target }

// Break 跳出循环或 switch
type Break struct {
	Labeled
	Target string // 为空表示最内层
}

func (n *Break) node() {}
func (n *Break) String() string {
	if n.Target == "" {
		return "break"
	}
	return "break " + n.Target
}

// Continue 进入下一次循环
type Continue struct {
	Labeled
	Target string
}

func (n *Continue) node() {}
func (n *Continue) String() string {
	if n.Target == "" {
		return "continue"
	}
	return "continue " + n.Target
}

// ============================================================================
// 遍历
// ============================================================================

// Visitor 访问者函数类型，返回 false 时不再进入子节点
type Visitor func(node Node) bool

// Walk 先序遍历，使用显式栈
func Walk(root Node, visitor Visitor) {
	if root == nil {
		return
	}
	stack := []Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil || !visitor(n) {
			continue
		}
		children := Children(n)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// Children 直接子节点（按源码顺序）
func Children(n Node) []Node {
	var out []Node
	addBlock := func(b *Block) {
		if b != nil {
			out = append(out, b)
		}
	}
	switch x := n.(type) {
	case *Block:
		out = append(out, x.Body...)
	case *If:
		addBlock(x.Then)
		addBlock(x.Else)
	case *Loop:
		addBlock(x.Body)
	case *Switch:
		for _, c := range x.Cases {
			addBlock(c.Body)
		}
	case *TryCatch:
		addBlock(x.Body)
		for _, c := range x.Catches {
			addBlock(c.Body)
		}
		addBlock(x.Finally)
	}
	return out
}

// Sources 树中覆盖的图节点 ID（按出现顺序，重复出现会保留）
func Sources(root Node) []int {
	var ids []int
	Walk(root, func(n Node) bool {
		switch x := n.(type) {
		case *Statement:
			if x.Node >= 0 {
				ids = append(ids, x.Node)
			}
		case *If:
			ids = append(ids, x.Node)
		case *Loop:
			if x.Node >= 0 {
				ids = append(ids, x.Node)
			}
		case *Switch:
			ids = append(ids, x.Node)
		}
		return true
	})
	return ids
}

// Count 统计满足条件的节点数
func Count(root Node, pred func(Node) bool) int {
	n := 0
	Walk(root, func(x Node) bool {
		if pred(x) {
			n++
		}
		return true
	})
	return n
}

// IsJump 节点是否无条件转移控制（之后的代码不可达）
func IsJump(n Node) bool {
	switch x := n.(type) {
	case *Goto, *Break, *Continue:
		return true
	case *Statement:
		if len(x.Stmts) == 0 {
			return false
		}
		switch x.Stmts[len(x.Stmts)-1].(type) {
		case *ir.ReturnStmt, *ir.ThrowStmt:
			return true
		}
	case *Block:
		return IsJump(x.Last())
	case *If:
		return x.Else != nil && IsJump(x.Then.Last()) && IsJump(x.Else.Last())
	case *TryCatch:
		if x.Finally != nil && IsJump(x.Finally.Last()) {
			return true
		}
		if !IsJump(x.Body.Last()) {
			return false
		}
		for _, c := range x.Catches {
			if !IsJump(c.Body.Last()) {
				return false
			}
		}
		return true
	}
	return false
}
