// Package graph 实现方法级控制流图：构建、化简、逆后序编号与支配分析
package graph

import (
	"fmt"
	"strings"

	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// Kind 节点种类
type Kind int

const (
	KindStatement Kind = iota // 顺序语句
	KindCond                  // 条件分支
	KindSwitch                // 多路分支
	KindReturn                // 返回
	KindThrow                 // 抛出
)

func (k Kind) String() string {
	switch k {
	case KindCond:
		return "cond"
	case KindSwitch:
		return "switch"
	case KindReturn:
		return "return"
	case KindThrow:
		return "throw"
	default:
		return "stmt"
	}
}

// Case switch 的一个分支：一组键跳到同一个目标
type Case struct {
	Keys   []int64
	Target *Node
}

// Node 控制流图节点
type Node struct {
	ID    int
	Num   int // 逆后序编号，-1 表示尚未编号
	Kind  Kind
	Start int // 起始字节码偏移
	Stmts []ir.Stmt

	Succs      []*Node // 正常后继
	Preds      []*Node // 正常前驱
	CatchSuccs []*Node // 异常后继（按异常表顺序）
	CatchPreds []*Node // 异常前驱

	TrueSucc  *Node // 条件为真时的后继（分支目标）
	FalseSucc *Node // 条件为假时的后继（顺序后继）

	Cases   []*Case // switch 分支
	Default *Node   // switch 默认后继

	Try     *TryRegion // 所在的 try 区域
	Handler bool       // 是否为异常处理入口
}

func (n *Node) String() string {
	return fmt.Sprintf("%s%d", kindPrefix[n.Kind], n.ID)
}

var kindPrefix = map[Kind]string{
	KindStatement: "S",
	KindCond:      "C",
	KindSwitch:    "W",
	KindReturn:    "R",
	KindThrow:     "T",
}

// Last 最后一条语句
func (n *Node) Last() ir.Stmt {
	if len(n.Stmts) == 0 {
		return nil
	}
	return n.Stmts[len(n.Stmts)-1]
}

// Cond 条件节点的条件
func (n *Node) Cond() *ir.Condition {
	if s, ok := n.Last().(*ir.IfStmt); ok {
		return s.Cond
	}
	return nil
}

// IsExit 是否为出口节点
func (n *Node) IsExit() bool {
	return n.Kind == KindReturn || n.Kind == KindThrow
}

// AllSuccs 正常后继与异常后继
func (n *Node) AllSuccs() []*Node {
	out := make([]*Node, 0, len(n.Succs)+len(n.CatchSuccs))
	out = append(out, n.Succs...)
	return append(out, n.CatchSuccs...)
}

// AllPreds 正常前驱与异常前驱
func (n *Node) AllPreds() []*Node {
	out := make([]*Node, 0, len(n.Preds)+len(n.CatchPreds))
	out = append(out, n.Preds...)
	return append(out, n.CatchPreds...)
}

// replaceSucc 把后继 old 替换为 nw（同时更新条件与 switch 信息）
func (n *Node) replaceSucc(old, nw *Node) {
	for i, s := range n.Succs {
		if s == old {
			n.Succs[i] = nw
		}
	}
	n.Succs = dedupe(n.Succs)
	if n.TrueSucc == old {
		n.TrueSucc = nw
	}
	if n.FalseSucc == old {
		n.FalseSucc = nw
	}
	for _, c := range n.Cases {
		if c.Target == old {
			c.Target = nw
		}
	}
	if n.Default == old {
		n.Default = nw
	}
}

func dedupe(ns []*Node) []*Node {
	out := ns[:0]
	seen := make(map[*Node]bool, len(ns))
	for _, n := range ns {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func remove(ns []*Node, x *Node) []*Node {
	out := ns[:0]
	for _, n := range ns {
		if n != x {
			out = append(out, n)
		}
	}
	return out
}

func contains(ns []*Node, x *Node) bool {
	for _, n := range ns {
		if n == x {
			return true
		}
	}
	return false
}

// ============================================================================
// try 区域
// ============================================================================

// CatchHandler 区域中的一个异常处理器
type CatchHandler struct {
	Type  string // "" 表示 catch-all
	Entry *Node
}

// TryRegion 处理器列表相同的受保护代码
//
// 嵌套的 try 区域的处理器列表以外层区域的列表结尾，Parent 指向外层区域。
type TryRegion struct {
	ID       int
	Handlers []*CatchHandler
	Parent   *TryRegion
}

// Encloses 区域 r 是否等于或包含区域 o
func (r *TryRegion) Encloses(o *TryRegion) bool {
	for ; o != nil; o = o.Parent {
		if o == r {
			return true
		}
	}
	return false
}

// Depth 嵌套深度，最外层为 1
func (r *TryRegion) Depth() int {
	d := 0
	for ; r != nil; r = r.Parent {
		d++
	}
	return d
}

func handlersKey(hs []bytecode.Handler) string {
	var parts []string
	for _, h := range hs {
		parts = append(parts, fmt.Sprintf("%s@%d", h.Type, h.Target))
	}
	return strings.Join(parts, ",")
}

// ============================================================================
// 图
// ============================================================================

// Graph 方法的控制流图
type Graph struct {
	Method  *bytecode.Method
	Vars    *ir.VarTable
	Params  []*ir.Variable
	Entry   *Node
	Nodes   []*Node // 全部可达节点
	RPO     []*Node // 逆后序，ComputeRPO 之后有效
	Regions []*TryRegion

	nextID  int
	nextLoc int
}

// Empty 没有方法体（native/abstract）时为 true
func (g *Graph) Empty() bool {
	return g == nil || g.Entry == nil
}

// Exits 出口节点
func (g *Graph) Exits() []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.IsExit() {
			out = append(out, n)
		}
	}
	return out
}

// NewNode 创建节点并加入图
func (g *Graph) NewNode(kind Kind) *Node {
	n := &Node{ID: g.nextID, Num: -1, Kind: kind}
	g.nextID++
	g.Nodes = append(g.Nodes, n)
	return n
}

// NextLoc 分配新的语句位置编号
func (g *Graph) NextLoc() int {
	l := g.nextLoc
	g.nextLoc++
	return l
}

// AddEdge 添加正常边
func (g *Graph) AddEdge(from, to *Node) {
	if !contains(from.Succs, to) {
		from.Succs = append(from.Succs, to)
	}
	if !contains(to.Preds, from) {
		to.Preds = append(to.Preds, from)
	}
}

// AddCatchEdge 添加异常边
func (g *Graph) AddCatchEdge(from, to *Node) {
	if !contains(from.CatchSuccs, to) {
		from.CatchSuccs = append(from.CatchSuccs, to)
	}
	if !contains(to.CatchPreds, from) {
		to.CatchPreds = append(to.CatchPreds, from)
	}
}

// RemoveNode 从图中删除节点（调用方负责先改好边）
func (g *Graph) RemoveNode(n *Node) {
	g.Nodes = remove(g.Nodes, n)
	for _, s := range n.Succs {
		s.Preds = remove(s.Preds, n)
	}
	for _, s := range n.CatchSuccs {
		s.CatchPreds = remove(s.CatchPreds, n)
	}
	for _, p := range n.Preds {
		p.Succs = remove(p.Succs, n)
	}
	for _, p := range n.CatchPreds {
		p.CatchSuccs = remove(p.CatchSuccs, n)
	}
}

// Statements 按节点顺序遍历全部语句
func (g *Graph) Statements(fn func(n *Node, s ir.Stmt)) {
	for _, n := range g.Nodes {
		for _, s := range n.Stmts {
			fn(n, s)
		}
	}
}

// Index 语句位置 -> 所在节点
func (g *Graph) Index() map[int]*Node {
	idx := make(map[int]*Node)
	g.Statements(func(n *Node, s ir.Stmt) {
		idx[s.Loc()] = n
	})
	return idx
}
