package dataflow

import (
	"github.com/tangzhangming/dexdec/internal/graph"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// ============================================================================
// 寄存器传播
// ============================================================================

// Options 传播选项
type Options struct {
	FoldConstants bool // 替换后折叠常量表达式
	MaxRounds     int  // 最多迭代轮数，<= 0 表示直到不动点
}

// DefaultOptions 默认传播选项
func DefaultOptions() Options {
	return Options{FoldConstants: true}
}

// PropagateRegisters 把单一到达定义的右侧表达式替换进使用处，返回替换次数
//
// 替换条件：
//   - 使用处只有一个到达定义，且该定义的结果只在一处使用（常量除外）
//   - 表达式读取的每个变量在使用处的到达定义与在定义处相同
//   - 定义和使用在同一个 try 区域内
//   - 读内存或可能抛出的表达式只在同一节点内移动，中间没有副作用
//   - 调用只移到紧随的语句，并且该语句没有其他嵌套副作用
//
// 定义的所有使用都被替换后删除定义。
func PropagateRegisters(g *graph.Graph, c *Chains, opts Options) int {
	total := 0
	for round := 0; opts.MaxRounds <= 0 || round < opts.MaxRounds; round++ {
		n := propagateRound(g, c, opts)
		if n == 0 {
			break
		}
		total += n
	}
	return total
}

func propagateRound(g *graph.Graph, c *Chains, opts Options) int {
	count := 0
	for _, n := range g.RPO {
		for _, s := range append([]ir.Stmt(nil), n.Stmts...) {
			if c.stmts[s.Loc()] != s {
				continue
			}
			for _, v := range distinct(s.Uses()) {
				if tryPropagate(c, s, v) {
					count++
					if opts.FoldConstants {
						ir.FoldStmt(s)
					}
				}
			}
		}
	}
	return count
}

func tryPropagate(c *Chains, s ir.Stmt, v *ir.Variable) bool {
	u := s.Loc()
	if _, ok := s.(*ir.DeclStmt); ok {
		return false
	}
	defs := c.UseDef[Site{v, u}]
	if len(defs) != 1 || defs[0] == ParamLoc {
		return false
	}
	d := defs[0]
	def, ok := c.stmts[d].(*ir.AssignStmt)
	if !ok || def.Var != v || ir.Stmt(def) == s {
		return false
	}
	rhs := def.Value
	switch x := rhs.(type) {
	case *ir.ExceptionRef:
		return false
	case *ir.NewInstance:
		if !x.Init {
			return false
		}
	}

	_, constant := rhs.(*ir.Constant)
	if len(c.DefUse[Site{v, d}]) > 1 && !constant {
		return false
	}
	if !constant && !ir.IsLeaf(rhs) && occurrences(s, v) > 1 {
		return false
	}

	operands := distinct(rhs.Vars())
	for _, x := range operands {
		if !sameLocs(c.UseDef[Site{x, d}], c.DefsAt(x, u)) {
			return false
		}
	}

	nd, nu := c.nodes[d], c.nodes[u]
	if nd.Try != nu.Try {
		return false
	}
	if rhs.HasSideEffects() || rhs.ReadsMemory() || rhs.CanThrow() {
		if nd != nu || !canMove(nd, def, s, rhs) {
			return false
		}
		if nestedSideEffects(s) {
			return false
		}
	}

	// 替换并维护链
	s.Replace(v, rhs)
	for _, x := range operands {
		from := c.UseDef[Site{x, d}]
		c.UseDef[Site{x, u}] = unionLocs(c.UseDef[Site{x, u}], from)
		for _, e := range from {
			c.DefUse[Site{x, e}] = addLoc(c.DefUse[Site{x, e}], u)
		}
	}
	delete(c.UseDef, Site{v, u})
	c.DefUse[Site{v, d}] = removeLoc(c.DefUse[Site{v, d}], u)
	if len(c.DefUse[Site{v, d}]) == 0 {
		c.removeStmt(d)
	}
	return true
}

// canMove 检查 def 与 use 之间的语句
func canMove(n *graph.Node, def *ir.AssignStmt, use ir.Stmt, rhs ir.Expr) bool {
	di, ui := -1, -1
	for i, s := range n.Stmts {
		switch s {
		case def:
			di = i
		case use:
			ui = i
		}
	}
	if di < 0 || ui < di {
		return false
	}
	if rhs.HasSideEffects() {
		return ui == di+1
	}
	for _, s := range n.Stmts[di+1 : ui] {
		if s.HasSideEffects() || (rhs.CanThrow() && s.CanThrow()) {
			return false
		}
	}
	return true
}

// nestedSideEffects 语句在求值顶层操作之前是否有其他副作用
func nestedSideEffects(s ir.Stmt) bool {
	for _, e := range s.Exprs() {
		if e == nil {
			continue
		}
		switch x := e.(type) {
		case *ir.InvokeExpr:
			if x.NestedSideEffects() {
				return true
			}
		case *ir.NewInstance:
			for _, a := range x.Args {
				if a.HasSideEffects() {
					return true
				}
			}
		default:
			if e.HasSideEffects() {
				return true
			}
		}
	}
	return false
}

func occurrences(s ir.Stmt, v *ir.Variable) int {
	n := 0
	for _, u := range s.Uses() {
		if u == v {
			n++
		}
	}
	return n
}

func distinct(vs []*ir.Variable) []*ir.Variable {
	out := make([]*ir.Variable, 0, len(vs))
	seen := make(map[*ir.Variable]bool, len(vs))
	for _, v := range vs {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
