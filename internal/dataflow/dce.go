package dataflow

import (
	"sort"

	"github.com/tangzhangming/dexdec/internal/graph"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// ============================================================================
// 死代码删除
// ============================================================================

// EliminateDeadCode 删除结果没有被使用的定义，返回删除的语句数
//
// 有副作用的定义不会删除：结果未使用的调用变成单独的调用语句；
// 在受保护区域内可能抛出异常的定义保留。删除一条定义后，
// 它读取的变量的定义可能随之失效，工作表会继续处理它们。
func EliminateDeadCode(g *graph.Graph, c *Chains) int {
	var work []Site
	for site, uses := range c.DefUse {
		if len(uses) == 0 && site.Loc != ParamLoc {
			work = append(work, site)
		}
	}
	sort.Slice(work, func(i, j int) bool { return work[i].Loc < work[j].Loc })

	removed := 0
	for len(work) > 0 {
		site := work[0]
		work = work[1:]

		a, ok := c.stmts[site.Loc].(*ir.AssignStmt)
		if !ok || a.Var != site.Var || len(c.DefUse[site]) > 0 {
			continue
		}
		n := c.nodes[site.Loc]
		if a.HasSideEffects() {
			if isCall(a.Value) {
				dropResult(c, n, a)
			}
			continue
		}
		if a.CanThrow() && len(n.CatchSuccs) > 0 {
			continue
		}
		work = append(work, c.removeStmt(site.Loc)...)
		removed++
	}
	return removed
}

// isCall 可以单独成为语句的表达式
func isCall(e ir.Expr) bool {
	switch x := e.(type) {
	case *ir.InvokeExpr:
		return true
	case *ir.NewInstance:
		return x.Init
	}
	return false
}

// dropResult 把 v = call() 改为 call()
func dropResult(c *Chains, n *graph.Node, a *ir.AssignStmt) {
	s := &ir.InvokeStmt{Call: a.Value}
	s.SetLoc(a.Loc())
	for i, st := range n.Stmts {
		if st == a {
			n.Stmts[i] = s
			break
		}
	}
	c.stmts[a.Loc()] = s
	delete(c.DefUse, Site{a.Var, a.Loc()})
}
