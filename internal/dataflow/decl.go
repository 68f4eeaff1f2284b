package dataflow

import (
	"github.com/tangzhangming/dexdec/internal/graph"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// ============================================================================
// 类型推断
// ============================================================================

// InferTypes 为没有类型的变量根据定义推断类型
//
// 非常量右侧优先；move 链通过迭代传递类型。
func InferTypes(c *Chains) {
	for changed := true; changed; {
		changed = false
		for _, v := range c.Variables() {
			if v.Type != "" {
				continue
			}
			if t := defType(c, v); t != "" {
				v.Type = t
				changed = true
			}
		}
	}
}

func defType(c *Chains, v *ir.Variable) string {
	fallback := ""
	for _, d := range c.Defs(v) {
		a, ok := c.stmts[d].(*ir.AssignStmt)
		if !ok {
			continue
		}
		t := a.Value.Type()
		if t == "" {
			continue
		}
		if _, isConst := a.Value.(*ir.Constant); isConst {
			if fallback == "" {
				fallback = t
			}
			continue
		}
		return t
	}
	return fallback
}

// ============================================================================
// 声明位置
// ============================================================================

// PlaceDeclarations 为每个局部变量选择声明节点
//
// 声明放在全部定义和使用所在节点的最近公共支配节点上；如果该节点所在的
// 循环或 try 区域没有包含全部位置，就提升到循环或区域之外。
// 节点中第一次出现变量是不读取它的赋值时，赋值兼作声明；否则在节点开头
// 插入单独的声明语句。
func PlaceDeclarations(g *graph.Graph, c *Chains, doms *graph.Dominators, loops *graph.LoopInfo) map[*ir.Variable]*graph.Node {
	InferTypes(c)
	out := make(map[*ir.Variable]*graph.Node)
	for _, v := range c.Variables() {
		if v.IsParam() {
			continue
		}
		sites := siteNodes(c, v)
		if len(sites) == 0 {
			continue
		}
		var dom *graph.Node
		for _, n := range sites {
			dom = doms.CommonDominator(dom, n)
		}
		dom = hoist(dom, sites, doms, loops)
		out[v] = dom
		declareIn(g, c, dom, v)
	}
	return out
}

// siteNodes 变量全部定义与使用所在的节点；没有剩余定义时返回 nil
func siteNodes(c *Chains, v *ir.Variable) []*graph.Node {
	seen := make(map[*graph.Node]bool)
	var out []*graph.Node
	add := func(loc int) {
		if n := c.nodes[loc]; n != nil && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	hasDef := false
	for _, d := range c.Defs(v) {
		if d == ParamLoc || c.stmts[d] == nil {
			continue
		}
		hasDef = true
		add(d)
		for _, u := range c.DefUse[Site{v, d}] {
			add(u)
		}
	}
	if !hasDef {
		return nil
	}
	return out
}

func hoist(dom *graph.Node, sites []*graph.Node, doms *graph.Dominators, loops *graph.LoopInfo) *graph.Node {
	for {
		if l := loops.Innermost(dom); l != nil && !containsAll(l, sites) {
			up := doms.Idom(l.Header)
			if up == nil {
				return dom
			}
			dom = up
			continue
		}
		if dom.Try != nil && !regionCovers(dom.Try, sites) {
			up := doms.Idom(dom)
			if up == nil {
				return dom
			}
			dom = up
			continue
		}
		return dom
	}
}

func containsAll(l *graph.Loop, sites []*graph.Node) bool {
	for _, n := range sites {
		if !l.Contains(n) {
			return false
		}
	}
	return true
}

func regionCovers(r *graph.TryRegion, sites []*graph.Node) bool {
	for _, n := range sites {
		if !r.Encloses(n.Try) {
			return false
		}
	}
	return true
}

func declareIn(g *graph.Graph, c *Chains, n *graph.Node, v *ir.Variable) {
	for _, s := range n.Stmts {
		reads := false
		for _, u := range s.Uses() {
			if u == v {
				reads = true
				break
			}
		}
		if reads {
			break
		}
		if s.Def() == v {
			if a, ok := s.(*ir.AssignStmt); ok {
				a.Declare = true
				return
			}
			break
		}
	}
	decl := &ir.DeclStmt{Var: v}
	decl.SetLoc(g.NextLoc())
	n.Stmts = append([]ir.Stmt{decl}, n.Stmts...)
	c.stmts[decl.Loc()] = decl
	c.nodes[decl.Loc()] = n
}
