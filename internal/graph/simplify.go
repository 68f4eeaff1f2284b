package graph

import (
	"github.com/tangzhangming/dexdec/internal/ir"
)

// ============================================================================
// 逆后序编号
// ============================================================================

// ComputeRPO 计算逆后序并为节点编号，删除不可达节点
//
// 深度优先遍历先走异常后继，再按顺序走正常后继，
// 这样顺序后继和异常处理代码在编号中分别靠前和靠后。
func ComputeRPO(g *Graph) {
	if g.Empty() {
		return
	}
	type frame struct {
		n    *Node
		next int
	}
	visited := make(map[*Node]bool, len(g.Nodes))
	var post []*Node
	stack := []*frame{{n: g.Entry}}
	visited[g.Entry] = true
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		succs := dfsOrder(top.n)
		if top.next < len(succs) {
			s := succs[top.next]
			top.next++
			if !visited[s] {
				visited[s] = true
				stack = append(stack, &frame{n: s})
			}
			continue
		}
		post = append(post, top.n)
		stack = stack[:len(stack)-1]
	}

	for _, n := range append([]*Node(nil), g.Nodes...) {
		if !visited[n] {
			n.Num = -1
			g.RemoveNode(n)
		}
	}

	g.RPO = make([]*Node, len(post))
	for i, n := range post {
		idx := len(post) - 1 - i
		g.RPO[idx] = n
		n.Num = idx
	}
	g.Nodes = append(g.Nodes[:0], g.RPO...)
}

func dfsOrder(n *Node) []*Node {
	out := make([]*Node, 0, len(n.Succs)+len(n.CatchSuccs))
	out = append(out, n.CatchSuccs...)
	return append(out, n.Succs...)
}

// ============================================================================
// 图化简
// ============================================================================

// SplitIfNodes 把带有前置语句的条件/switch 节点拆成语句节点加纯判断节点
//
// 前置节点继承前驱、try 区域和异常边；判断节点只有在判断本身可能抛出时
// 才保留异常边。
func SplitIfNodes(g *Graph) {
	for _, n := range append([]*Node(nil), g.Nodes...) {
		if (n.Kind != KindCond && n.Kind != KindSwitch) || len(n.Stmts) < 2 {
			continue
		}
		pre := g.NewNode(KindStatement)
		pre.Start = n.Start
		pre.Stmts = n.Stmts[:len(n.Stmts)-1]
		n.Stmts = n.Stmts[len(n.Stmts)-1:]
		pre.Try = n.Try
		pre.Handler = n.Handler
		n.Handler = false

		for _, p := range n.Preds {
			p.replaceSucc(n, pre)
			pre.Preds = append(pre.Preds, p)
		}
		n.Preds = nil
		for _, p := range n.CatchPreds {
			p.replaceCatchSucc(n, pre)
			pre.CatchPreds = append(pre.CatchPreds, p)
		}
		n.CatchPreds = nil
		g.AddEdge(pre, n)

		for _, h := range n.CatchSuccs {
			g.AddCatchEdge(pre, h)
		}
		if !n.Stmts[0].CanThrow() {
			for _, h := range n.CatchSuccs {
				h.CatchPreds = remove(h.CatchPreds, n)
			}
			n.CatchSuccs = nil
		}
		if g.Entry == n {
			g.Entry = pre
		}
		for _, r := range g.Regions {
			for _, h := range r.Handlers {
				if h.Entry == n {
					h.Entry = pre
				}
			}
		}
	}
}

func (n *Node) replaceCatchSucc(old, nw *Node) {
	for i, s := range n.CatchSuccs {
		if s == old {
			n.CatchSuccs[i] = nw
		}
	}
	n.CatchSuccs = dedupe(n.CatchSuccs)
}

// Simplify 合并顺序节点、删除空节点，最后重新编号
func Simplify(g *Graph) {
	if g.Empty() {
		return
	}
	for changed := true; changed; {
		changed = false
		for _, n := range append([]*Node(nil), g.Nodes...) {
			if !contains(g.Nodes, n) {
				continue
			}
			if mergeSuccessor(g, n) || deleteEmpty(g, n) {
				changed = true
			}
		}
	}
	ComputeRPO(g)
}

// mergeSuccessor 把唯一后继并入顺序节点 n
func mergeSuccessor(g *Graph, n *Node) bool {
	if n.Kind != KindStatement || len(n.Succs) != 1 {
		return false
	}
	s := n.Succs[0]
	if s == n || s == g.Entry || s.Handler || len(s.Preds) != 1 || len(s.CatchPreds) > 0 {
		return false
	}
	if s.Kind != KindStatement && s.Kind != KindReturn && s.Kind != KindThrow {
		return false
	}
	if n.Try != s.Try || contains(s.Succs, s) {
		return false
	}

	n.Stmts = append(n.Stmts, s.Stmts...)
	n.Kind = s.Kind
	n.Succs = nil
	for _, t := range s.Succs {
		t.Preds = remove(t.Preds, s)
		g.AddEdge(n, t)
	}
	for _, h := range s.CatchSuccs {
		h.CatchPreds = remove(h.CatchPreds, s)
		g.AddCatchEdge(n, h)
	}
	s.Succs, s.CatchSuccs, s.Preds = nil, nil, nil
	g.Nodes = remove(g.Nodes, s)
	return true
}

// deleteEmpty 删除没有语句的顺序节点，前驱直接连到它的后继
func deleteEmpty(g *Graph, n *Node) bool {
	if n.Kind != KindStatement || len(n.Stmts) != 0 || len(n.Succs) != 1 || n.Handler {
		return false
	}
	s := n.Succs[0]
	if s == n {
		return false
	}
	if n == g.Entry && len(s.Preds) > 1 {
		return false
	}
	for _, p := range n.Preds {
		// 条件两个分支会变成同一个节点时保留空节点
		if p.Kind == KindCond && (p.TrueSucc == s || p.FalseSucc == s) {
			return false
		}
		if p.Kind == KindSwitch && contains(p.Succs, s) {
			return false
		}
	}

	s.Preds = remove(s.Preds, n)
	for _, p := range n.Preds {
		p.replaceSucc(n, s)
		if !contains(s.Preds, p) {
			s.Preds = append(s.Preds, p)
		}
	}
	for _, h := range n.CatchSuccs {
		h.CatchPreds = remove(h.CatchPreds, n)
	}
	if g.Entry == n {
		g.Entry = s
	}
	n.Preds, n.Succs, n.CatchSuccs = nil, nil, nil
	g.Nodes = remove(g.Nodes, n)
	return true
}

// Stmts 按逆后序收集全部语句（测试和调试输出使用）
func Stmts(g *Graph) []ir.Stmt {
	var out []ir.Stmt
	for _, n := range g.RPO {
		out = append(out, n.Stmts...)
	}
	return out
}
