package structure

import (
	"github.com/tangzhangming/dexdec/internal/ast"
	"github.com/tangzhangming/dexdec/internal/graph"
)

// ============================================================================
// 循环形态
// ============================================================================

// loopShape 循环的结构化形式
type loopShape struct {
	loop       *graph.Loop
	kind       ast.LoopKind
	cond       *graph.Node // while 为循环头，do-while 为回边源节点
	start      *graph.Node // 循环体第一个节点
	follow     *graph.Node // 循环之后的节点
	continueTo *graph.Node // continue 的目标
}

func classifyLoop(l *graph.Loop, policy LoopPolicy) *loopShape {
	sh := &loopShape{loop: l}
	h := l.Header

	pretest := func() bool {
		if h.Kind != graph.KindCond {
			return false
		}
		inT, inF := l.Contains(h.TrueSucc), l.Contains(h.FalseSucc)
		if inT == inF {
			return false
		}
		sh.kind, sh.cond, sh.continueTo = ast.LoopWhile, h, h
		if inT {
			sh.start, sh.follow = h.TrueSucc, h.FalseSucc
		} else {
			sh.start, sh.follow = h.FalseSucc, h.TrueSucc
		}
		return true
	}
	posttest := func() bool {
		if len(l.Latches) != 1 {
			return false
		}
		lt := l.Latches[0]
		if lt == h || lt.Kind != graph.KindCond {
			return false
		}
		var out *graph.Node
		switch h {
		case lt.TrueSucc:
			out = lt.FalseSucc
		case lt.FalseSucc:
			out = lt.TrueSucc
		default:
			return false
		}
		if l.Contains(out) {
			return false
		}
		sh.kind, sh.cond, sh.continueTo = ast.LoopDoWhile, lt, lt
		sh.start, sh.follow = h, out
		return true
	}

	first, second := pretest, posttest
	if policy == PosttestFirst {
		first, second = posttest, pretest
	}
	if first() || second() {
		return sh
	}
	return endlessShape(l)
}

// endlessShape 把循环当作 while (true) 处理
func endlessShape(l *graph.Loop) *loopShape {
	h := l.Header
	return &loopShape{loop: l, kind: ast.LoopEndless, start: h, follow: endlessFollow(l), continueTo: h}
}

// endlessFollow 无限循环的出口：优先选择汇合点，再按逆后序取最小
func endlessFollow(l *graph.Loop) *graph.Node {
	var exits []*graph.Node
	seen := make(map[*graph.Node]bool)
	for _, n := range l.Nodes() {
		for _, s := range n.Succs {
			if !l.Contains(s) && !seen[s] {
				seen[s] = true
				exits = append(exits, s)
			}
		}
	}
	var best, merge *graph.Node
	for _, e := range exits {
		if best == nil || e.Num < best.Num {
			best = e
		}
		if len(e.Preds) >= 2 && (merge == nil || e.Num < merge.Num) {
			merge = e
		}
	}
	if merge != nil {
		return merge
	}
	return best
}

// ============================================================================
// 分支汇合点
// ============================================================================

// analysis 结构化之前的图分析结果
type analysis struct {
	g            *graph.Graph
	doms         *graph.Dominators
	loops        *graph.LoopInfo
	shapes       map[*graph.Node]*loopShape // 按循环头
	loopConds    map[*graph.Node]bool       // 作为循环条件的节点
	ifFollow     map[*graph.Node]*graph.Node
	switchFollow map[*graph.Node]*graph.Node
}

func analyze(g *graph.Graph, doms *graph.Dominators, policy Policy) *analysis {
	a := &analysis{
		g:            g,
		doms:         doms,
		loops:        graph.FindLoops(g, doms),
		shapes:       make(map[*graph.Node]*loopShape),
		loopConds:    make(map[*graph.Node]bool),
		ifFollow:     make(map[*graph.Node]*graph.Node),
		switchFollow: make(map[*graph.Node]*graph.Node),
	}
	for _, l := range a.loops.Loops {
		sh := classifyLoop(l, policy.Loop)
		a.shapes[l.Header] = sh
		if sh.cond != nil {
			a.loopConds[sh.cond] = true
		}
	}
	a.computeIfFollows()
	a.computeSwitchFollows()
	return a
}

// sameLoop m 是否可以作为 n 的汇合点：不能离开 n 所在的最内层循环
func (a *analysis) sameLoop(n, m *graph.Node) bool {
	l := a.loops.Innermost(n)
	if l == nil {
		return true
	}
	return l.Contains(m) && m != l.Header
}

// computeIfFollows 按后序处理条件节点
//
// 汇合点是被条件节点直接支配、至少有两个前驱的编号最大的节点。
// 找不到汇合点的条件节点暂存，等外层条件节点找到汇合点时一并使用。
func (a *analysis) computeIfFollows() {
	var unresolved []*graph.Node
	for i := len(a.g.RPO) - 1; i >= 0; i-- {
		n := a.g.RPO[i]
		if n.Kind != graph.KindCond || a.loopConds[n] {
			continue
		}
		var f *graph.Node
		for _, m := range a.doms.Children(n) {
			if len(m.Preds) >= 2 && a.sameLoop(n, m) && (f == nil || m.Num > f.Num) {
				f = m
			}
		}
		if f == nil {
			unresolved = append(unresolved, n)
			continue
		}
		a.ifFollow[n] = f
		rest := unresolved[:0]
		for _, u := range unresolved {
			if a.doms.Dominates(n, u) && u.Num < f.Num && a.sameLoop(u, f) {
				a.ifFollow[u] = f
			} else {
				rest = append(rest, u)
			}
		}
		unresolved = rest
	}
}

// computeSwitchFollows switch 的汇合点，不考虑 case 目标本身
func (a *analysis) computeSwitchFollows() {
	for _, n := range a.g.RPO {
		if n.Kind != graph.KindSwitch {
			continue
		}
		targets := make(map[*graph.Node]bool)
		for _, c := range n.Cases {
			targets[c.Target] = true
		}
		var f *graph.Node
		for _, m := range a.doms.Children(n) {
			if targets[m] || len(m.Preds) < 2 || !a.sameLoop(n, m) {
				continue
			}
			if f == nil || m.Num > f.Num {
				f = m
			}
		}
		if f == nil && n.Default != nil && !targets[n.Default] && len(n.Default.Preds) >= 2 {
			f = n.Default
		}
		a.switchFollow[n] = f
	}
}

// regionExits try 区域（含内层区域）经正常边离开区域的目标
func (a *analysis) regionExits(r *graph.TryRegion) []*graph.Node {
	var out []*graph.Node
	seen := make(map[*graph.Node]bool)
	for _, n := range a.g.RPO {
		if !r.Encloses(n.Try) {
			continue
		}
		for _, s := range n.Succs {
			if !r.Encloses(s.Try) && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// handlerExits 处理器代码（被入口支配的节点）离开处理器的目标
func (a *analysis) handlerExits(entry *graph.Node) []*graph.Node {
	var out []*graph.Node
	seen := make(map[*graph.Node]bool)
	for _, n := range a.g.RPO {
		if !a.doms.Dominates(entry, n) {
			continue
		}
		for _, s := range n.Succs {
			if !a.doms.Dominates(entry, s) && !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}
