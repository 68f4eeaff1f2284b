package graph

import (
	"sort"
)

// ============================================================================
// 支配树计算
// ============================================================================

// Dominators 支配信息（基于逆后序编号，图改变后需要重新计算）
type Dominators struct {
	g        *Graph
	idom     map[*Node]*Node
	children map[*Node][]*Node
}

// ImmediateDominators 计算直接支配节点
//
// 使用 Cooper/Harvey/Kennedy 的迭代算法，按逆后序处理节点，
// 异常边也参与计算。入口节点的直接支配节点为 nil。
func ImmediateDominators(g *Graph) *Dominators {
	d := &Dominators{
		g:        g,
		idom:     make(map[*Node]*Node, len(g.RPO)),
		children: make(map[*Node][]*Node),
	}
	if g.Empty() {
		return d
	}
	d.idom[g.Entry] = g.Entry

	// 迭代直到不动点
	changed := true
	for changed {
		changed = false
		for _, b := range g.RPO {
			if b == g.Entry {
				continue
			}
			var newIdom *Node
			for _, p := range b.AllPreds() {
				if d.idom[p] == nil || p.Num < 0 {
					continue
				}
				if newIdom == nil {
					newIdom = p
				} else {
					newIdom = d.intersect(p, newIdom)
				}
			}
			if newIdom != nil && d.idom[b] != newIdom {
				d.idom[b] = newIdom
				changed = true
			}
		}
	}

	for _, b := range g.RPO {
		if b == g.Entry {
			continue
		}
		if p := d.idom[b]; p != nil {
			d.children[p] = append(d.children[p], b)
		}
	}
	return d
}

func (d *Dominators) intersect(b1, b2 *Node) *Node {
	for b1 != b2 {
		for b1.Num > b2.Num {
			b1 = d.idom[b1]
		}
		for b2.Num > b1.Num {
			b2 = d.idom[b2]
		}
	}
	return b1
}

// Idom 直接支配节点（入口节点返回 nil）
func (d *Dominators) Idom(n *Node) *Node {
	if n == d.g.Entry {
		return nil
	}
	return d.idom[n]
}

// Children 支配树中的子节点（按逆后序编号排序）
func (d *Dominators) Children(n *Node) []*Node {
	return d.children[n]
}

// Dominates a 是否支配 b（自身支配自身）
func (d *Dominators) Dominates(a, b *Node) bool {
	for b != nil {
		if a == b {
			return true
		}
		if b == d.g.Entry {
			return false
		}
		b = d.idom[b]
	}
	return false
}

// CommonDominator 最近公共支配节点
func (d *Dominators) CommonDominator(a, b *Node) *Node {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return d.intersect(a, b)
}

// Frontier 支配边界
func (d *Dominators) Frontier() map[*Node][]*Node {
	df := make(map[*Node][]*Node)
	for _, b := range d.g.RPO {
		preds := b.AllPreds()
		if len(preds) < 2 {
			continue
		}
		for _, p := range preds {
			runner := p
			for runner != nil && runner != d.idom[b] {
				if !contains(df[runner], b) {
					df[runner] = append(df[runner], b)
				}
				if runner == d.g.Entry {
					break
				}
				runner = d.idom[runner]
			}
		}
	}
	return df
}

// ============================================================================
// 循环识别
// ============================================================================

// Loop 自然循环
type Loop struct {
	Header  *Node
	Latches []*Node        // 回边的源节点
	Body    map[*Node]bool // 含循环头
	Parent  *Loop
}

// Contains 节点是否属于循环体
func (l *Loop) Contains(n *Node) bool {
	return l != nil && l.Body[n]
}

// Nodes 循环体节点（按逆后序编号排序）
func (l *Loop) Nodes() []*Node {
	out := make([]*Node, 0, len(l.Body))
	for n := range l.Body {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Num < out[j].Num })
	return out
}

// LoopInfo 方法中的全部自然循环
type LoopInfo struct {
	Loops       []*Loop
	byHeader    map[*Node]*Loop
	innermost   map[*Node]*Loop
	Irreducible [][2]*Node // 不是回边的逆向边
}

// FindLoops 根据回边识别自然循环
//
// 回边 n->h 要求 h 支配 n；循环体是被 h 支配且能回到 n 的节点。
// 指向未支配节点的逆向边记为不可归约边。
func FindLoops(g *Graph, d *Dominators) *LoopInfo {
	li := &LoopInfo{
		byHeader:  make(map[*Node]*Loop),
		innermost: make(map[*Node]*Loop),
	}
	for _, n := range g.RPO {
		for _, s := range n.Succs {
			if s.Num > n.Num {
				continue
			}
			if !d.Dominates(s, n) {
				li.Irreducible = append(li.Irreducible, [2]*Node{n, s})
				continue
			}
			l, ok := li.byHeader[s]
			if !ok {
				l = &Loop{Header: s, Body: map[*Node]bool{s: true}}
				li.byHeader[s] = l
				li.Loops = append(li.Loops, l)
			}
			l.Latches = append(l.Latches, n)
			collectBody(l, n, d)
		}
	}

	// 外层循环的循环体更大
	sort.SliceStable(li.Loops, func(i, j int) bool {
		return len(li.Loops[i].Body) > len(li.Loops[j].Body)
	})
	for i, l := range li.Loops {
		for j := i - 1; j >= 0; j-- {
			if li.Loops[j].Body[l.Header] {
				l.Parent = li.Loops[j]
				break
			}
		}
		for n := range l.Body {
			li.innermost[n] = l
		}
	}
	return li
}

func collectBody(l *Loop, latch *Node, d *Dominators) {
	stack := []*Node{latch}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if l.Body[n] || !d.Dominates(l.Header, n) {
			continue
		}
		l.Body[n] = true
		stack = append(stack, n.AllPreds()...)
	}
}

// Header 以 n 为循环头的循环
func (li *LoopInfo) Header(n *Node) *Loop {
	return li.byHeader[n]
}

// Innermost 包含 n 的最内层循环
func (li *LoopInfo) Innermost(n *Node) *Loop {
	return li.innermost[n]
}
