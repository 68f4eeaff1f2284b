// Package dataflow 实现寄存器级数据流分析与基于它的优化
//
// 包括到达定义、定义-使用链、变量生命期拆分、死代码删除、
// 寄存器传播和声明位置选择。
package dataflow

import (
	"fmt"
	"sort"

	"github.com/tangzhangming/dexdec/internal/graph"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// ParamLoc 参数在入口处的隐式定义位置
const ParamLoc = -1

// Site 变量在某个位置的定义或使用
type Site struct {
	Var *ir.Variable
	Loc int
}

// InvariantError 数据流不变量被破坏（内部错误）
type InvariantError struct {
	Var     *ir.Variable
	Loc     int
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("dataflow invariant violated at loc %d (%s): %s", e.Loc, e.Var, e.Message)
}

// defSet 每个变量的到达定义位置（有序、无重复）
type defSet map[*ir.Variable][]int

func (s defSet) clone() defSet {
	out := make(defSet, len(s))
	for v, locs := range s {
		out[v] = locs
	}
	return out
}

// merge 把 o 并入 s，返回是否有变化
func (s defSet) merge(o defSet) bool {
	changed := false
	for v, locs := range o {
		u := unionLocs(s[v], locs)
		if len(u) != len(s[v]) {
			s[v] = u
			changed = true
		}
	}
	return changed
}

func unionLocs(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i >= len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func addLoc(locs []int, l int) []int {
	i := sort.SearchInts(locs, l)
	if i < len(locs) && locs[i] == l {
		return locs
	}
	out := make([]int, 0, len(locs)+1)
	out = append(out, locs[:i]...)
	out = append(out, l)
	return append(out, locs[i:]...)
}

func removeLoc(locs []int, l int) []int {
	i := sort.SearchInts(locs, l)
	if i >= len(locs) || locs[i] != l {
		return locs
	}
	out := make([]int, 0, len(locs)-1)
	out = append(out, locs[:i]...)
	return append(out, locs[i+1:]...)
}

func sameLocs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ============================================================================
// 定义-使用链
// ============================================================================

// Chains 定义-使用链与使用-定义链
type Chains struct {
	// DefUse (变量, 定义位置) -> 使用位置
	DefUse map[Site][]int
	// UseDef (变量, 使用位置) -> 到达的定义位置
	UseDef map[Site][]int

	g     *graph.Graph
	in    map[*graph.Node]defSet
	stmts map[int]ir.Stmt
	nodes map[int]*graph.Node
}

// BuildChains 计算到达定义并建立定义-使用链
//
// 在逆后序上迭代到不动点。异常前驱贡献它的入口集合以及它内部的全部定义，
// 因为异常可能在任意语句之后发生。每次调用都从头计算。
func BuildChains(g *graph.Graph) (*Chains, error) {
	c := &Chains{
		DefUse: make(map[Site][]int),
		UseDef: make(map[Site][]int),
		g:      g,
		in:     make(map[*graph.Node]defSet, len(g.RPO)),
		stmts:  make(map[int]ir.Stmt),
		nodes:  make(map[int]*graph.Node),
	}
	if g.Empty() {
		return c, nil
	}
	for _, n := range g.RPO {
		c.in[n] = defSet{}
		for _, s := range n.Stmts {
			c.stmts[s.Loc()] = s
			c.nodes[s.Loc()] = n
		}
	}
	entry := c.in[g.Entry]
	for _, p := range g.Params {
		entry[p] = []int{ParamLoc}
	}

	out := make(map[*graph.Node]defSet, len(g.RPO))
	catchOut := make(map[*graph.Node]defSet, len(g.RPO))
	for changed := true; changed; {
		changed = false
		for _, n := range g.RPO {
			in := c.in[n]
			for _, p := range n.Preds {
				if o, ok := out[p]; ok && in.merge(o) {
					changed = true
				}
			}
			for _, p := range n.CatchPreds {
				if o, ok := catchOut[p]; ok && in.merge(o) {
					changed = true
				}
			}
			o, co := transfer(n, in)
			if prev, ok := out[n]; !ok || !equalSets(prev, o) {
				changed = true
			}
			out[n], catchOut[n] = o, co
		}
	}

	// 建立链
	for _, n := range g.RPO {
		cur := c.in[n].clone()
		for _, s := range n.Stmts {
			loc := s.Loc()
			for _, v := range s.Uses() {
				key := Site{v, loc}
				if _, done := c.UseDef[key]; done {
					continue
				}
				defs := cur[v]
				if len(defs) == 0 {
					return nil, &InvariantError{Var: v, Loc: loc, Message: "use without reaching definition"}
				}
				c.UseDef[key] = defs
				for _, d := range defs {
					c.DefUse[Site{v, d}] = addLoc(c.DefUse[Site{v, d}], loc)
				}
			}
			if v := s.Def(); v != nil {
				if _, ok := c.DefUse[Site{v, loc}]; !ok {
					c.DefUse[Site{v, loc}] = nil
				}
				cur[v] = []int{loc}
			}
		}
	}
	for _, p := range g.Params {
		if _, ok := c.DefUse[Site{p, ParamLoc}]; !ok {
			c.DefUse[Site{p, ParamLoc}] = nil
		}
	}
	return c, nil
}

// transfer 节点出口集合与异常出口集合
func transfer(n *graph.Node, in defSet) (defSet, defSet) {
	out := in.clone()
	var co defSet
	if len(n.CatchSuccs) > 0 {
		co = in.clone()
	}
	for _, s := range n.Stmts {
		if v := s.Def(); v != nil {
			out[v] = []int{s.Loc()}
			if co != nil {
				co[v] = addLoc(co[v], s.Loc())
			}
		}
	}
	return out, co
}

func equalSets(a, b defSet) bool {
	if len(a) != len(b) {
		return false
	}
	for v, locs := range a {
		if !sameLocs(locs, b[v]) {
			return false
		}
	}
	return true
}

// Stmt 位置对应的语句（已删除时返回 nil）
func (c *Chains) Stmt(loc int) ir.Stmt {
	return c.stmts[loc]
}

// Node 位置所在的节点
func (c *Chains) Node(loc int) *graph.Node {
	return c.nodes[loc]
}

// Defs v 的全部定义位置
func (c *Chains) Defs(v *ir.Variable) []int {
	var out []int
	for site := range c.DefUse {
		if site.Var == v {
			out = append(out, site.Loc)
		}
	}
	sort.Ints(out)
	return out
}

// Uses (v, def) 的使用位置
func (c *Chains) Uses(v *ir.Variable, def int) []int {
	return c.DefUse[Site{v, def}]
}

// DefsAt 在 loc 处语句执行之前 v 的到达定义
func (c *Chains) DefsAt(v *ir.Variable, loc int) []int {
	n := c.nodes[loc]
	if n == nil {
		return nil
	}
	cur := c.in[n][v]
	for _, s := range n.Stmts {
		if s.Loc() == loc {
			break
		}
		if s.Def() == v {
			cur = []int{s.Loc()}
		}
	}
	// 过滤已删除的定义
	out := make([]int, 0, len(cur))
	for _, d := range cur {
		if d == ParamLoc || (c.stmts[d] != nil && c.stmts[d].Def() == v) {
			out = append(out, d)
		}
	}
	return out
}

// Variables 链中出现的全部变量（按 ID 排序）
func (c *Chains) Variables() []*ir.Variable {
	seen := make(map[*ir.Variable]bool)
	var out []*ir.Variable
	for site := range c.DefUse {
		if !seen[site.Var] {
			seen[site.Var] = true
			out = append(out, site.Var)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// removeStmt 删除语句并维护链，返回因此变成无用的定义
func (c *Chains) removeStmt(loc int) []Site {
	s := c.stmts[loc]
	n := c.nodes[loc]
	if s == nil {
		return nil
	}
	var dead []Site
	for _, v := range s.Uses() {
		key := Site{v, loc}
		for _, d := range c.UseDef[key] {
			du := Site{v, d}
			if _, ok := c.DefUse[du]; !ok {
				continue
			}
			c.DefUse[du] = removeLoc(c.DefUse[du], loc)
			if len(c.DefUse[du]) == 0 && d != ParamLoc {
				dead = append(dead, du)
			}
		}
		delete(c.UseDef, key)
	}
	if v := s.Def(); v != nil {
		delete(c.DefUse, Site{v, loc})
	}
	for i, st := range n.Stmts {
		if st == s {
			n.Stmts = append(n.Stmts[:i:i], n.Stmts[i+1:]...)
			break
		}
	}
	delete(c.stmts, loc)
	delete(c.nodes, loc)
	return dead
}
