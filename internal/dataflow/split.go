package dataflow

import (
	"sort"

	"github.com/tangzhangming/dexdec/internal/graph"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// ============================================================================
// 变量生命期拆分
// ============================================================================

// unionFind 定义位置上的并查集
type unionFind struct {
	parent map[int]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int]int)}
}

func (u *unionFind) find(x int) int {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// 较小的位置作为代表，结果与遍历顺序无关
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}

// SplitVariables 把同一寄存器上互不相交的生命期拆成不同变量
//
// 共同到达某个使用的定义属于同一个网。包含参数入口定义的网保留原变量，
// 否则位置最小的网保留原变量，其余每个网分配新变量。
// 返回重新计算的定义-使用链。
func SplitVariables(g *graph.Graph, c *Chains) (*Chains, error) {
	webs := make(map[*ir.Variable]*unionFind)
	for _, v := range c.Variables() {
		uf := newUnionFind()
		for _, d := range c.Defs(v) {
			uf.find(d)
		}
		webs[v] = uf
	}
	for site, defs := range c.UseDef {
		uf := webs[site.Var]
		if uf == nil {
			continue
		}
		for _, d := range defs[1:] {
			uf.union(defs[0], d)
		}
	}

	split := false
	for _, v := range c.Variables() {
		groups := make(map[int][]int)
		for _, d := range c.Defs(v) {
			r := webs[v].find(d)
			groups[r] = append(groups[r], d)
		}
		if len(groups) < 2 {
			continue
		}
		roots := make([]int, 0, len(groups))
		for r := range groups {
			roots = append(roots, r)
		}
		// 代表是网中最小的位置，参数入口 (-1) 自然排在最前
		sort.Ints(roots)
		for _, r := range roots[1:] {
			nv := g.Vars.Fresh(v)
			for _, d := range groups[r] {
				if s := c.stmts[d]; s != nil {
					s.RenameDef(nv)
				}
				for _, u := range c.DefUse[Site{v, d}] {
					if s := c.stmts[u]; s != nil {
						ir.RenameUses(s, v, nv)
					}
				}
			}
			split = true
		}
	}
	if !split {
		return c, nil
	}
	return BuildChains(g)
}
