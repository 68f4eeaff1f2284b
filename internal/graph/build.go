package graph

import (
	"sort"

	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// ============================================================================
// 控制流图构建
// ============================================================================

// Construct 从方法代码构建控制流图
//
// 从入口块开始广度优先遍历分支、顺序后继、switch 目标和异常处理入口，
// 每个可达块生成一个节点。没有方法体时返回空图。
func Construct(m *bytecode.Method) (*Graph, error) {
	g := &Graph{Method: m, Vars: ir.NewVarTable()}
	if !m.HasCode() {
		return g, nil
	}
	g.Params = seedParams(m, g.Vars)

	blocks, byOffset := bytecode.SplitBlocks(m)
	if len(blocks) == 0 {
		return g, nil
	}
	lw := ir.NewLowerer(g.Vars, m)

	nodes := make(map[int]*Node)
	regions := make(map[string]*TryRegion)
	var queue []*bytecode.BasicBlock

	visit := func(off int) *Node {
		if n, ok := nodes[off]; ok {
			return n
		}
		b := byOffset[off]
		if b == nil {
			return nil
		}
		n := g.NewNode(KindStatement)
		n.Start = off
		nodes[off] = n
		queue = append(queue, b)
		return n
	}

	g.Entry = visit(blocks[0].Start)
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		n := nodes[b.Start]

		stmts, err := lw.Block(b.Insts)
		if err != nil {
			return nil, err
		}
		n.Stmts = stmts

		last := b.Last()
		switch last.Op {
		case bytecode.OpReturn, bytecode.OpReturnVoid:
			n.Kind = KindReturn
		case bytecode.OpThrow:
			n.Kind = KindThrow
		case bytecode.OpGoto:
			if t := visit(last.Target); t != nil {
				g.AddEdge(n, t)
			}
		case bytecode.OpIf, bytecode.OpIfZ:
			t, f := visit(last.Target), visit(b.Fall)
			if t == f {
				// 两个分支相同，退化为顺序节点
				n.Stmts = n.Stmts[:len(n.Stmts)-1]
				if t != nil {
					g.AddEdge(n, t)
				}
				break
			}
			n.Kind = KindCond
			n.TrueSucc, n.FalseSucc = t, f
			g.AddEdge(n, t)
			g.AddEdge(n, f)
		case bytecode.OpPackedSwitch, bytecode.OpSparseSwitch:
			n.Kind = KindSwitch
			buildCases(g, n, last, visit)
			if f := visit(b.Fall); f != nil {
				n.Default = f
				g.AddEdge(n, f)
			}
		default:
			if b.Fall >= 0 {
				if f := visit(b.Fall); f != nil {
					g.AddEdge(n, f)
				}
			}
		}

		// 异常边
		for _, t := range m.Tries {
			if !t.Covers(b.Start) {
				continue
			}
			key := handlersKey(t.Handlers)
			r, ok := regions[key]
			if !ok {
				r = &TryRegion{ID: len(g.Regions)}
				for _, h := range t.Handlers {
					entry := visit(h.Target)
					entry.Handler = true
					r.Handlers = append(r.Handlers, &CatchHandler{Type: h.Type, Entry: entry})
				}
				regions[key] = r
				g.Regions = append(g.Regions, r)
			}
			n.Try = r
			for _, h := range r.Handlers {
				g.AddCatchEdge(n, h.Entry)
			}
			break
		}
	}

	// 入口是循环头时加一个空的前置入口，声明可以放在循环之前
	if len(g.Entry.AllPreds()) > 0 {
		pre := g.NewNode(KindStatement)
		pre.Start = g.Entry.Start
		g.AddEdge(pre, g.Entry)
		g.Entry = pre
	}

	linkRegions(g.Regions)
	numberStatements(g)
	ComputeRPO(g)
	return g, nil
}

// seedParams 按寄存器布局登记 this 和参数变量
func seedParams(m *bytecode.Method, vars *ir.VarTable) []*ir.Variable {
	var params []*ir.Variable
	r := m.Registers - m.Ins()
	if !m.IsStatic() {
		params = append(params, vars.Param(r, m.Class, true))
		r++
	}
	for _, p := range m.ParamTypes() {
		params = append(params, vars.Param(r, p, false))
		r += bytecode.TypeSize(p)
	}
	return params
}

func buildCases(g *Graph, n *Node, inst *bytecode.Instruction, visit func(int) *Node) {
	if inst.Switch == nil {
		return
	}
	byTarget := make(map[*Node]*Case)
	for i, key := range inst.Switch.Keys {
		t := visit(inst.Switch.Targets[i])
		if t == nil {
			continue
		}
		c, ok := byTarget[t]
		if !ok {
			c = &Case{Target: t}
			byTarget[t] = c
			n.Cases = append(n.Cases, c)
			g.AddEdge(n, t)
		}
		c.Keys = append(c.Keys, key)
	}
	for _, c := range n.Cases {
		sort.Slice(c.Keys, func(i, j int) bool { return c.Keys[i] < c.Keys[j] })
	}
}

// linkRegions 处理器列表是另一个区域列表的真后缀时，后者是外层区域
func linkRegions(regions []*TryRegion) {
	for _, r := range regions {
		var best *TryRegion
		for _, o := range regions {
			if o == r || len(o.Handlers) >= len(r.Handlers) {
				continue
			}
			if isSuffix(o.Handlers, r.Handlers) && (best == nil || len(o.Handlers) > len(best.Handlers)) {
				best = o
			}
		}
		r.Parent = best
	}
}

func isSuffix(short, long []*CatchHandler) bool {
	off := len(long) - len(short)
	for i, h := range short {
		if long[off+i].Type != h.Type || long[off+i].Entry != h.Entry {
			return false
		}
	}
	return true
}

// numberStatements 按节点创建顺序为语句分配位置编号
func numberStatements(g *Graph) {
	for _, n := range g.Nodes {
		for _, s := range n.Stmts {
			s.SetLoc(g.NextLoc())
		}
	}
}
