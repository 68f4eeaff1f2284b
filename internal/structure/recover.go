package structure

import (
	"fmt"

	"github.com/tangzhangming/dexdec/internal/ast"
	"github.com/tangzhangming/dexdec/internal/graph"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// ============================================================================
// 结构化恢复
// ============================================================================

// nodeState 图节点的结构化状态
type nodeState int

const (
	unvisited nodeState = iota
	inProgress
	structured
)

// Result 结构化结果
type Result struct {
	Root        *ast.Block
	Gotos       int // 无法消除的跳转数量
	Irreducible int // 不可归约的逆向边数量
	Loops       int
}

// recoverer 一次结构化恢复的全部状态
type recoverer struct {
	*analysis
	policy   Policy
	state    map[*graph.Node]nodeState
	emitted  map[*graph.Node]ast.Node // 每个图节点对应的第一个语法树节点
	labels   map[*graph.Node]string   // 尚未生成的节点上需要的标签
	skip     map[int]bool             // 不输出的语句位置
	reserved map[*graph.Node]int      // 由外层结构负责输出的汇合点
	tries    map[*graph.TryRegion]*openTry
	gotos    int
}

// Recover 把化简后的控制流图恢复为结构化语法树
//
// 从入口开始按显式工作栈输出顺序、分支、循环、switch 和 try 结构，
// 不在图上递归。无法结构化的边变成带标签的 goto；结构化输出没有到达的
// 节点附加在根序列之后。
func Recover(g *graph.Graph, doms *graph.Dominators, policy Policy) (*Result, error) {
	res := &Result{Root: &ast.Block{}}
	if g.Empty() {
		return res, nil
	}
	r := newRecoverer(g, doms, policy)
	r.run(&seqFrame{block: res.Root, start: g.Entry, inline: true})
	for _, n := range g.RPO {
		if r.state[n] != unvisited {
			continue
		}
		r.labels[n] = labelName(n)
		r.run(&seqFrame{block: res.Root, start: n, inline: true})
	}

	for _, n := range g.RPO {
		if r.state[n] != structured {
			return nil, fmt.Errorf("node %s left in state %d after structuring", n, r.state[n])
		}
	}
	res.Gotos = r.gotos
	res.Irreducible = len(r.loops.Irreducible)
	res.Loops = len(r.loops.Loops)
	return res, nil
}

func newRecoverer(g *graph.Graph, doms *graph.Dominators, policy Policy) *recoverer {
	return &recoverer{
		analysis: analyze(g, doms, policy),
		policy:   policy,
		state:    make(map[*graph.Node]nodeState, len(g.RPO)),
		emitted:  make(map[*graph.Node]ast.Node, len(g.RPO)),
		labels:   make(map[*graph.Node]string),
		skip:     make(map[int]bool),
		reserved: make(map[*graph.Node]int),
		tries:    make(map[*graph.TryRegion]*openTry),
	}
}

// frame 工作栈上的一项
type frame interface {
	// step 推进当前项，返回需要先完成的子项；返回 nil 表示本项已完成
	step(r *recoverer) frame
	// done 子项完成
	done(r *recoverer, child frame)
}

// construct 分支、循环、switch、try 等结构
type construct interface {
	frame
	result(r *recoverer) []ast.Node
	next() *graph.Node
}

func (r *recoverer) run(root frame) {
	stack := []frame{root}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if child := top.step(r); child != nil {
			stack = append(stack, child)
			continue
		}
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			stack[len(stack)-1].done(r, top)
		}
	}
}

// ============================================================================
// 作用域与跳转
// ============================================================================

type scopeKind int

const (
	scopeLoop scopeKind = iota
	scopeSwitch
	scopeTry
)

// scope 正在输出的循环、switch 或 try
type scope struct {
	parent *scope
	kind   scopeKind
	shape  *loopShape
	follow *graph.Node
	region *graph.TryRegion
	owner  ast.Node
	name   string
}

// action 跳到某个节点时的处理方式
type action int

const (
	actInline   action = iota // 继续输出目标节点
	actNone                   // 自然结束
	actBreak                  // break
	actContinue               // continue
	actGoto                   // goto
)

// classify 决定从当前序列跳到 t 的方式
func (r *recoverer) classify(f *seqFrame, t *graph.Node) (action, *scope, bool) {
	if t == nil || t == f.stop || t == f.fall {
		return actNone, nil, false
	}
	outside := false
	innerLoop, innerBreakable := true, true
	for s := f.scope; s != nil; s = s.parent {
		switch s.kind {
		case scopeLoop:
			if t == s.shape.continueTo {
				return actContinue, s, !innerLoop
			}
			if s.follow != nil && t == s.follow {
				return actBreak, s, !innerBreakable
			}
			innerLoop, innerBreakable = false, false
		case scopeSwitch:
			if s.follow != nil && t == s.follow {
				return actBreak, s, !innerBreakable
			}
			innerBreakable = false
		case scopeTry:
			if !s.region.Encloses(t.Try) {
				outside = true
			}
		}
	}
	if outside || r.state[t] != unvisited || r.reserved[t] > 0 {
		return actGoto, nil, false
	}
	return actInline, nil, false
}

// jump 输出跳转语句，需要继续输出目标时返回目标
func (r *recoverer) jump(f *seqFrame, t *graph.Node) *graph.Node {
	act, s, labeled := r.classify(f, t)
	switch act {
	case actInline:
		return t
	case actBreak:
		f.block.Append(&ast.Break{Target: r.scopeLabel(s, labeled)})
	case actContinue:
		f.block.Append(&ast.Continue{Target: r.scopeLabel(s, labeled)})
	case actGoto:
		r.gotos++
		f.block.Append(&ast.Goto{Target: r.nodeLabel(t)})
	}
	return nil
}

func (r *recoverer) scopeLabel(s *scope, needed bool) string {
	if !needed {
		return ""
	}
	if s.name == "" {
		prefix := "loop"
		id := 0
		if s.kind == scopeSwitch {
			prefix = "switch"
			id = s.owner.(*ast.Switch).Node
		} else {
			id = s.shape.loop.Header.ID
		}
		s.name = fmt.Sprintf("%s%d", prefix, id)
		s.owner.SetLabel(s.name)
	}
	return s.name
}

func labelName(n *graph.Node) string {
	return fmt.Sprintf("label%d", n.ID)
}

// nodeLabel 节点的标签，已经输出的节点直接加标签
func (r *recoverer) nodeLabel(n *graph.Node) string {
	if e, ok := r.emitted[n]; ok {
		if e.LabelName() == "" {
			e.SetLabel(labelName(n))
		}
		return e.LabelName()
	}
	if _, ok := r.labels[n]; !ok {
		r.labels[n] = labelName(n)
	}
	return r.labels[n]
}

// register 记录节点对应的语法树节点并加上等待中的标签
func (r *recoverer) register(n *graph.Node, node ast.Node) {
	if _, ok := r.emitted[n]; ok {
		return
	}
	r.emitted[n] = node
	if l, ok := r.labels[n]; ok && node.LabelName() == "" {
		node.SetLabel(l)
	}
}

func (r *recoverer) statement(n *graph.Node, stmts []ir.Stmt) *ast.Statement {
	st := &ast.Statement{Node: n.ID}
	for _, s := range stmts {
		if !r.skip[s.Loc()] {
			st.Stmts = append(st.Stmts, s)
		}
	}
	r.register(n, st)
	r.state[n] = structured
	return st
}

// ============================================================================
// 顺序
// ============================================================================

// seqFrame 从 start 开始顺序输出，直到 stop 或无法继续
type seqFrame struct {
	scope   *scope
	block   *ast.Block
	start   *graph.Node
	inline  bool // start 不经过跳转判断直接输出
	stop    *graph.Node
	fall    *graph.Node // switch 中贯穿到的下一个 case
	cur     *graph.Node
	started bool
}

func (f *seqFrame) step(r *recoverer) frame {
	if !f.started {
		f.started = true
		if f.inline {
			f.cur = f.start
		} else {
			f.cur = r.jump(f, f.start)
		}
	}
	for f.cur != nil {
		n := f.cur
		f.cur = nil
		if c := r.emit(f, n); c != nil {
			return c
		}
	}
	return nil
}

func (f *seqFrame) done(r *recoverer, child frame) {
	c := child.(construct)
	out := c.result(r)
	f.block.Append(out...)
	nx := c.next()
	if nx == nil {
		return
	}
	// 结构不会落到汇合点时不输出到汇合点的跳转
	if len(out) > 0 && ast.IsJump(out[len(out)-1]) {
		if act, _, _ := r.classify(f, nx); act == actInline {
			f.cur = nx
		}
		return
	}
	f.cur = r.jump(f, nx)
}

// emit 输出节点 n；需要结构时返回对应的工作项
func (r *recoverer) emit(f *seqFrame, n *graph.Node) frame {
	if x := r.pendingRegion(f, n); x != nil {
		if ot := r.tries[x]; ot != nil {
			return r.reopenTry(f, n, ot)
		}
		return r.newTry(f, n, x)
	}
	if sh := r.shapes[n]; sh != nil && !loopOpen(f.scope, n) {
		return r.newLoop(f, sh)
	}
	switch n.Kind {
	case graph.KindCond:
		return r.newIf(f, n)
	case graph.KindSwitch:
		return r.newSwitch(f, n)
	}
	f.block.Append(r.statement(n, n.Stmts))
	if n.Kind == graph.KindStatement && len(n.Succs) == 1 {
		f.cur = r.jump(f, n.Succs[0])
	}
	return nil
}

// pendingRegion n 所在的区域链中，位于当前 try 作用域之内的最外层区域
//
// 区域不连续时，每次从区域外进入都要重新输出一个 try 结构。
func (r *recoverer) pendingRegion(f *seqFrame, n *graph.Node) *graph.TryRegion {
	var active *graph.TryRegion
	for s := f.scope; s != nil; s = s.parent {
		if s.kind == scopeTry {
			active = s.region
			break
		}
	}
	var outer *graph.TryRegion
	for x := n.Try; x != nil && x != active; x = x.Parent {
		outer = x
	}
	return outer
}

func loopOpen(s *scope, h *graph.Node) bool {
	for ; s != nil; s = s.parent {
		if s.kind == scopeLoop && s.shape.loop.Header == h {
			return true
		}
	}
	return false
}

func (r *recoverer) reserve(n *graph.Node) {
	if n != nil {
		r.reserved[n]++
	}
}

func (r *recoverer) release(n *graph.Node) {
	if n != nil {
		r.reserved[n]--
	}
}
