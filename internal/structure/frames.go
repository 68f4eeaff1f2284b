package structure

import (
	"sort"

	"github.com/tangzhangming/dexdec/internal/ast"
	"github.com/tangzhangming/dexdec/internal/graph"
	"github.com/tangzhangming/dexdec/internal/ir"
)

// throwableType catch-all 处理器在源码中的类型
const throwableType = "Ljava/lang/Throwable;"

// childSeq 依次执行若干子序列的公共部分
type childSeq struct {
	seqs []*seqFrame
	idx  int
}

func (c *childSeq) step(r *recoverer) frame {
	if c.idx < len(c.seqs) {
		c.idx++
		return c.seqs[c.idx-1]
	}
	return nil
}

func (c *childSeq) done(r *recoverer, child frame) {}

// ============================================================================
// 分支
// ============================================================================

type ifFrame struct {
	childSeq
	n      *graph.Node
	node   *ast.If
	prefix *ast.Statement
	fol    *graph.Node
}

func (r *recoverer) newIf(f *seqFrame, n *graph.Node) frame {
	fol := r.ifFollow[n]
	cond := n.Cond()
	t, e := n.TrueSucc, n.FalseSucc

	node := &ast.If{Node: n.ID}
	var thenStart, elseStart *graph.Node
	switch {
	case fol != nil && e == fol:
		node.Cond, thenStart = cond, t
	case fol != nil && t == fol:
		node.Cond, thenStart = cond.Negate(), e
	case fol == nil && r.isJumpy(f, t):
		node.Cond, thenStart, elseStart = cond, t, e
	default:
		node.Cond, thenStart, elseStart = cond.Negate(), e, t
	}

	fr := &ifFrame{n: n, node: node, fol: fol}
	if len(n.Stmts) > 1 {
		fr.prefix = r.statement(n, n.Stmts[:len(n.Stmts)-1])
	}
	r.register(n, node)
	r.state[n] = inProgress
	r.reserve(fol)

	stop, fall := fol, (*graph.Node)(nil)
	if fol == nil {
		stop, fall = f.stop, f.fall
	}
	node.Then = &ast.Block{}
	fr.seqs = append(fr.seqs, &seqFrame{scope: f.scope, block: node.Then, start: thenStart, stop: stop, fall: fall})
	if elseStart != nil {
		node.Else = &ast.Block{}
		fr.seqs = append(fr.seqs, &seqFrame{scope: f.scope, block: node.Else, start: elseStart, stop: stop, fall: fall})
	}
	return fr
}

// isJumpy 跳到 t 是否只生成一条跳转语句或直接离开方法
func (r *recoverer) isJumpy(f *seqFrame, t *graph.Node) bool {
	act, _, _ := r.classify(f, t)
	switch act {
	case actBreak, actContinue, actGoto:
		return true
	case actInline:
		return t.IsExit() && len(t.Preds) == 1
	}
	return false
}

func (fr *ifFrame) result(r *recoverer) []ast.Node {
	r.release(fr.fol)
	r.state[fr.n] = structured
	node := fr.node
	if node.Else != nil && len(node.Else.Body) == 0 {
		node.Else = nil
	}
	if len(node.Then.Body) == 0 && node.Else != nil {
		node.Cond = node.Cond.Negate()
		node.Then, node.Else = node.Else, nil
	}

	var out []ast.Node
	if fr.prefix != nil {
		out = append(out, fr.prefix)
	}
	out = append(out, node)
	// 没有汇合点且 then 以跳转结束时，else 部分提到 if 之后
	if fr.fol == nil && node.Else != nil && ast.IsJump(node.Then.Last()) {
		out = append(out, node.Else.Body...)
		node.Else = nil
	}
	return out
}

func (fr *ifFrame) next() *graph.Node { return fr.fol }

// ============================================================================
// 循环
// ============================================================================

type loopFrame struct {
	childSeq
	shape *loopShape
	node  *ast.Loop
}

func (r *recoverer) newLoop(f *seqFrame, sh *loopShape) frame {
	h := sh.loop.Header
	// 回边源节点已由别处输出时不能再作为 do-while 条件
	if sh.kind == ast.LoopDoWhile && (r.state[sh.cond] != unvisited || r.reserved[sh.cond] > 0) {
		sh = endlessShape(sh.loop)
	}
	node := &ast.Loop{Kind: sh.kind, Node: -1, Header: h.ID, Body: &ast.Block{}}
	sc := &scope{parent: f.scope, kind: scopeLoop, shape: sh, follow: sh.follow, owner: node}
	fr := &loopFrame{shape: sh, node: node}
	r.register(h, node)

	body := &seqFrame{scope: sc, block: node.Body}
	switch sh.kind {
	case ast.LoopWhile:
		node.Node = h.ID
		node.Cond = h.Cond()
		if sh.start == h.FalseSucc {
			node.Cond = node.Cond.Negate()
		}
		r.state[h] = inProgress
		body.start, body.stop = sh.start, h
	case ast.LoopDoWhile:
		lt := sh.cond
		node.Node = lt.ID
		node.Cond = lt.Cond()
		if lt.FalseSucc == h {
			node.Cond = node.Cond.Negate()
		}
		r.register(lt, node)
		r.state[lt] = inProgress
		body.start, body.inline, body.stop = h, true, lt
	default:
		body.start, body.inline = h, true
	}
	fr.seqs = []*seqFrame{body}
	return fr
}

func (fr *loopFrame) result(r *recoverer) []ast.Node {
	if fr.shape.cond != nil {
		r.state[fr.shape.cond] = structured
	}
	b := fr.node.Body
	if c, ok := b.Last().(*ast.Continue); ok && c.Target == "" && c.Label == "" {
		b.Body = b.Body[:len(b.Body)-1]
	}
	return []ast.Node{fr.node}
}

func (fr *loopFrame) next() *graph.Node { return fr.shape.follow }

// ============================================================================
// switch
// ============================================================================

type switchFrame struct {
	childSeq
	n    *graph.Node
	node *ast.Switch
	fol  *graph.Node
}

type switchEntry struct {
	c      *ast.Case
	target *graph.Node
}

func (r *recoverer) newSwitch(f *seqFrame, n *graph.Node) frame {
	fol := r.switchFollow[n]
	if fol == nil {
		fol = f.stop
	}
	var value ir.Expr
	if s, ok := n.Last().(*ir.SwitchStmt); ok {
		value = s.Value
	}
	node := &ast.Switch{Node: n.ID, Value: value}
	fr := &switchFrame{n: n, node: node, fol: fol}
	if len(n.Stmts) > 1 {
		f.block.Append(r.statement(n, n.Stmts[:len(n.Stmts)-1]))
	}
	r.register(n, node)
	r.state[n] = inProgress
	r.reserve(fol)

	var entries []*switchEntry
	byTarget := make(map[*graph.Node]*switchEntry)
	entry := func(t *graph.Node) *switchEntry {
		if e, ok := byTarget[t]; ok {
			return e
		}
		e := &switchEntry{c: &ast.Case{Body: &ast.Block{}}, target: t}
		byTarget[t] = e
		entries = append(entries, e)
		return e
	}
	for _, c := range n.Cases {
		e := entry(c.Target)
		e.c.Keys = append(e.c.Keys, c.Keys...)
	}
	if n.Default != nil && n.Default != fol {
		entry(n.Default).c.Default = true
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].target.Num < entries[j].target.Num
	})

	sc := &scope{parent: f.scope, kind: scopeSwitch, follow: fol, owner: node}
	for i, e := range entries {
		var fall *graph.Node
		if i+1 < len(entries) {
			fall = entries[i+1].target
		}
		node.Cases = append(node.Cases, e.c)
		fr.seqs = append(fr.seqs, &seqFrame{scope: sc, block: e.c.Body, start: e.target, fall: fall})
	}
	return fr
}

func (fr *switchFrame) result(r *recoverer) []ast.Node {
	r.release(fr.fol)
	r.state[fr.n] = structured
	if k := len(fr.node.Cases); k > 0 {
		b := fr.node.Cases[k-1].Body
		if br, ok := b.Last().(*ast.Break); ok && br.Target == "" {
			b.Body = b.Body[:len(b.Body)-1]
		}
	}
	return []ast.Node{fr.node}
}

func (fr *switchFrame) next() *graph.Node { return fr.fol }

// ============================================================================
// try / catch / finally
// ============================================================================

type tryFrame struct {
	childSeq
	node *ast.TryCatch
	fol  *graph.Node
}

// catchGroup 共用一个处理入口的处理器
type catchGroup struct {
	entry    *graph.Node
	types    []string
	catchAll bool
}

// ownHandlers 区域自己的处理器（不含外层区域共享的部分）
func ownHandlers(x *graph.TryRegion) []*graph.CatchHandler {
	n := len(x.Handlers)
	if x.Parent != nil {
		n -= len(x.Parent.Handlers)
	}
	if n < 0 {
		n = 0
	}
	return x.Handlers[:n]
}

func groupHandlers(hs []*graph.CatchHandler, order HandlerOrder) []*catchGroup {
	var groups []*catchGroup
	byEntry := make(map[*graph.Node]*catchGroup)
	for _, h := range hs {
		gr, ok := byEntry[h.Entry]
		if !ok {
			gr = &catchGroup{entry: h.Entry}
			byEntry[h.Entry] = gr
			groups = append(groups, gr)
		}
		if h.Type == "" {
			gr.catchAll = true
		} else {
			gr.types = append(gr.types, h.Type)
		}
	}
	for _, gr := range groups {
		if gr.catchAll {
			gr.types = []string{throwableType}
		}
	}
	if order == CatchAllLast {
		sort.SliceStable(groups, func(i, j int) bool {
			return !groups[i].catchAll && groups[j].catchAll
		})
	}
	return groups
}

// tryFollow try 结构之后的节点：区域和处理器出口中编号最小者
//
// 外层循环的 continue/break 目标和 switch 的汇合点由跳转语句处理，不作为汇合点。
func (r *recoverer) tryFollow(f *seqFrame, x *graph.TryRegion, groups []*catchGroup) *graph.Node {
	jumps := make(map[*graph.Node]bool)
	for s := f.scope; s != nil; s = s.parent {
		switch s.kind {
		case scopeLoop:
			jumps[s.shape.continueTo] = true
			jumps[s.shape.loop.Header] = true
			jumps[s.follow] = true
		case scopeSwitch:
			jumps[s.follow] = true
		}
	}
	cands := r.regionExits(x)
	for _, gr := range groups {
		cands = append(cands, r.handlerExits(gr.entry)...)
	}
	var fol *graph.Node
	for _, c := range cands {
		if c == nil || jumps[c] || r.state[c] == structured {
			continue
		}
		if fol == nil || c.Num < fol.Num {
			fol = c
		}
	}
	return fol
}

// caughtVar 处理入口第一条语句把异常保存到变量时返回该语句
func caughtVar(entry *graph.Node) *ir.AssignStmt {
	if len(entry.Stmts) == 0 {
		return nil
	}
	a, ok := entry.Stmts[0].(*ir.AssignStmt)
	if !ok {
		return nil
	}
	if _, ok := a.Value.(*ir.ExceptionRef); !ok {
		return nil
	}
	return a
}

// finallyBody 识别由编译器复制出来的 finally 代码
//
// 唯一的处理器是 catch-all，入口形如 [v = 异常, F..., throw v]，
// 区域只有一个出口且就是汇合点，汇合点开头的语句与 F 相同。
// 成立时返回 F，汇合点上对应的语句被跳过。
func (r *recoverer) finallyBody(x *graph.TryRegion, groups []*catchGroup, fol *graph.Node) []ir.Stmt {
	if len(groups) != 1 || !groups[0].catchAll || fol == nil {
		return nil
	}
	entry := groups[0].entry
	if entry.Kind != graph.KindThrow || len(entry.Stmts) < 3 {
		return nil
	}
	caught := caughtVar(entry)
	if caught == nil {
		return nil
	}
	th, ok := entry.Last().(*ir.ThrowStmt)
	if !ok {
		return nil
	}
	if l, ok := th.Value.(*ir.Local); !ok || l.Var != caught.Var {
		return nil
	}
	exits := r.regionExits(x)
	if len(exits) != 1 || exits[0] != fol {
		return nil
	}
	body := entry.Stmts[1 : len(entry.Stmts)-1]
	if len(fol.Stmts) < len(body) {
		return nil
	}
	for i, s := range body {
		if s.String() != fol.Stmts[i].String() {
			return nil
		}
	}
	for _, s := range fol.Stmts[:len(body)] {
		r.skip[s.Loc()] = true
	}
	return body
}

func (r *recoverer) newTry(f *seqFrame, n *graph.Node, x *graph.TryRegion) frame {
	groups := groupHandlers(ownHandlers(x), r.policy.Handlers)
	fol := r.tryFollow(f, x, groups)

	node := &ast.TryCatch{Region: x.ID, Body: &ast.Block{}}
	r.tries[x] = &openTry{region: x, node: node, groups: groups}
	fr := &tryFrame{node: node, fol: fol}
	r.register(n, node)
	r.reserve(fol)

	sc := &scope{parent: f.scope, kind: scopeTry, region: x, owner: node}
	fr.seqs = append(fr.seqs, &seqFrame{scope: sc, block: node.Body, start: n, inline: true, stop: fol})

	if fin := r.finallyBody(x, groups, fol); fin != nil {
		entry := groups[0].entry
		node.Finally = &ast.Block{}
		node.Finally.Append(&ast.Statement{Node: entry.ID, Stmts: fin})
		r.register(entry, node)
		r.state[entry] = structured
		return fr
	}

	for _, gr := range groups {
		c := &ast.Catch{Types: gr.types, Node: gr.entry.ID, Body: &ast.Block{}}
		if a := caughtVar(gr.entry); a != nil && r.state[gr.entry] == unvisited {
			c.Var = a.Var
			r.skip[a.Loc()] = true
		}
		node.Catches = append(node.Catches, c)
		fr.seqs = append(fr.seqs, &seqFrame{scope: f.scope, block: c.Body, start: gr.entry, stop: fol})
	}
	return fr
}

// openTry 区域第一次输出的 try 结构
type openTry struct {
	region *graph.TryRegion
	node   *ast.TryCatch
	groups []*catchGroup
}

// reopenTry 再次进入已经输出过的区域
//
// 新的 try 结构沿用第一次的 catch 类型和变量，catch 体跳到已经输出的处理代码；
// 第一次识别为 finally 时，catch-all 体复制处理入口的语句。
func (r *recoverer) reopenTry(f *seqFrame, n *graph.Node, ot *openTry) frame {
	x := ot.region
	fol := r.tryFollow(f, x, nil)

	node := &ast.TryCatch{Region: x.ID, Body: &ast.Block{}}
	fr := &tryFrame{node: node, fol: fol}
	r.register(n, node)
	r.reserve(fol)

	sc := &scope{parent: f.scope, kind: scopeTry, region: x, owner: node}
	fr.seqs = append(fr.seqs, &seqFrame{scope: sc, block: node.Body, start: n, inline: true, stop: fol})

	if ot.node.Finally != nil {
		entry := ot.groups[0].entry
		c := &ast.Catch{Types: []string{throwableType}, Var: caughtVar(entry).Var, Node: entry.ID, Body: &ast.Block{}}
		c.Body.Append(&ast.Statement{Node: -1, Stmts: entry.Stmts[1:]})
		node.Catches = []*ast.Catch{c}
		return fr
	}

	for i, gr := range ot.groups {
		first := ot.node.Catches[i]
		c := &ast.Catch{Types: first.Types, Var: first.Var, Node: first.Node, Body: &ast.Block{}}
		r.gotos++
		c.Body.Append(&ast.Goto{Target: r.nodeLabel(gr.entry)})
		node.Catches = append(node.Catches, c)
	}
	return fr
}

func (fr *tryFrame) result(r *recoverer) []ast.Node {
	r.release(fr.fol)
	return []ast.Node{fr.node}
}

func (fr *tryFrame) next() *graph.Node { return fr.fol }
