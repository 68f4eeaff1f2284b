package structure

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/tangzhangming/dexdec/internal/ast"
	"github.com/tangzhangming/dexdec/internal/graph"
	"github.com/tangzhangming/dexdec/internal/loader"
)

func buildGraph(t *testing.T, method string) *graph.Graph {
	t.Helper()
	src := ".class public LTest;\n.super Ljava/lang/Object;\n" + method
	img, err := loader.Parse(src, "Test.smali")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	cls := img.Class("LTest;")
	if cls == nil || len(cls.Methods) == 0 {
		t.Fatalf("method not loaded")
	}
	g, err := graph.Construct(cls.Methods[0])
	if err != nil {
		t.Fatalf("construct error: %v", err)
	}
	graph.SplitIfNodes(g)
	graph.Simplify(g)
	return g
}

func recoverMethod(t *testing.T, method string, policy Policy) (*graph.Graph, *Result) {
	t.Helper()
	g := buildGraph(t, method)
	res, err := Recover(g, graph.ImmediateDominators(g), policy)
	if err != nil {
		t.Fatalf("recover error: %v", err)
	}
	return g, res
}

// checkCoverage 每个图节点在语法树中恰好出现一次
func checkCoverage(t *testing.T, g *graph.Graph, res *Result) {
	t.Helper()
	seen := make(map[int]int)
	for _, id := range ast.Sources(res.Root) {
		seen[id]++
	}
	for _, n := range g.RPO {
		if seen[n.ID] != 1 {
			t.Errorf("node %s appears %d times", n, seen[n.ID])
		}
		delete(seen, n.ID)
	}
	for id := range seen {
		t.Errorf("unknown node id %d in tree", id)
	}
}

// checkTryContainment 每个在 try 区域中的节点都输出在该区域最内层的 try 结构里
func checkTryContainment(t *testing.T, g *graph.Graph, res *Result) {
	t.Helper()
	byID := make(map[int]*graph.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	check := func(id int, active *graph.TryRegion) {
		n := byID[id]
		if n != nil && n.Try != active {
			t.Errorf("node %s of region %v emitted under region %v", n, regionID(n.Try), regionID(active))
		}
	}
	var visit func(node ast.Node, active *graph.TryRegion)
	visit = func(node ast.Node, active *graph.TryRegion) {
		switch x := node.(type) {
		case *ast.Statement:
			if x.Node >= 0 {
				check(x.Node, active)
			}
		case *ast.If:
			check(x.Node, active)
		case *ast.Switch:
			check(x.Node, active)
		case *ast.TryCatch:
			visit(x.Body, g.Regions[x.Region])
			for _, c := range x.Catches {
				visit(c.Body, active)
			}
			if x.Finally != nil {
				visit(x.Finally, active)
			}
			return
		}
		for _, c := range ast.Children(node) {
			visit(c, active)
		}
	}
	visit(res.Root, nil)
}

func regionID(r *graph.TryRegion) int {
	if r == nil {
		return -1
	}
	return r.ID
}

// checkLabels 每个 goto 都有对应的标签，计数与树中的 goto 一致
func checkLabels(t *testing.T, res *Result) {
	t.Helper()
	gotos := collect[*ast.Goto](res.Root)
	if len(gotos) != res.Gotos {
		t.Errorf("gotos in tree %d, counted %d", len(gotos), res.Gotos)
	}
	labels := make(map[string]bool)
	ast.Walk(res.Root, func(n ast.Node) bool {
		if l := n.LabelName(); l != "" {
			labels[l] = true
		}
		return true
	})
	for _, gt := range gotos {
		if !labels[gt.Target] {
			t.Errorf("goto %s has no matching label", gt.Target)
		}
	}
}

func collect[T ast.Node](root ast.Node) []T {
	var out []T
	ast.Walk(root, func(n ast.Node) bool {
		if x, ok := n.(T); ok {
			out = append(out, x)
		}
		return true
	})
	return out
}

// TestIfElse 测试 if/else 不产生 goto
func TestIfElse(t *testing.T) {
	g, res := recoverMethod(t, `
.method public static pick(I)I
    .registers 2
    if-eqz p0, :other
    const/4 v0, 0x1
    goto :end
    :other
    const/4 v0, 0x2
    :end
    return v0
.end method
`, DefaultPolicy())
	checkCoverage(t, g, res)

	if res.Gotos != 0 {
		t.Errorf("expected no gotos, got %d", res.Gotos)
	}
	ifs := collect[*ast.If](res.Root)
	if len(ifs) != 1 {
		t.Fatalf("expected 1 if, got %d", len(ifs))
	}
	if ifs[0].Else == nil || len(ifs[0].Then.Body) != 1 || len(ifs[0].Else.Body) != 1 {
		t.Errorf("unexpected if shape: %s", ifs[0])
	}
	if _, ok := res.Root.Last().(*ast.Statement); !ok {
		t.Errorf("expected return after the if, got %s", res.Root.Last())
	}
}

// TestWhileLoop 测试先判断循环
func TestWhileLoop(t *testing.T) {
	g, res := recoverMethod(t, `
.method public static sum(I)I
    .registers 3
    const/4 v0, 0x0
    :loop
    if-lez p0, :done
    add-int/2addr v0, p0
    add-int/lit8 p0, p0, -0x1
    goto :loop
    :done
    return v0
.end method
`, DefaultPolicy())
	checkCoverage(t, g, res)

	loops := collect[*ast.Loop](res.Root)
	if len(loops) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(loops))
	}
	l := loops[0]
	if l.Kind != ast.LoopWhile {
		t.Errorf("expected while loop, got %s", l.Kind)
	}
	if l.Cond == nil || len(l.Body.Body) != 1 {
		t.Errorf("unexpected loop: %s", l)
	}
	if res.Gotos != 0 || res.Loops != 1 {
		t.Errorf("gotos=%d loops=%d", res.Gotos, res.Loops)
	}
	if len(collect[*ast.Continue](res.Root)) != 0 {
		t.Error("trailing continue should be dropped")
	}
}

const bothShapes = `
.method public static count(II)I
    .registers 2
    :loop
    if-lez p0, :done
    add-int/lit8 p0, p0, -0x1
    if-gtz p1, :loop
    :done
    return p0
.end method
`

// TestLoopPolicy 测试循环策略决定 while 和 do-while
func TestLoopPolicy(t *testing.T) {
	tests := []struct {
		policy LoopPolicy
		kind   ast.LoopKind
	}{
		{PretestFirst, ast.LoopWhile},
		{PosttestFirst, ast.LoopDoWhile},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			g, res := recoverMethod(t, bothShapes, Policy{Loop: tt.policy})
			checkCoverage(t, g, res)
			loops := collect[*ast.Loop](res.Root)
			if len(loops) != 1 {
				t.Fatalf("expected 1 loop, got %d", len(loops))
			}
			if loops[0].Kind != tt.kind {
				t.Errorf("expected %s, got %s", tt.kind, loops[0].Kind)
			}
			if res.Gotos != 0 {
				t.Errorf("expected no gotos, got %d", res.Gotos)
			}
			if len(collect[*ast.Break](res.Root)) != 1 {
				t.Errorf("expected one break in %s", res.Root)
			}
		})
	}
}

// TestSwitchFallthrough 测试 switch 分支贯穿
func TestSwitchFallthrough(t *testing.T) {
	g, res := recoverMethod(t, `
.method public static s(I)I
    .registers 2
    const/4 v0, 0x0
    packed-switch p0, :table
    goto :end
    :c0
    add-int/lit8 v0, v0, 0x1
    :c1
    add-int/lit8 v0, v0, 0x2
    goto :end
    :end
    return v0
    :table
    .packed-switch 0x0
        :c0
        :c1
    .end packed-switch
.end method
`, DefaultPolicy())
	checkCoverage(t, g, res)

	sws := collect[*ast.Switch](res.Root)
	if len(sws) != 1 {
		t.Fatalf("expected 1 switch, got %d", len(sws))
	}
	cases := sws[0].Cases
	if len(cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(cases))
	}
	if cases[0].Keys[0] != 0 || cases[1].Keys[0] != 1 {
		t.Errorf("unexpected case order: %s", sws[0])
	}
	for _, c := range cases {
		if c.Default {
			t.Error("default goes to the follow and needs no case")
		}
		if _, ok := c.Body.Last().(*ast.Break); ok {
			t.Errorf("unexpected break in %s", c.Body)
		}
	}
	if res.Gotos != 0 {
		t.Errorf("expected no gotos, got %d", res.Gotos)
	}
}

const twoHandlers = `
.method public static t()V
    .registers 2
    :try_start
    invoke-static {}, LTest;->work()V
    :try_end
    .catchall {:try_start .. :try_end} :h_all
    .catch Ljava/io/IOException; {:try_start .. :try_end} :h_io
    :done
    return-void
    :h_all
    move-exception v0
    invoke-static {}, LTest;->log()V
    goto :done
    :h_io
    move-exception v0
    invoke-static {v0}, LTest;->report(Ljava/lang/Throwable;)V
    goto :done
.end method
`

// TestTryCatchHandlerOrder 测试 catch 顺序策略
func TestTryCatchHandlerOrder(t *testing.T) {
	allLine := "    .catchall {:try_start .. :try_end} :h_all\n"
	ioLine := "    .catch Ljava/io/IOException; {:try_start .. :try_end} :h_io\n"
	swapped := strings.Replace(twoHandlers, allLine+ioLine, ioLine+allLine, 1)
	if swapped == twoHandlers {
		t.Fatal("handler lines not found")
	}
	tests := []struct {
		name  string
		src   string
		order HandlerOrder
		first string
	}{
		{"all-first/table", twoHandlers, TableOrder, "Throwable"},
		{"all-first/catch-all-last", twoHandlers, CatchAllLast, "java.io.IOException"},
		{"io-first/table", swapped, TableOrder, "java.io.IOException"},
		{"io-first/catch-all-last", swapped, CatchAllLast, "java.io.IOException"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, res := recoverMethod(t, tt.src, Policy{Handlers: tt.order})
			checkCoverage(t, g, res)
			tries := collect[*ast.TryCatch](res.Root)
			if len(tries) != 1 {
				t.Fatalf("expected 1 try, got %d", len(tries))
			}
			tc := tries[0]
			if len(tc.Catches) != 2 {
				t.Fatalf("expected 2 catches, got %d", len(tc.Catches))
			}
			if got := tc.Catches[0].TypeNames(); got != tt.first {
				t.Errorf("first catch is %s, want %s", got, tt.first)
			}
			for _, c := range tc.Catches {
				if c.Var == nil {
					t.Errorf("catch %s has no variable", c.TypeNames())
				}
			}
			if res.Gotos != 0 {
				t.Errorf("expected no gotos, got %d", res.Gotos)
			}
		})
	}
}

// TestFinally 测试识别复制出来的 finally 代码
func TestFinally(t *testing.T) {
	g, res := recoverMethod(t, `
.method public static f()V
    .registers 2
    :try_start
    invoke-static {}, LTest;->work()V
    :try_end
    .catchall {:try_start .. :try_end} :h
    invoke-static {}, LTest;->cleanup()V
    return-void
    :h
    move-exception v0
    invoke-static {}, LTest;->cleanup()V
    throw v0
.end method
`, DefaultPolicy())
	checkCoverage(t, g, res)

	tries := collect[*ast.TryCatch](res.Root)
	if len(tries) != 1 {
		t.Fatalf("expected 1 try, got %d", len(tries))
	}
	tc := tries[0]
	if tc.Finally == nil || len(tc.Catches) != 0 {
		t.Fatalf("expected finally without catches, got %s", tc)
	}
	after, ok := res.Root.Last().(*ast.Statement)
	if !ok || len(after.Stmts) != 1 {
		t.Fatalf("expected only the return after the try, got %s", res.Root.Last())
	}
	if after.Stmts[0].String() != "return" {
		t.Errorf("unexpected statement %s", after.Stmts[0])
	}
}

// TestIrreducibleUsesGoto 测试不可归约图退化为 goto
func TestIrreducibleUsesGoto(t *testing.T) {
	g, res := recoverMethod(t, `
.method public static irr(II)V
    .registers 2
    if-eqz p0, :b
    :a
    invoke-static {}, LTest;->x()V
    if-eqz p1, :done
    :b
    invoke-static {}, LTest;->y()V
    goto :a
    :done
    return-void
.end method
`, DefaultPolicy())
	checkCoverage(t, g, res)

	if res.Irreducible == 0 {
		t.Error("expected an irreducible edge")
	}
	gotos := collect[*ast.Goto](res.Root)
	if len(gotos) == 0 || len(gotos) != res.Gotos {
		t.Fatalf("gotos in tree %d, counted %d", len(gotos), res.Gotos)
	}
	labels := make(map[string]bool)
	ast.Walk(res.Root, func(n ast.Node) bool {
		if l := n.LabelName(); l != "" {
			labels[l] = true
		}
		return true
	})
	for _, gt := range gotos {
		if !labels[gt.Target] {
			t.Errorf("goto %s has no matching label", gt.Target)
		}
	}
}

// TestDoWhileLatchAlreadyEmitted 测试回边源节点已输出或被外层占用时退化为无限循环
func TestDoWhileLatchAlreadyEmitted(t *testing.T) {
	g := buildGraph(t, bothShapes)
	prepare := func() (*recoverer, *loopShape) {
		r := newRecoverer(g, graph.ImmediateDominators(g), Policy{Loop: PosttestFirst})
		for _, sh := range r.shapes {
			if sh.kind == ast.LoopDoWhile {
				return r, sh
			}
		}
		t.Fatal("no do-while shape")
		return nil, nil
	}

	r, sh := prepare()
	op := sh.cond.Cond().Op
	fr := r.newLoop(&seqFrame{block: &ast.Block{}}, sh).(*loopFrame)
	if fr.node.Kind != ast.LoopDoWhile || fr.node.Node != sh.cond.ID {
		t.Fatalf("fresh latch should give a do-while, got %s", fr.node)
	}
	if sh.cond.Cond().Op != op {
		t.Error("loop condition changed the graph's branch")
	}

	r, sh = prepare()
	r.state[sh.cond] = structured
	fr = r.newLoop(&seqFrame{block: &ast.Block{}}, sh).(*loopFrame)
	if fr.node.Kind != ast.LoopEndless || fr.node.Cond != nil || fr.node.Node != -1 {
		t.Errorf("emitted latch should give while (true), got %s", fr.node)
	}
	if fr.shape.continueTo != sh.loop.Header || fr.shape.cond != nil {
		t.Errorf("unexpected fallback shape %+v", fr.shape)
	}
	if sh.kind != ast.LoopDoWhile {
		t.Error("shared loop shape was modified")
	}

	r, sh = prepare()
	r.reserve(sh.cond)
	fr = r.newLoop(&seqFrame{block: &ast.Block{}}, sh).(*loopFrame)
	if fr.node.Kind != ast.LoopEndless {
		t.Errorf("reserved latch should give while (true), got %s", fr.node.Kind)
	}
}

// TestReopenedTryRegion 测试不连续的 try 区域每段都在 try 结构中
func TestReopenedTryRegion(t *testing.T) {
	g, res := recoverMethod(t, `
.method public static split(I)V
    .registers 2
    :a
    invoke-static {}, LTest;->first()V
    :a_end
    if-eqz p0, :b
    invoke-static {}, LTest;->mid()V
    :b
    invoke-static {}, LTest;->second()V
    :b_end
    return-void
    :h
    move-exception v0
    return-void
    .catch Ljava/lang/Exception; {:a .. :a_end} :h
    .catch Ljava/lang/Exception; {:b .. :b_end} :h
.end method
`, DefaultPolicy())
	checkCoverage(t, g, res)
	checkTryContainment(t, g, res)
	checkLabels(t, res)

	tries := collect[*ast.TryCatch](res.Root)
	if len(tries) != 2 {
		t.Fatalf("expected 2 tries, got %d in %s", len(tries), res.Root)
	}
	first, second := tries[0], tries[1]
	if first.Region != second.Region {
		t.Errorf("regions differ: %d and %d", first.Region, second.Region)
	}
	if len(second.Catches) != 1 || len(first.Catches) != 1 {
		t.Fatalf("unexpected catches: %s / %s", first, second)
	}
	c := second.Catches[0]
	if c.TypeNames() != "Exception" || c.Var != first.Catches[0].Var {
		t.Errorf("reopened catch %s does not match the first", c.TypeNames())
	}
	gt, ok := c.Body.Last().(*ast.Goto)
	if !ok {
		t.Fatalf("reopened catch should jump to the handler, got %s", c.Body)
	}
	if l := first.Catches[0].Body.Body[0].LabelName(); l == "" || l != gt.Target {
		t.Errorf("goto %s does not reach handler label %q", gt.Target, l)
	}
	if res.Gotos != 1 {
		t.Errorf("expected 1 goto, got %d", res.Gotos)
	}
}

// stubConstruct 结果和汇合点固定的结构
type stubConstruct struct {
	childSeq
	out []ast.Node
	fol *graph.Node
}

func (s *stubConstruct) result(r *recoverer) []ast.Node { return s.out }
func (s *stubConstruct) next() *graph.Node              { return s.fol }

// TestNoJumpAfterTerminatingConstruct 测试结构不会落到汇合点时不输出跳转
func TestNoJumpAfterTerminatingConstruct(t *testing.T) {
	g := buildGraph(t, bothShapes)
	ret := &ast.Statement{Node: -1, Stmts: g.Exits()[0].Stmts}
	ends := &ast.If{Then: &ast.Block{Body: []ast.Node{ret}}, Else: &ast.Block{Body: []ast.Node{&ast.Break{}}}}
	open := &ast.If{Then: &ast.Block{Body: []ast.Node{ret}}}

	tests := []struct {
		name  string
		out   ast.Node
		state nodeState
		gotos int
		cur   bool
	}{
		{"jump/emitted", ends, structured, 0, false},
		{"jump/unvisited", ends, unvisited, 0, true},
		{"fallthrough/emitted", open, structured, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRecoverer(g, graph.ImmediateDominators(g), DefaultPolicy())
			fol := g.Exits()[0]
			r.state[fol] = tt.state
			f := &seqFrame{block: &ast.Block{}}
			f.done(r, &stubConstruct{out: []ast.Node{tt.out}, fol: fol})

			if r.gotos != tt.gotos || len(collect[*ast.Goto](f.block)) != tt.gotos {
				t.Errorf("gotos = %d, want %d: %s", r.gotos, tt.gotos, f.block)
			}
			if (f.cur != nil) != tt.cur {
				t.Errorf("continue at follow = %v, want %v", f.cur != nil, tt.cur)
			}
		})
	}
}

// randomMethod 生成带有任意跳转和 try 区域的方法，可能不可归约或有多个入口
func randomMethod(rng *rand.Rand) string {
	n := 2 + rng.Intn(8)
	handlers := rng.Intn(4)
	other := func(i int) int {
		j := rng.Intn(n - 1)
		if j >= i {
			j++
		}
		return j
	}

	var sb strings.Builder
	sb.WriteString(".method public static r(II)V\n    .registers 2\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "    :L%d\n", i)
		calls := 1 + rng.Intn(2)
		for k := 0; k < calls; k++ {
			fmt.Fprintf(&sb, "    invoke-static {}, LTest;->f%d()V\n", i)
		}
		if i == n-1 {
			sb.WriteString("    return-void\n")
			continue
		}
		switch rng.Intn(5) {
		case 0:
			fmt.Fprintf(&sb, "    if-eqz p0, :L%d\n", other(i))
		case 1:
			fmt.Fprintf(&sb, "    if-nez p1, :L%d\n", other(i))
		case 2:
			fmt.Fprintf(&sb, "    goto :L%d\n", other(i))
		case 3:
			sb.WriteString("    return-void\n")
		}
	}
	for h := 0; h < handlers; h++ {
		fmt.Fprintf(&sb, "    :H%d\n    invoke-static {}, LTest;->h%d()V\n", h, h)
		if rng.Intn(2) == 0 {
			fmt.Fprintf(&sb, "    goto :L%d\n", rng.Intn(n))
		} else {
			sb.WriteString("    return-void\n")
		}
	}
	for h := 0; h < handlers; h++ {
		a := rng.Intn(n - 1)
		b := a + 1 + rng.Intn(n-1-a)
		switch rng.Intn(3) {
		case 0:
			fmt.Fprintf(&sb, "    .catchall {:L%d .. :L%d} :H%d\n", a, b, h)
		case 1:
			fmt.Fprintf(&sb, "    .catch Ljava/lang/Exception; {:L%d .. :L%d} :H%d\n", a, b, h)
		default:
			fmt.Fprintf(&sb, "    .catch Ljava/io/IOException; {:L%d .. :L%d} :H%d\n", a, b, h)
		}
	}
	sb.WriteString(".end method\n")
	return sb.String()
}

// TestRandomMethods 测试任意控制流下每个节点恰好输出一次且受保护的代码都在 try 结构中
func TestRandomMethods(t *testing.T) {
	policies := []Policy{DefaultPolicy(), {Loop: PosttestFirst, Handlers: CatchAllLast}}
	for seed := int64(1); seed <= 300; seed++ {
		src := randomMethod(rand.New(rand.NewSource(seed)))
		t.Run(fmt.Sprintf("seed%d", seed), func(t *testing.T) {
			for _, p := range policies {
				g, res := recoverMethod(t, src, p)
				checkCoverage(t, g, res)
				checkTryContainment(t, g, res)
				checkLabels(t, res)
				if t.Failed() {
					t.Fatalf("loop policy %s:\n%s\n%s", p.Loop, src, res.Root)
				}
			}
		})
	}
}

// TestEmptyMethod 测试没有代码的方法
func TestEmptyMethod(t *testing.T) {
	_, res := recoverMethod(t, `
.method public abstract run()V
.end method
`, DefaultPolicy())
	if len(res.Root.Body) != 0 {
		t.Errorf("expected empty tree, got %s", res.Root)
	}
}

// TestParsePolicy 测试策略名称解析
func TestParsePolicy(t *testing.T) {
	if p, err := ParseLoopPolicy("posttest-first"); err != nil || p != PosttestFirst {
		t.Errorf("ParseLoopPolicy: %v %v", p, err)
	}
	if _, err := ParseLoopPolicy("sideways"); err == nil {
		t.Error("expected error for unknown loop policy")
	}
	if o, err := ParseHandlerOrder(""); err != nil || o != TableOrder {
		t.Errorf("ParseHandlerOrder: %v %v", o, err)
	}
	if _, err := ParseHandlerOrder("random"); err == nil {
		t.Error("expected error for unknown handler order")
	}
}
