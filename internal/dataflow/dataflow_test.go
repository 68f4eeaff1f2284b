package dataflow

import (
	"errors"
	"testing"

	"github.com/tangzhangming/dexdec/internal/graph"
	"github.com/tangzhangming/dexdec/internal/ir"
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
	return g
}

func mustChains(t *testing.T, g *graph.Graph) *Chains {
	t.Helper()
	c, err := BuildChains(g)
	if err != nil {
		t.Fatalf("chains error: %v", err)
	}
	return c
}

func varNamed(g *graph.Graph, name string) *ir.Variable {
	for _, v := range g.Vars.All() {
		if v.String() == name {
			return v
		}
	}
	return nil
}

// TestReachingDefinitionsInLoop 测试循环中的到达定义
func TestReachingDefinitionsInLoop(t *testing.T) {
	g := buildGraph(t, `
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
`)
	c := mustChains(t, g)

	v0 := varNamed(g, "v0")
	if v0 == nil {
		t.Fatal("v0 not found")
	}
	var ret ir.Stmt
	for _, s := range graph.Stmts(g) {
		if _, ok := s.(*ir.ReturnStmt); ok {
			ret = s
		}
	}
	if ret == nil {
		t.Fatal("return statement not found")
	}
	defs := c.UseDef[Site{v0, ret.Loc()}]
	if len(defs) != 2 {
		t.Errorf("expected 2 reaching definitions at return, got %v", defs)
	}

	// 每个使用都能在对应定义的使用列表里找到
	for site, defs := range c.UseDef {
		for _, d := range defs {
			found := false
			for _, u := range c.DefUse[Site{site.Var, d}] {
				if u == site.Loc {
					found = true
				}
			}
			if !found {
				t.Errorf("use %s@%d missing from def %d", site.Var, site.Loc, d)
			}
		}
	}
}

// TestUseWithoutDefinition 测试没有到达定义的使用
func TestUseWithoutDefinition(t *testing.T) {
	g := buildGraph(t, `
.method public static bad()I
    .registers 1
    return v0
.end method
`)
	_, err := BuildChains(g)
	var inv *InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InvariantError, got %v", err)
	}
}

// TestSplitVariables 测试同一寄存器的两段生命期被拆开
func TestSplitVariables(t *testing.T) {
	g := buildGraph(t, `
.method public static g()V
    .registers 2
    const/4 v0, 0x1
    invoke-static {v0}, LTest;->use(I)V
    const-string v0, "x"
    invoke-static {v0}, LTest;->use(Ljava/lang/String;)V
    return-void
.end method
`)
	c, err := SplitVariables(g, mustChains(t, g))
	if err != nil {
		t.Fatalf("split error: %v", err)
	}
	InferTypes(c)

	var args []*ir.Variable
	for _, s := range graph.Stmts(g) {
		is, ok := s.(*ir.InvokeStmt)
		if !ok {
			continue
		}
		call := is.Call.(*ir.InvokeExpr)
		args = append(args, call.Args[0].(*ir.Local).Var)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(args))
	}
	if args[0] == args[1] {
		t.Errorf("expected distinct variables, both are %s", args[0])
	}
	if args[1].Type != "Ljava/lang/String;" {
		t.Errorf("expected String type, got %q", args[1].Type)
	}
	if args[0].Type != "I" {
		t.Errorf("expected int type, got %q", args[0].Type)
	}
}

// TestSplitKeepsParameter 测试参数所在的网保留参数变量
func TestSplitKeepsParameter(t *testing.T) {
	g := buildGraph(t, `
.method public static p(I)I
    .registers 1
    invoke-static {p0}, LTest;->use(I)V
    const/4 p0, 0x3
    return p0
.end method
`)
	c, err := SplitVariables(g, mustChains(t, g))
	if err != nil {
		t.Fatalf("split error: %v", err)
	}
	var call *ir.InvokeExpr
	var ret *ir.ReturnStmt
	for _, s := range graph.Stmts(g) {
		switch st := s.(type) {
		case *ir.InvokeStmt:
			call = st.Call.(*ir.InvokeExpr)
		case *ir.ReturnStmt:
			ret = st
		}
	}
	param := call.Args[0].(*ir.Local).Var
	if !param.IsParam() {
		t.Errorf("expected call argument to stay the parameter, got %s", param)
	}
	reused := ret.Value.(*ir.Local).Var
	if reused.IsParam() || reused == param {
		t.Errorf("expected a fresh variable for the reused register, got %s", reused)
	}
	if len(c.Defs(reused)) != 1 {
		t.Errorf("expected one definition of %s", reused)
	}
}

// TestEliminateDeadCode 测试删除无用定义
func TestEliminateDeadCode(t *testing.T) {
	g := buildGraph(t, `
.method public static d()V
    .registers 2
    const/4 v0, 0x5
    add-int/lit8 v1, v0, 0x1
    invoke-static {}, LTest;->get()I
    move-result v0
    return-void
.end method
`)
	c := mustChains(t, g)
	removed := EliminateDeadCode(g, c)
	if removed != 2 {
		t.Errorf("expected 2 removed statements, got %d", removed)
	}
	stmts := graph.Stmts(g)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements left, got %d: %v", len(stmts), stmts)
	}
	if _, ok := stmts[0].(*ir.InvokeStmt); !ok {
		t.Errorf("expected unused call result to become a call statement, got %T", stmts[0])
	}

	// 再次执行没有变化
	if n := EliminateDeadCode(g, c); n != 0 {
		t.Errorf("expected idempotent elimination, removed %d", n)
	}
}

// TestDeadCodeKeepsThrowingInTry 测试受保护区域内可能抛出的定义保留
func TestDeadCodeKeepsThrowingInTry(t *testing.T) {
	g := buildGraph(t, `
.method public static z(II)V
    .registers 3
    :try_start
    div-int v0, p0, p1
    :try_end
    .catch Ljava/lang/ArithmeticException; {:try_start .. :try_end} :handler
    return-void
    :handler
    return-void
.end method
`)
	c := mustChains(t, g)
	if n := EliminateDeadCode(g, c); n != 0 {
		t.Errorf("expected division to be kept, removed %d", n)
	}
}

// TestPropagateConstants 测试常量传播与折叠
func TestPropagateConstants(t *testing.T) {
	g := buildGraph(t, `
.method public static f()I
    .registers 2
    const/4 v0, 0x1
    add-int/lit8 v1, v0, 0x1
    return v1
.end method
`)
	c := mustChains(t, g)
	EliminateDeadCode(g, c)
	PropagateRegisters(g, c, DefaultOptions())

	stmts := graph.Stmts(g)
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d: %v", len(stmts), stmts)
	}
	ret, ok := stmts[0].(*ir.ReturnStmt)
	if !ok {
		t.Fatalf("expected return, got %T", stmts[0])
	}
	k, ok := ret.Value.(*ir.Constant)
	if !ok || k.Int != 2 {
		t.Errorf("expected return 2, got %s", ret.Value)
	}

	// 不动点：再次传播没有变化
	if n := PropagateRegisters(g, c, DefaultOptions()); n != 0 {
		t.Errorf("expected no further propagation, got %d", n)
	}
}

// TestPropagateBlockedByStore 测试读内存的表达式不越过写操作
func TestPropagateBlockedByStore(t *testing.T) {
	g := buildGraph(t, `
.method public r()I
    .registers 3
    iget v0, p0, LTest;->x:I
    const/4 v1, 0x2
    iput v1, p0, LTest;->x:I
    return v0
.end method
`)
	c := mustChains(t, g)
	PropagateRegisters(g, c, DefaultOptions())

	stmts := graph.Stmts(g)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %v", len(stmts), stmts)
	}
	a, ok := stmts[0].(*ir.AssignStmt)
	if !ok {
		t.Fatalf("expected field read to stay, got %T", stmts[0])
	}
	if _, ok := a.Value.(*ir.FieldExpr); !ok {
		t.Errorf("expected field expression, got %s", a.Value)
	}
	store := stmts[1].(*ir.StoreFieldStmt)
	if k, ok := store.Value.(*ir.Constant); !ok || k.Int != 2 {
		t.Errorf("expected constant store, got %s", store.Value)
	}
}

// TestPropagateCallIntoNextStatement 测试调用结果移入紧随的语句
func TestPropagateCallIntoNextStatement(t *testing.T) {
	g := buildGraph(t, `
.method public static c()I
    .registers 1
    invoke-static {}, LTest;->get()I
    move-result v0
    return v0
.end method
`)
	c := mustChains(t, g)
	PropagateRegisters(g, c, DefaultOptions())
	stmts := graph.Stmts(g)
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}
	ret := stmts[0].(*ir.ReturnStmt)
	if _, ok := ret.Value.(*ir.InvokeExpr); !ok {
		t.Errorf("expected call in return, got %s", ret.Value)
	}
}

// TestPlaceDeclarationAtDominator 测试在公共支配节点声明
func TestPlaceDeclarationAtDominator(t *testing.T) {
	g := buildGraph(t, `
.method public static h(I)I
    .registers 2
    if-eqz p0, :else
    const/4 v0, 0x1
    goto :end
    :else
    const/4 v0, 0x2
    :end
    invoke-static {v0}, LTest;->use(I)V
    return v0
.end method
`)
	c := mustChains(t, g)
	doms := graph.ImmediateDominators(g)
	loops := graph.FindLoops(g, doms)
	decls := PlaceDeclarations(g, c, doms, loops)

	v0 := varNamed(g, "v0")
	if decls[v0] != g.Entry {
		t.Fatalf("expected declaration at entry, got %v", decls[v0])
	}
	d, ok := g.Entry.Stmts[0].(*ir.DeclStmt)
	if !ok || d.Var != v0 {
		t.Errorf("expected declaration statement first, got %v", g.Entry.Stmts[0])
	}
	for n := range decls {
		if !doms.Dominates(decls[n], c.Node(c.Defs(n)[0])) {
			t.Errorf("declaration of %s does not dominate its definition", n)
		}
	}
}

// TestPlaceDeclarationHoistsOutOfLoop 测试声明被提升到循环之外
func TestPlaceDeclarationHoistsOutOfLoop(t *testing.T) {
	g := buildGraph(t, `
.method public static k(I)I
    .registers 2
    :loop
    add-int/lit8 p0, p0, -0x1
    const/4 v0, 0x7
    if-gtz p0, :loop
    return v0
.end method
`)
	c := mustChains(t, g)
	doms := graph.ImmediateDominators(g)
	loops := graph.FindLoops(g, doms)
	decls := PlaceDeclarations(g, c, doms, loops)

	v0 := varNamed(g, "v0")
	at := decls[v0]
	if at == nil {
		t.Fatal("no declaration for v0")
	}
	for _, l := range loops.Loops {
		if l.Contains(at) {
			t.Errorf("declaration placed inside loop at %s", at)
		}
	}
}

// TestPlaceDeclarationOnAssignment 测试赋值兼作声明
func TestPlaceDeclarationOnAssignment(t *testing.T) {
	g := buildGraph(t, `
.method public static a()I
    .registers 1
    const/4 v0, 0x4
    return v0
.end method
`)
	c := mustChains(t, g)
	doms := graph.ImmediateDominators(g)
	PlaceDeclarations(g, c, doms, graph.FindLoops(g, doms))
	a, ok := g.Entry.Stmts[0].(*ir.AssignStmt)
	if !ok || !a.Declare {
		t.Errorf("expected assignment to declare the variable, got %v", g.Entry.Stmts[0])
	}
}
