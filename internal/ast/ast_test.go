package ast

import (
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"

	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/ir"
)

func sampleTree() *Block {
	vars := ir.NewVarTable()
	v := vars.Register(0)
	cond := &ir.Condition{Op: bytecode.CondEq, Left: &ir.Local{Var: v}, Right: ir.IntConst(0)}

	loop := &Loop{Kind: LoopWhile, Node: 1, Header: 1, Cond: cond, Body: &Block{}}
	loop.Body.Append(
		&Statement{Node: 2, Stmts: []ir.Stmt{ir.NewAssign(v, ir.IntConst(1))}},
		&If{Node: 3, Cond: cond, Then: &Block{Body: []Node{&Break{}}}},
	)
	root := &Block{}
	root.Append(
		&Statement{Node: 0},
		loop,
		&Statement{Node: 4, Stmts: []ir.Stmt{&ir.ReturnStmt{}}},
	)
	return root
}

// TestWalkOrder 测试先序遍历顺序
func TestWalkOrder(t *testing.T) {
	var kinds []string
	Walk(sampleTree(), func(n Node) bool {
		switch n.(type) {
		case *Block:
			kinds = append(kinds, "block")
		case *Statement:
			kinds = append(kinds, "stmt")
		case *Loop:
			kinds = append(kinds, "loop")
		case *If:
			kinds = append(kinds, "if")
		case *Break:
			kinds = append(kinds, "break")
		}
		return true
	})
	want := "block stmt loop block stmt if block break stmt"
	if got := strings.Join(kinds, " "); got != want {
		t.Errorf("walk order = %q, want %q", got, want)
	}
}

// TestWalkSkipChildren 测试访问者返回 false 时跳过子节点
func TestWalkSkipChildren(t *testing.T) {
	n := 0
	Walk(sampleTree(), func(x Node) bool {
		n++
		_, isLoop := x.(*Loop)
		return !isLoop
	})
	if n != 4 {
		t.Errorf("expected 4 visited nodes, got %d", n)
	}
}

// TestSources 测试收集图节点编号
func TestSources(t *testing.T) {
	got := Sources(sampleTree())
	want := []int{0, 1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("sources = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sources = %v, want %v", got, want)
			break
		}
	}

	endless := &Loop{Kind: LoopEndless, Node: -1, Body: &Block{}}
	if ids := Sources(endless); len(ids) != 0 {
		t.Errorf("endless loop contributes no node, got %v", ids)
	}
	copied := &Block{Body: []Node{&Statement{Node: -1, Stmts: []ir.Stmt{&ir.ReturnStmt{}}}}}
	if ids := Sources(copied); len(ids) != 0 {
		t.Errorf("copied statement contributes no node, got %v", ids)
	}
}

// TestIsJump 测试无条件转移判断
func TestIsJump(t *testing.T) {
	root := sampleTree()
	if !IsJump(root.Last()) {
		t.Error("return statement should be a jump")
	}
	if IsJump(root.Body[0]) {
		t.Error("empty statement is not a jump")
	}
	if !IsJump(&Goto{Target: "label1"}) {
		t.Error("goto is a jump")
	}
	half := &If{Then: &Block{Body: []Node{&Break{}}}, Else: &Block{}}
	if IsJump(half) {
		t.Error("if with a fallthrough branch is not a jump")
	}
	if Count(root, IsJump) != 4 {
		t.Errorf("expected 4 jumps, got %d", Count(root, IsJump))
	}
}

// TestTryCatchJump 测试 try 结构的所有出口都跳转时才算跳转
func TestTryCatchJump(t *testing.T) {
	ret := func() *Block {
		return &Block{Body: []Node{&Statement{Stmts: []ir.Stmt{&ir.ReturnStmt{}}}}}
	}
	tc := &TryCatch{Body: ret(), Catches: []*Catch{{Types: []string{"java.lang.Exception"}, Body: &Block{Body: []Node{&Goto{Target: "label3"}}}}}}
	if !IsJump(tc) {
		t.Error("try whose body and catches all jump is a jump")
	}
	tc.Catches = append(tc.Catches, &Catch{Types: []string{"java.lang.Throwable"}, Body: &Block{}})
	if IsJump(tc) {
		t.Error("try with a catch that falls through is not a jump")
	}
	tc.Finally = ret()
	if !IsJump(tc) {
		t.Error("try whose finally jumps is a jump")
	}
	if IsJump(&TryCatch{Body: &Block{}}) {
		t.Error("empty try is not a jump")
	}
}

// TestLabels 测试标签输出
func TestLabels(t *testing.T) {
	b := &Break{Target: "loop1"}
	if b.String() != "break loop1" {
		t.Errorf("unexpected %q", b.String())
	}
	l := &Loop{Kind: LoopEndless, Node: -1, Body: &Block{}}
	l.SetLabel("loop1")
	if !strings.HasPrefix(l.String(), "loop1: while (true)") {
		t.Errorf("unexpected %q", l.String())
	}
}

// TestDump 测试 JSON 输出
func TestDump(t *testing.T) {
	data, err := Dump(sampleTree())
	if err != nil {
		t.Fatalf("dump error: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if out["kind"] != "block" {
		t.Errorf("root kind = %v", out["kind"])
	}
	body, ok := out["body"].([]interface{})
	if !ok || len(body) != 3 {
		t.Fatalf("unexpected body %v", out["body"])
	}
	loop := body[1].(map[string]interface{})
	if loop["kind"] != "loop" || loop["loop"] != "while" {
		t.Errorf("unexpected loop %v", loop)
	}

	tc := &TryCatch{Body: &Block{}, Catches: []*Catch{{Types: []string{"Ljava/io/IOException;"}, Body: &Block{}}}}
	data, err = DumpIndent(tc, "  ")
	if err != nil {
		t.Fatalf("dump error: %v", err)
	}
	if !strings.Contains(string(data), "java.io.IOException") {
		t.Errorf("catch type missing from %s", data)
	}
}
