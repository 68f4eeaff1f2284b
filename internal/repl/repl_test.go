package repl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/tangzhangming/dexdec/internal/decompiler"
	"github.com/tangzhangming/dexdec/internal/errors"
	"github.com/tangzhangming/dexdec/internal/loader"
)

const source = `
.class public LCalc;
.super Ljava/lang/Object;

.method public static two()I
    .registers 2
    const/4 v0, 0x1
    add-int/lit8 v1, v0, 0x1
    return v1
.end method

.method public static three()I
    .registers 1
    const/4 v0, 0x3
    return v0
.end method

.class public LCalcHelper;
.super Ljava/lang/Object;
`

func session(t *testing.T, input string) (string, *decompiler.Machine) {
	t.Helper()
	img, err := loader.Parse(source, "Calc.smali")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rep := errors.NewReporter()
	rep.SetQuiet(true)
	m := decompiler.NewMachine(decompiler.NewContext(nil, decompiler.WithReporter(rep)), img)

	var out bytes.Buffer
	r := New(m, Config{In: strings.NewReader(input), Out: &out})
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String(), m
}

// TestPickMethod 测试选择类和方法后只处理选中的方法
func TestPickMethod(t *testing.T) {
	out, m := session(t, "LCalc;\ntwo\n\n\n")

	if !strings.Contains(out, "return 2;") {
		t.Errorf("expected method source, got:\n%s", out)
	}
	cls := m.Class("LCalc;")
	if cls.State(0) != decompiler.Processed || cls.State(1) != decompiler.Unprocessed {
		t.Error("only the selected method should be processed")
	}
}

// TestPickAll 测试 * 输出整个类
func TestPickAll(t *testing.T) {
	out, _ := session(t, "LCalc;\n*\n")

	if !strings.Contains(out, "return 2;") || !strings.Contains(out, "return 3;") {
		t.Errorf("expected all methods, got:\n%s", out)
	}
}

// TestNotFound 测试找不到时继续提示
func TestNotFound(t *testing.T) {
	out, _ := session(t, "Nope\nLCalc;\n7\n\n")

	if !strings.Contains(out, "class not found: Nope") {
		t.Errorf("expected class not found message, got:\n%s", out)
	}
	if !strings.Contains(out, "method not found: 7") {
		t.Errorf("expected method not found message, got:\n%s", out)
	}
}

// TestAmbiguousClass 测试多个候选时列出候选
func TestAmbiguousClass(t *testing.T) {
	out, _ := session(t, "Calc\n")

	if !strings.Contains(out, "invalid selection: Calc") || !strings.Contains(out, "LCalcHelper;") {
		t.Errorf("expected candidate list, got:\n%s", out)
	}
}
