package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const calc = `
.class public LCalc;
.super Ljava/lang/Object;

.method public static two()I
    .registers 2
    const/4 v0, 0x1
    add-int/lit8 v1, v0, 0x1
    return v1
.end method

.method public static broken()I
    .registers 1
    const/4 v3, 0x1
    return v3
.end method
`

func writeSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Calc.smali"), []byte(calc), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"-lang", "en"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// TestDecompileAll 测试批量输出，失败的方法报告错误但其他方法照常输出
func TestDecompileAll(t *testing.T) {
	dir := writeSource(t)
	code, out, errOut := runCLI(t, "-all", dir)

	if code != 1 {
		t.Errorf("expected exit code 1 for a failed method, got %d", code)
	}
	if !strings.Contains(out, "return 2;") {
		t.Errorf("expected decompiled method, got:\n%s", out)
	}
	if !strings.Contains(errOut, "D0001") || !strings.Contains(errOut, "1 error(s)") {
		t.Errorf("expected diagnostic and summary, got:\n%s", errOut)
	}
}

// TestDecompileMethod 测试只输出一个方法
func TestDecompileMethod(t *testing.T) {
	dir := writeSource(t)
	code, out, _ := runCLI(t, "-class", "Calc", "-method", "two", dir)

	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "return 2;") || strings.Contains(out, "broken") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

// TestDisassemble 测试 -bytecode 在源码前输出反汇编
func TestDisassemble(t *testing.T) {
	dir := writeSource(t)
	_, out, _ := runCLI(t, "-class", "Calc", "-method", "two", "-bytecode", dir)

	asm := strings.Index(out, "# LCalc;->two()I")
	src := strings.Index(out, "return 2;")
	if asm < 0 || src < asm || !strings.Contains(out, "add-int/lit8") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

// TestListing 测试没有选择方法时列出类和方法
func TestListing(t *testing.T) {
	dir := writeSource(t)

	_, out, _ := runCLI(t, dir)
	if !strings.Contains(out, "Classes:") || !strings.Contains(out, "LCalc;") {
		t.Errorf("expected class list, got:\n%s", out)
	}
	_, out, _ = runCLI(t, "-class", "LCalc;", dir)
	if !strings.Contains(out, "[1] broken()I") {
		t.Errorf("expected method list, got:\n%s", out)
	}
}

// TestNotFound 测试找不到类或方法
func TestNotFound(t *testing.T) {
	dir := writeSource(t)

	code, _, errOut := runCLI(t, "-class", "Nope", "-all", dir)
	if code != 1 || !strings.Contains(errOut, "class not found: Nope") {
		t.Errorf("code %d, stderr:\n%s", code, errOut)
	}
	code, _, errOut = runCLI(t, "-class", "Calc", "-method", "three", dir)
	if code != 1 || !strings.Contains(errOut, "method not found") {
		t.Errorf("code %d, stderr:\n%s", code, errOut)
	}
}

// TestJSONFormat 测试 JSON 输出和统计
func TestJSONFormat(t *testing.T) {
	dir := writeSource(t)
	_, out, errOut := runCLI(t, "-format", "json", "-all", "-stats", dir)

	if !strings.Contains(out, `"class": "LCalc;"`) {
		t.Errorf("expected json document, got:\n%s", out)
	}
	if !strings.Contains(errOut, `"methods":2`) {
		t.Errorf("expected json stats, got:\n%s", errOut)
	}

	code, _, _ := runCLI(t, "-format", "xml", dir)
	if code != 2 {
		t.Errorf("expected exit code 2 for an invalid format, got %d", code)
	}
}

// TestCacheDir 测试配置中的缓存目录
func TestCacheDir(t *testing.T) {
	dir := writeSource(t)
	cfgPath := filepath.Join(t.TempDir(), "dexdec.toml")
	cacheDir := filepath.Join(t.TempDir(), "cache")
	content := "[cache]\ndir = \"" + filepath.ToSlash(cacheDir) + "\"\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	runCLI(t, "-config", cfgPath, "-all", dir)
	_, out, errOut := runCLI(t, "-config", cfgPath, "-all", "-stats", dir)
	if !strings.Contains(out, "return 2;") {
		t.Errorf("expected cached output, got:\n%s", out)
	}
	if !strings.Contains(errOut, "1 cache hits") {
		t.Errorf("expected a cache hit, got:\n%s", errOut)
	}
}
