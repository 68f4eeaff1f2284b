package errors

import (
	"bytes"
	goerrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/tangzhangming/dexdec/internal/i18n"
)

// TestCodeTable 测试错误码级别
func TestCodeTable(t *testing.T) {
	for _, code := range []string{D0001, D0002, D0003} {
		if !IsError(code) || IsWarning(code) {
			t.Errorf("%s should be an error", code)
		}
	}
	for _, code := range []string{W0001, W0002, W0003} {
		if !IsWarning(code) || IsError(code) {
			t.Errorf("%s should be a warning", code)
		}
	}
	for code, info := range codeTable {
		if !i18n.Has(info.MessageID) {
			t.Errorf("%s: missing message %s", code, info.MessageID)
		}
		if info.HintID != "" && !i18n.Has(info.HintID) {
			t.Errorf("%s: missing hint %s", code, info.HintID)
		}
	}
}

// TestMethodErrorUnwrap 测试方法错误保留原始错误
func TestMethodErrorUnwrap(t *testing.T) {
	cause := goerrors.New("bad register")
	err := &MethodError{Method: "LFoo;->bar()V", Code: D0001, Err: cause}
	if !goerrors.Is(err, cause) {
		t.Error("MethodError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "D0001") {
		t.Errorf("error text lacks code: %s", err.Error())
	}

	d := err.Diagnostic("LFoo;")
	if d.Level != LevelError || d.Class != "LFoo;" || len(d.Hints) == 0 {
		t.Errorf("unexpected diagnostic %+v", d)
	}
}

// TestFormatDiagnostic 测试不带颜色的诊断输出
func TestFormatDiagnostic(t *testing.T) {
	f := &Formatter{Colors: false, ShowHints: true}
	d := NewDiagnostic(W0001, "LFoo;", "LFoo;->bar()V", 2)
	out := f.FormatDiagnostic(d)

	if !strings.HasPrefix(out, "warning[W0001]: 2 jump(s)") {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "--> LFoo;->bar()V") {
		t.Errorf("missing location: %q", out)
	}
	if !strings.Contains(out, " = help:") {
		t.Errorf("missing hint: %q", out)
	}
}

// TestFormatDiagnosticColors 测试启用颜色时各部分的着色
func TestFormatDiagnosticColors(t *testing.T) {
	old := ColorsEnabled()
	defer SetColorsEnabled(old)
	SetColorsEnabled(true)

	f := &Formatter{Colors: true, ShowHints: true}
	d := NewDiagnostic(W0001, "LFoo;", "LFoo;->bar()V", 2)
	out := f.FormatDiagnostic(d)

	for _, want := range []string{BoldWhite(d.Message), Cyan("-->"), Cyan("LFoo;->bar()V"), Cyan(" = help:")} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if Strip(out) == out {
		t.Error("no color codes in output")
	}
	if got := f.FormatSummary(1, 0); got != Red(Strip(got)) {
		t.Errorf("error summary not red: %q", got)
	}
	if got := f.FormatSummary(0, 1); got != Yellow(Strip(got)) {
		t.Errorf("warning summary not yellow: %q", got)
	}
}

// TestReporter 测试并发报告和计数
func TestReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter()
	r.SetFormatter(&Formatter{})
	r.SetOutput(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Warn(W0001, "LFoo;", "LFoo;->bar()V", nil, 1)
			r.ReportMethodError("LFoo;", &MethodError{Method: "LFoo;->baz()V", Code: D0003, Err: goerrors.New("x")})
		}()
	}
	wg.Wait()

	if r.ErrorCount() != 8 || r.WarningCount() != 8 {
		t.Fatalf("got %d errors %d warnings", r.ErrorCount(), r.WarningCount())
	}
	if strings.Count(buf.String(), "error[D0003]") != 8 {
		t.Errorf("expected 8 printed errors:\n%s", buf.String())
	}
	if got := r.Summary(); got != "8 error(s), 8 warning(s)" {
		t.Errorf("summary %q", got)
	}

	r.Clear()
	if r.HasErrors() {
		t.Error("Clear did not reset errors")
	}
}

// TestQuietReporter 测试静默模式
func TestQuietReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter()
	r.SetOutput(&buf)
	r.SetQuiet(true)
	r.Warn(W0003, "LFoo;", "", nil, 4)
	if buf.Len() != 0 {
		t.Errorf("quiet reporter wrote %q", buf.String())
	}
	_, warnings := r.Diagnostics()
	if len(warnings) != 1 || warnings[0].Message != "try ranges overlap at 0004" {
		t.Errorf("unexpected warnings %+v", warnings)
	}
}

// TestSuggestions 测试相似名称建议
func TestSuggestions(t *testing.T) {
	if got := FindSimilar("getNmae", []string{"getName", "setName", "toString"}, 2); got != "getName" {
		t.Errorf("FindSimilar = %q", got)
	}
	if got := FindSimilar("zzz", []string{"getName"}, 2); got != "" {
		t.Errorf("FindSimilar = %q, want empty", got)
	}

	hints := GetSuggestions(W0002, map[string]interface{}{
		"name":       "lenght",
		"candidates": []string{"length", "size"},
	})
	if len(hints) != 1 || !strings.Contains(hints[0], "length") {
		t.Errorf("unexpected hints %v", hints)
	}
	if hints := GetSuggestions(W0001, map[string]interface{}{"irreducible": 0}); len(hints) != 1 {
		t.Errorf("expected loop policy hint, got %v", hints)
	}
	if hints := GetSuggestions(W0001, map[string]interface{}{"irreducible": 3}); hints != nil {
		t.Errorf("irreducible graph should get no extra hint, got %v", hints)
	}
}

// TestHighlight 测试语法高亮
func TestHighlight(t *testing.T) {
	old := ColorsEnabled()
	defer SetColorsEnabled(old)

	SetColorsEnabled(true)
	h := NewSyntaxHighlighter()
	line := `while (i < 10) { s = "x"; } // done`
	out := h.HighlightLine(line)
	if out == line {
		t.Fatal("highlighting changed nothing")
	}
	if Strip(out) != line {
		t.Errorf("Strip(highlight) = %q", Strip(out))
	}
	if !strings.Contains(out, Colorize("while", ColorYellow)) {
		t.Error("keyword not highlighted")
	}

	SetColorsEnabled(false)
	if got := h.Highlight(line); got != line {
		t.Errorf("disabled highlighter changed line: %q", got)
	}
}
