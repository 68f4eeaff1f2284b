package bytecode

import (
	"errors"
	"strings"
	"testing"
)

func at(t *testing.T, offset int, mnemonic string, regs ...int) *Instruction {
	t.Helper()
	inst, ok := LookupMnemonic(mnemonic)
	if !ok {
		t.Fatalf("unknown mnemonic %s", mnemonic)
	}
	inst.Offset = offset
	inst.Regs = regs
	return inst
}

// TestJavaType 测试描述符到源码类型名的转换
func TestJavaType(t *testing.T) {
	tests := []struct {
		desc string
		want string
	}{
		{"I", "int"},
		{"Z", "boolean"},
		{"[[J", "long[][]"},
		{"Ljava/lang/String;", "String"},
		{"[Ljava/lang/Object;", "Object[]"},
		{"Ljava/lang/reflect/Method;", "java.lang.reflect.Method"},
		{"Lcom/a/Outer$Inner;", "com.a.Outer$Inner"},
		{"", "?"},
	}
	for _, tt := range tests {
		if got := JavaType(tt.desc); got != tt.want {
			t.Errorf("JavaType(%q) = %q, want %q", tt.desc, got, tt.want)
		}
	}
	if SimpleName("Lcom/a/Outer$Inner;") != "Inner" || PackageName("Lcom/a/B;") != "com.a" {
		t.Error("unexpected simple or package name")
	}
}

// TestParseMethodDescriptor 测试方法描述符解析
func TestParseMethodDescriptor(t *testing.T) {
	params, ret, ok := ParseMethodDescriptor("(ILjava/lang/String;[J)V")
	if !ok || ret != "V" {
		t.Fatalf("failed to parse descriptor: %v %q", ok, ret)
	}
	if strings.Join(params, " ") != "I Ljava/lang/String; [J" {
		t.Errorf("unexpected params %v", params)
	}

	for _, bad := range []string{"I", "()", "(V)I", "(Ljava/lang/String)V", "([)V"} {
		if _, _, ok := ParseMethodDescriptor(bad); ok {
			t.Errorf("expected %q to be rejected", bad)
		}
	}

	m := &Method{Name: "f", Descriptor: "(JI)V"}
	if m.Ins() != 4 {
		t.Errorf("expected 4 argument registers including this, got %d", m.Ins())
	}
}

// TestNormalizeTries 测试重叠 catch 指令拆分为互不重叠的区间
func TestNormalizeTries(t *testing.T) {
	tries := NormalizeTries([]CatchDirective{
		{Start: 0, End: 6, Type: "Ljava/io/IOException;", Handler: 10},
		{Start: 3, End: 9, Type: "", Handler: 20},
	})
	if len(tries) != 3 {
		t.Fatalf("expected 3 ranges, got %d", len(tries))
	}
	mid := tries[1]
	if mid.Start != 3 || mid.End != 6 || len(mid.Handlers) != 2 {
		t.Fatalf("unexpected middle range %+v", mid)
	}
	if mid.Handlers[0].Target != 10 || !mid.Handlers[1].IsCatchAll() {
		t.Errorf("handlers must keep declaration order, got %+v", mid.Handlers)
	}
	if !mid.Covers(5) || mid.Covers(6) {
		t.Error("range end must be exclusive")
	}
}

// TestNormalizeTriesMerge 测试相同处理器的相邻区间合并，重复类型只保留第一个
func TestNormalizeTriesMerge(t *testing.T) {
	tries := NormalizeTries([]CatchDirective{
		{Start: 0, End: 4, Type: "LA;", Handler: 20},
		{Start: 4, End: 8, Type: "LA;", Handler: 20},
		{Start: 0, End: 8, Type: "LA;", Handler: 30},
	})
	if len(tries) != 1 {
		t.Fatalf("expected a single merged range, got %d", len(tries))
	}
	if tries[0].Start != 0 || tries[0].End != 8 || len(tries[0].Handlers) != 1 || tries[0].Handlers[0].Target != 20 {
		t.Errorf("unexpected range %+v", tries[0])
	}
	if NormalizeTries(nil) != nil {
		t.Error("expected no ranges")
	}
}

// TestPartialOverlaps 测试只报告既不相离也不嵌套的区间
func TestPartialOverlaps(t *testing.T) {
	overlapping := []CatchDirective{{Start: 0, End: 6}, {Start: 3, End: 9}}
	if got := PartialOverlaps(overlapping); len(got) != 1 || got[0] != 3 {
		t.Errorf("expected overlap at 3, got %v", got)
	}
	nested := []CatchDirective{{Start: 0, End: 10}, {Start: 2, End: 5}, {Start: 10, End: 12}}
	if got := PartialOverlaps(nested); len(got) != 0 {
		t.Errorf("expected no overlaps, got %v", got)
	}
}

// TestSplitBlocks 测试基本块划分
func TestSplitBlocks(t *testing.T) {
	branch := at(t, 1, "if-eqz", 0)
	branch.Target = 5
	m := &Method{
		Class: "LT;", Name: "f", Descriptor: "()I", Registers: 1,
		Code: []*Instruction{
			at(t, 0, "const/4", 0),
			branch,
			at(t, 3, "const/4", 0),
			at(t, 4, "return", 0),
			at(t, 5, "return", 0),
		},
	}
	blocks, byOffset := SplitBlocks(m)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %v", blocks)
	}
	entry := byOffset[0]
	if entry.End != 3 || entry.Fall != 3 || len(entry.Targets) != 1 || entry.Targets[0] != 5 {
		t.Errorf("unexpected entry block %+v", entry)
	}
	if b := byOffset[3]; b == nil || b.Fall != -1 || b.Last().Op != OpReturn {
		t.Errorf("unexpected middle block %+v", b)
	}
}

// TestSplitBlocksMoveResult 测试 move-result 不会成为块首
func TestSplitBlocksMoveResult(t *testing.T) {
	call := at(t, 0, "invoke-static")
	call.Method = &MethodRef{Class: "LT;", Name: "g", Return: "I"}
	m := &Method{
		Class: "LT;", Name: "f", Descriptor: "()I", Access: AccStatic, Registers: 1,
		Code: []*Instruction{
			call,
			at(t, 3, "move-result", 0),
			at(t, 4, "return", 0),
			at(t, 5, "return", 0),
		},
		Tries: []*TryRange{{Start: 0, End: 3, Handlers: []Handler{{Target: 5}}}},
	}
	blocks, _ := SplitBlocks(m)
	if len(blocks) != 2 || len(blocks[0].Insts) != 3 {
		t.Fatalf("expected the call and its result in one block, got %v", blocks)
	}
}

// TestVerify 测试字节码验证
func TestVerify(t *testing.T) {
	valid := &Method{
		Class: "LT;", Name: "f", Descriptor: "()I", Registers: 2,
		Code: []*Instruction{at(t, 0, "const/4", 1), at(t, 1, "return", 1)},
	}
	if err := Verify(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		code []*Instruction
		want string
	}{
		{"register", []*Instruction{at(t, 0, "const/4", 3), at(t, 1, "return", 3)}, "register v3 out of range"},
		{"move-result", []*Instruction{at(t, 0, "move-result", 0), at(t, 1, "return", 0)}, "does not follow an invoke"},
		{"fall-off", []*Instruction{at(t, 0, "const/4", 0)}, "falls off the end"},
		{"overlap", []*Instruction{at(t, 0, "const/16", 0), at(t, 1, "return", 0)}, "overlaps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Method{Class: "LT;", Name: "f", Descriptor: "()I", Registers: 2, Code: tt.code}
			err := Verify(m)
			var verr *VerificationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected a verification error, got %v", err)
			}
			if !strings.Contains(verr.Message, tt.want) || verr.Method != "LT;->f()I" {
				t.Errorf("unexpected error %v", verr)
			}
		})
	}
}

// TestAccessModifiers 测试修饰符渲染顺序
func TestAccessModifiers(t *testing.T) {
	a := AccStatic | AccPublic | AccFinal
	if got := strings.Join(a.MethodModifiers(), " "); got != "public static final" {
		t.Errorf("unexpected modifiers %q", got)
	}
	iface := AccPublic | AccInterface | AccAbstract
	if got := strings.Join(iface.ClassModifiers(), " "); got != "public" {
		t.Errorf("interface must not be rendered abstract, got %q", got)
	}
}
