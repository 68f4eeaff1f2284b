package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tangzhangming/dexdec/internal/structure"
)

// TestParsePartial 测试缺省键保留默认值
func TestParsePartial(t *testing.T) {
	cfg, err := Parse([]byte(`
[structure]
loop_policy = "posttest-first"

[run]
workers = 3
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Policy().Loop != structure.PosttestFirst {
		t.Errorf("loop policy = %v", cfg.Policy().Loop)
	}
	if cfg.Policy().Handlers != structure.TableOrder {
		t.Errorf("handler order = %v", cfg.Policy().Handlers)
	}
	if !cfg.Pipeline.Propagate || !cfg.Pipeline.SplitVariables {
		t.Error("pipeline defaults lost")
	}
	if cfg.Workers() != 3 {
		t.Errorf("workers = %d", cfg.Workers())
	}
	if cfg.Output.Format != FormatJava || cfg.FormatOptions().IndentSize != 4 {
		t.Errorf("output defaults lost: %+v", cfg.Output)
	}
}

// TestParseInvalid 测试非法取值
func TestParseInvalid(t *testing.T) {
	tests := []string{
		"[structure]\nloop_policy = \"sideways\"\n",
		"[structure]\nhandler_order = \"random\"\n",
		"[output]\nformat = \"xml\"\n",
		"[output]\nindent_size = -1\n",
		"[pipeline\n",
	}
	for _, src := range tests {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("expected error for %q", src)
		}
	}
}

// TestSaveLoad 测试保存后重新加载得到相同配置
func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	cfg := Default()
	cfg.Structure.HandlerOrder = structure.CatchAllLast.String()
	cfg.Pipeline.MaxPropagationRounds = 2
	cfg.Cache.Dir = "/tmp/dexdec-cache"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "# table | catch-all-last") {
		t.Error("saved file has no comments")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
	if loaded.Fingerprint() != cfg.Fingerprint() {
		t.Error("fingerprint changed after round trip")
	}
}

// TestFingerprint 测试影响输出的选项改变指纹
func TestFingerprint(t *testing.T) {
	a := Default()
	b := Default()
	b.Structure.LoopPolicy = structure.PosttestFirst.String()
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("loop policy does not affect fingerprint")
	}
	c := Default()
	c.Run.Workers = 16
	if a.Fingerprint() != c.Fingerprint() {
		t.Error("worker count should not affect fingerprint")
	}
}

// TestFindConfigFile 测试向上查找配置文件
func TestFindConfigFile(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := Default().Save(filepath.Join(root, ConfigFileName)); err != nil {
		t.Fatal(err)
	}
	got := FindConfigFile(sub)
	want, _ := filepath.Abs(filepath.Join(root, ConfigFileName))
	if got != want {
		t.Errorf("FindConfigFile = %q, want %q", got, want)
	}
}
