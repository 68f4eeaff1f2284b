// Package config 读写 dexdec.toml 配置文件
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/tangzhangming/dexdec/internal/dataflow"
	"github.com/tangzhangming/dexdec/internal/formatter"
	"github.com/tangzhangming/dexdec/internal/structure"
)

// 常量定义
const (
	ConfigFileName = "dexdec.toml" // 配置文件名
)

// 输出格式
const (
	FormatJava = "java"
	FormatJSON = "json"
)

// Config 反编译配置
type Config struct {
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Structure StructureConfig `toml:"structure"`
	Output    OutputConfig    `toml:"output"`
	Run       RunConfig       `toml:"run"`
	Cache     CacheConfig     `toml:"cache"`
}

// PipelineConfig 各阶段开关
type PipelineConfig struct {
	SplitVariables       bool `toml:"split_variables"`
	Propagate            bool `toml:"propagate"`
	FoldConstants        bool `toml:"fold_constants"`
	MaxPropagationRounds int  `toml:"max_propagation_rounds"` // <= 0 表示直到不动点
	DumpStages           bool `toml:"dump_stages"`
}

// StructureConfig 结构化策略
type StructureConfig struct {
	LoopPolicy   string `toml:"loop_policy"`   // pretest-first | posttest-first
	HandlerOrder string `toml:"handler_order"` // table | catch-all-last
}

// OutputConfig 输出选项
type OutputConfig struct {
	IndentSize   int    `toml:"indent_size"`
	Format       string `toml:"format"` // java | json
	ShowBytecode bool   `toml:"show_bytecode"`
}

// RunConfig 运行选项
type RunConfig struct {
	Workers  int    `toml:"workers"` // <= 0 表示 CPU 数
	Language string `toml:"language"`
}

// CacheConfig 缓存选项
type CacheConfig struct {
	Dir string `toml:"dir"` // 为空表示不使用缓存
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			SplitVariables: true,
			Propagate:      true,
			FoldConstants:  true,
		},
		Structure: StructureConfig{
			LoopPolicy:   structure.PretestFirst.String(),
			HandlerOrder: structure.TableOrder.String(),
		},
		Output: OutputConfig{
			IndentSize: 4,
			Format:     FormatJava,
		},
		Run: RunConfig{
			Language: "en",
		},
	}
}

// Load 从文件加载配置，缺省的键保留默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 TOML 文本
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if _, err := structure.ParseLoopPolicy(c.Structure.LoopPolicy); err != nil {
		return fmt.Errorf("structure.loop_policy: %w", err)
	}
	if _, err := structure.ParseHandlerOrder(c.Structure.HandlerOrder); err != nil {
		return fmt.Errorf("structure.handler_order: %w", err)
	}
	switch c.Output.Format {
	case FormatJava, FormatJSON:
	default:
		return fmt.Errorf("output.format: unknown format %q", c.Output.Format)
	}
	if c.Output.IndentSize < 0 {
		return fmt.Errorf("output.indent_size: must not be negative")
	}
	return nil
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	content := generateConfigWithComments(c)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateConfigWithComments 生成带注释的配置文件内容
func generateConfigWithComments(c *Config) string {
	var sb strings.Builder

	sb.WriteString("[pipeline]\n")
	sb.WriteString("# 按定义-使用网拆分寄存器变量\n")
	sb.WriteString(fmt.Sprintf("split_variables = %t\n", c.Pipeline.SplitVariables))
	sb.WriteString("# 把单次使用的表达式替换进使用处\n")
	sb.WriteString(fmt.Sprintf("propagate = %t\n", c.Pipeline.Propagate))
	sb.WriteString(fmt.Sprintf("fold_constants = %t\n", c.Pipeline.FoldConstants))
	sb.WriteString("# 0 表示直到不动点\n")
	sb.WriteString(fmt.Sprintf("max_propagation_rounds = %d\n", c.Pipeline.MaxPropagationRounds))
	sb.WriteString("# 在 debug 日志中输出各阶段的图\n")
	sb.WriteString(fmt.Sprintf("dump_stages = %t\n\n", c.Pipeline.DumpStages))

	sb.WriteString("[structure]\n")
	sb.WriteString("# pretest-first | posttest-first\n")
	sb.WriteString(fmt.Sprintf("loop_policy = %q\n", c.Structure.LoopPolicy))
	sb.WriteString("# table | catch-all-last\n")
	sb.WriteString(fmt.Sprintf("handler_order = %q\n\n", c.Structure.HandlerOrder))

	sb.WriteString("[output]\n")
	sb.WriteString(fmt.Sprintf("indent_size = %d\n", c.Output.IndentSize))
	sb.WriteString("# java | json\n")
	sb.WriteString(fmt.Sprintf("format = %q\n", c.Output.Format))
	sb.WriteString(fmt.Sprintf("show_bytecode = %t\n\n", c.Output.ShowBytecode))

	sb.WriteString("[run]\n")
	sb.WriteString("# 0 表示 CPU 数\n")
	sb.WriteString(fmt.Sprintf("workers = %d\n", c.Run.Workers))
	sb.WriteString("# en | zh\n")
	sb.WriteString(fmt.Sprintf("language = %q\n\n", c.Run.Language))

	sb.WriteString("[cache]\n")
	sb.WriteString("# 为空表示不使用缓存\n")
	sb.WriteString(fmt.Sprintf("dir = %q\n", c.Cache.Dir))

	return sb.String()
}

// ============================================================================
// 转换为各组件的选项
// ============================================================================

// Policy 结构化策略
func (c *Config) Policy() structure.Policy {
	loop, _ := structure.ParseLoopPolicy(c.Structure.LoopPolicy)
	order, _ := structure.ParseHandlerOrder(c.Structure.HandlerOrder)
	return structure.Policy{Loop: loop, Handlers: order}
}

// PropagateOptions 寄存器传播选项
func (c *Config) PropagateOptions() dataflow.Options {
	return dataflow.Options{
		FoldConstants: c.Pipeline.FoldConstants,
		MaxRounds:     c.Pipeline.MaxPropagationRounds,
	}
}

// FormatOptions 源码输出选项
func (c *Config) FormatOptions() *formatter.Options {
	opts := formatter.DefaultOptions()
	if c.Output.IndentSize > 0 {
		opts.IndentSize = c.Output.IndentSize
	}
	opts.ShowBytecode = c.Output.ShowBytecode
	return opts
}

// Workers 并发数
func (c *Config) Workers() int {
	if c.Run.Workers > 0 {
		return c.Run.Workers
	}
	return runtime.NumCPU()
}

// Fingerprint 影响输出的配置项，用作缓存键的一部分
func (c *Config) Fingerprint() string {
	return fmt.Sprintf("split=%t prop=%t fold=%t rounds=%d loop=%s handlers=%s indent=%d bc=%t",
		c.Pipeline.SplitVariables, c.Pipeline.Propagate, c.Pipeline.FoldConstants,
		c.Pipeline.MaxPropagationRounds, c.Structure.LoopPolicy, c.Structure.HandlerOrder,
		c.Output.IndentSize, c.Output.ShowBytecode)
}

// FindConfigFile 从指定路径向上查找配置文件
// 返回配置文件的完整路径，如果找不到则返回空字符串
func FindConfigFile(startPath string) string {
	info, err := os.Stat(startPath)
	if err != nil {
		return ""
	}

	dir := startPath
	if !info.IsDir() {
		dir = filepath.Dir(startPath)
	}
	dir, err = filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
