// repl.go - 交互式浏览
//
// 列出已加载的类，按名字片段选择类，再按序号或名字选择方法并输出源码。
// 两级提示中 * 表示全部，空行返回上一级（在类提示中退出）。

package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tangzhangming/dexdec/internal/decompiler"
	"github.com/tangzhangming/dexdec/internal/errors"
	"github.com/tangzhangming/dexdec/internal/i18n"
)

// REPL 交互式浏览器
type REPL struct {
	machine   *decompiler.Machine
	reader    *bufio.Reader
	writer    io.Writer
	highlight *errors.SyntaxHighlighter // nil 表示不高亮
	history   []string
}

// Config REPL 配置
type Config struct {
	In        io.Reader
	Out       io.Writer
	Highlight bool
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		In:        os.Stdin,
		Out:       os.Stdout,
		Highlight: errors.ColorsEnabled(),
	}
}

// New 创建 REPL
func New(m *decompiler.Machine, config Config) *REPL {
	r := &REPL{
		machine: m,
		reader:  bufio.NewReader(config.In),
		writer:  config.Out,
	}
	if config.Highlight {
		r.highlight = errors.NewSyntaxHighlighter()
	}
	return r
}

// Run 运行 REPL，输入结束或类提示中输入空行时返回
func (r *REPL) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.printClasses()
		line, ok := r.prompt(i18n.T(i18n.MsgPromptClass))
		if !ok || line == "" {
			return nil
		}
		if r.handleCommand(line) {
			continue
		}

		if line == "*" {
			for _, c := range r.machine.TopLevel() {
				r.render(c.Render())
			}
			continue
		}
		cls := r.pickClass(line)
		if cls == nil {
			continue
		}
		if !r.browse(ctx, cls) {
			return nil
		}
	}
}

// browse 方法级提示，返回 false 表示输入已结束
func (r *REPL) browse(ctx context.Context, cls *decompiler.Class) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		r.printMethods(cls)
		line, ok := r.prompt(i18n.T(i18n.MsgPromptMethod))
		if !ok {
			return false
		}
		if line == "" {
			return true
		}
		if r.handleCommand(line) {
			continue
		}
		if line == "*" {
			r.render(cls.Render())
			continue
		}
		i, found := cls.FindMethod(line)
		if !found {
			fmt.Fprintln(r.writer, i18n.T(i18n.MsgMethodNotFound, line))
			continue
		}
		r.render(cls.RenderMethod(i))
	}
}

// prompt 打印提示并读取一行，输入结束时返回 false
func (r *REPL) prompt(text string) (string, bool) {
	fmt.Fprint(r.writer, text)
	line, err := r.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		fmt.Fprintln(r.writer)
		return "", false
	}
	line = strings.TrimSpace(line)
	if line != "" {
		r.addHistory(line)
	}
	return line, true
}

// pickClass 按名字片段选择类；完全匹配优先，多个候选时列出候选
func (r *REPL) pickClass(selector string) *decompiler.Class {
	if c := r.machine.Class(selector); c != nil {
		return c
	}
	found := r.machine.Find(selector)
	switch len(found) {
	case 0:
		fmt.Fprintln(r.writer, i18n.T(i18n.MsgClassNotFound, selector))
		return nil
	case 1:
		return found[0]
	}
	fmt.Fprintln(r.writer, i18n.T(i18n.MsgInvalidSelector, selector))
	for _, c := range found {
		fmt.Fprintf(r.writer, "  %s\n", c.Name())
	}
	return nil
}

// handleCommand 处理 : 开头的命令
func (r *REPL) handleCommand(line string) bool {
	if !strings.HasPrefix(line, ":") {
		return false
	}
	switch strings.ToLower(line) {
	case ":help", ":h", ":?":
		r.printHelp()
	case ":history", ":hist":
		r.printHistory()
	default:
		fmt.Fprintf(r.writer, "Unknown command: %s\n", line)
		fmt.Fprintln(r.writer, "Type :help for available commands.")
	}
	return true
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.writer, "Available commands:")
	fmt.Fprintln(r.writer, "  :help, :h, :?     Show this help message")
	fmt.Fprintln(r.writer, "  :history, :hist   Show selection history")
	fmt.Fprintln(r.writer)
	fmt.Fprintln(r.writer, "  *                 Select everything at this level")
	fmt.Fprintln(r.writer, "  <empty line>      Go back (quit at the class prompt)")
}

// printClasses 打印类列表
func (r *REPL) printClasses() {
	fmt.Fprintln(r.writer, i18n.T(i18n.MsgClassList))
	for _, c := range r.machine.Classes() {
		fmt.Fprintf(r.writer, "  %s\n", c.Name())
	}
}

// printMethods 打印方法列表和处理状态
func (r *REPL) printMethods(cls *decompiler.Class) {
	fmt.Fprintln(r.writer, i18n.T(i18n.MsgMethodList, cls.Name()))
	for i, m := range cls.Methods() {
		mark := ""
		if cls.State(i) == decompiler.Processed {
			mark = " *"
		}
		fmt.Fprintf(r.writer, "  [%d] %s%s%s\n", i, m.Name, m.Descriptor, mark)
	}
}

// render 输出源码或错误
func (r *REPL) render(text string, err error) {
	if err != nil {
		fmt.Fprintf(r.writer, "Error: %v\n", err)
		return
	}
	if r.highlight != nil {
		text = r.highlight.Highlight(text)
	}
	fmt.Fprint(r.writer, text)
}

func (r *REPL) printHistory() {
	for i, cmd := range r.history {
		fmt.Fprintf(r.writer, "%4d  %s\n", i+1, cmd)
	}
}

// addHistory 添加到历史记录
func (r *REPL) addHistory(input string) {
	// 不添加重复的历史记录
	if len(r.history) > 0 && r.history[len(r.history)-1] == input {
		return
	}
	r.history = append(r.history, input)
	if len(r.history) > 1000 {
		r.history = r.history[len(r.history)-1000:]
	}
}
