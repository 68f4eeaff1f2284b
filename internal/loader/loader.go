// Package loader 解析 smali 风格的汇编文本，生成类与方法模型
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/tangzhangming/dexdec/internal/bytecode"
)

// 常量定义
const (
	SourceFileExtension = ".smali" // 汇编文本文件后缀
)

// Image 一组已加载的类
type Image struct {
	Classes []*bytecode.Class
	byName  map[string]*bytecode.Class
}

// NewImage 创建空的类集合
func NewImage() *Image {
	return &Image{byName: make(map[string]*bytecode.Class)}
}

// Add 加入一个类（同名类后加入者覆盖）
func (img *Image) Add(c *bytecode.Class) {
	if old, ok := img.byName[c.Name]; ok {
		for i, cls := range img.Classes {
			if cls == old {
				img.Classes[i] = c
			}
		}
	} else {
		img.Classes = append(img.Classes, c)
	}
	img.byName[c.Name] = c
}

// Class 按描述符查找类
func (img *Image) Class(name string) *bytecode.Class {
	return img.byName[name]
}

// Find 查找名字中包含 pattern 的类，按名字排序
func (img *Image) Find(pattern string) []*bytecode.Class {
	var out []*bytecode.Class
	for _, c := range img.Classes {
		if pattern == "" || pattern == "*" ||
			strings.Contains(c.Name, pattern) ||
			strings.Contains(bytecode.ClassName(c.Name), pattern) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Loader 汇编文本加载器
type Loader struct {
	image *Image
}

// New 创建加载器
func New() *Loader {
	return &Loader{image: NewImage()}
}

// Image 已加载的类集合
func (l *Loader) Image() *Image {
	return l.image
}

// LoadPath 加载文件或目录（目录下递归查找 .smali 文件）
func (l *Loader) LoadPath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return l.LoadFile(path)
	}
	var errs error
	walkErr := filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() && strings.HasSuffix(p, SourceFileExtension) {
			errs = multierr.Append(errs, l.LoadFile(p))
		}
		return nil
	})
	return multierr.Append(errs, walkErr)
}

// LoadFile 加载单个文件
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return l.LoadString(string(data), path)
}

// LoadString 加载内存中的汇编文本，一个文本可以包含多个类
func (l *Loader) LoadString(source, filename string) error {
	p := &parser{file: filename, lines: scanLines(source)}
	classes := p.parse()
	for _, c := range classes {
		l.image.Add(c)
	}
	return p.errs
}

// Parse 解析汇编文本并返回新的类集合
func Parse(source, filename string) (*Image, error) {
	l := New()
	err := l.LoadString(source, filename)
	return l.image, err
}

// ============================================================================
// 语法解析
// ============================================================================

type parser struct {
	file  string
	lines []line
	pos   int
	errs  error
}

func (p *parser) errorf(ln int, format string, args ...interface{}) {
	p.errs = multierr.Append(p.errs, &Error{File: p.file, Line: ln, Message: fmt.Sprintf(format, args...)})
}

func (p *parser) parse() []*bytecode.Class {
	var classes []*bytecode.Class
	var cur *bytecode.Class
	for p.pos < len(p.lines) {
		ln := p.lines[p.pos]
		p.pos++
		head, rest := splitHead(ln.text)
		switch head {
		case ".class":
			cur = &bytecode.Class{Line: ln.num}
			flags, name := parseFlags(rest)
			cur.Access = flags
			cur.Name = name
			if !isClassDescriptor(name) {
				p.errorf(ln.num, "invalid class name %q", name)
			}
			classes = append(classes, cur)
		case ".super":
			if cur != nil {
				cur.Super = rest
			}
		case ".implements":
			if cur != nil {
				cur.Interfaces = append(cur.Interfaces, rest)
			}
		case ".source":
			if cur != nil {
				if s, err := parseString(rest); err == nil {
					cur.SourceFile = s
				}
			}
		case ".field":
			if cur == nil {
				p.errorf(ln.num, ".field outside of class")
				continue
			}
			if f := p.parseField(ln, rest); f != nil {
				cur.Fields = append(cur.Fields, f)
			}
		case ".method":
			if cur == nil {
				p.errorf(ln.num, ".method outside of class")
				p.skipUntil(".end method")
				continue
			}
			if m := p.parseMethod(ln, cur, rest); m != nil {
				m.Index = len(cur.Methods)
				cur.Methods = append(cur.Methods, m)
			}
		case ".annotation", ".subannotation":
			p.skipUntil(".end " + strings.TrimPrefix(head, "."))
		case ".end":
			// .end field 等可以忽略
		default:
			p.errorf(ln.num, "unexpected directive %q", head)
		}
	}
	return classes
}

func (p *parser) skipUntil(end string) {
	for p.pos < len(p.lines) {
		t := p.lines[p.pos].text
		p.pos++
		if t == end {
			return
		}
	}
}

// parseFlags 拆分 "public static name" 为标志位和最后一个单词
func parseFlags(s string) (bytecode.AccessFlags, string) {
	words := strings.Fields(s)
	var flags bytecode.AccessFlags
	if len(words) == 0 {
		return 0, ""
	}
	for _, w := range words[:len(words)-1] {
		if f, ok := bytecode.ParseAccessFlag(w); ok {
			flags |= f
		}
	}
	return flags, words[len(words)-1]
}

func isClassDescriptor(s string) bool {
	return len(s) > 2 && s[0] == 'L' && s[len(s)-1] == ';'
}

func (p *parser) parseField(ln line, rest string) *bytecode.Field {
	f := &bytecode.Field{}
	decl := rest
	if i := strings.Index(rest, " = "); i >= 0 {
		decl = rest[:i]
		f.Value = strings.TrimSpace(rest[i+3:])
		f.HasValue = true
	}
	flags, nameType := parseFlags(decl)
	i := strings.IndexByte(nameType, ':')
	if i <= 0 {
		p.errorf(ln.num, "invalid field declaration %q", rest)
		return nil
	}
	f.Access = flags
	f.Name = nameType[:i]
	f.Type = nameType[i+1:]
	// 字段可以带注解块
	if p.pos < len(p.lines) && strings.HasPrefix(p.lines[p.pos].text, ".annotation") {
		p.skipUntil(".end field")
	}
	return f
}

// ============================================================================
// 方法体
// ============================================================================

// payload 方法中的数据负载
type payload struct {
	kind    string // packed-switch / sparse-switch / array-data
	first   int64
	keys    []int64
	labels  []string
	width   int
	values  []int64
	lineNum int
}

// pendingInst 第一遍扫描得到的指令（操作数尚未解析）
type pendingInst struct {
	inst     *bytecode.Instruction
	operands []string
	lineNum  int
}

type catchLine struct {
	typ        string
	start, end string
	handler    string
	lineNum    int
}

type methodBuilder struct {
	p         *parser
	m         *bytecode.Method
	locals    int
	hasLocals bool
	insts     []*pendingInst
	labels    map[string]int
	payloads  map[string]*payload
	catches   []catchLine
	offset    int
	pending   []string // 尚未绑定的标签
}

func (p *parser) parseMethod(ln line, cls *bytecode.Class, rest string) *bytecode.Method {
	flags, sig := parseFlags(rest)
	open := strings.IndexByte(sig, '(')
	if open <= 0 {
		p.errorf(ln.num, "invalid method signature %q", rest)
		p.skipUntil(".end method")
		return nil
	}
	m := &bytecode.Method{
		Class:      cls.Name,
		Name:       sig[:open],
		Descriptor: sig[open:],
		Access:     flags,
		Line:       ln.num,
	}
	if _, _, ok := bytecode.ParseMethodDescriptor(m.Descriptor); !ok {
		p.errorf(ln.num, "invalid method descriptor %q", m.Descriptor)
		p.skipUntil(".end method")
		return nil
	}
	b := &methodBuilder{
		p:        p,
		m:        m,
		labels:   make(map[string]int),
		payloads: make(map[string]*payload),
	}
	b.scan()
	b.finish()
	return m
}

// scan 第一遍：计算偏移、收集标签、负载和 catch 指令
func (b *methodBuilder) scan() {
	p := b.p
	for p.pos < len(p.lines) {
		ln := p.lines[p.pos]
		p.pos++
		text := ln.text
		if strings.HasPrefix(text, ":") {
			b.pending = append(b.pending, text[1:])
			continue
		}
		head, rest := splitHead(text)
		switch head {
		case ".end":
			if rest == "method" {
				b.bindPending(b.offset)
				return
			}
		case ".registers":
			n, err := strconv.Atoi(rest)
			if err != nil {
				p.errorf(ln.num, "invalid register count %q", rest)
			}
			b.m.Registers = n
		case ".locals":
			n, err := strconv.Atoi(rest)
			if err != nil {
				p.errorf(ln.num, "invalid locals count %q", rest)
			}
			b.locals = n
			b.hasLocals = true
		case ".catch", ".catchall":
			b.parseCatch(ln, head, rest)
		case ".packed-switch", ".sparse-switch", ".array-data":
			b.parsePayload(ln, head, rest)
		case ".annotation":
			p.skipUntil(".end annotation")
		case ".param":
			if p.pos < len(p.lines) && strings.HasPrefix(p.lines[p.pos].text, ".annotation") {
				p.skipUntil(".end param")
			}
		case ".line", ".local", ".end local", ".restart", ".prologue", ".epilogue", ".source":
		default:
			if strings.HasPrefix(head, ".") {
				continue
			}
			tmpl, ok := bytecode.LookupMnemonic(head)
			if !ok {
				p.errorf(ln.num, "unknown instruction %q", head)
				continue
			}
			b.bindPending(b.offset)
			tmpl.Offset = b.offset
			tmpl.Line = ln.num
			b.offset += tmpl.Width
			b.insts = append(b.insts, &pendingInst{inst: tmpl, operands: splitOperands(rest), lineNum: ln.num})
		}
	}
	p.errorf(b.p.lines[len(b.p.lines)-1].num, "missing .end method for %s", b.m.Name)
}

func (b *methodBuilder) bindPending(offset int) {
	for _, name := range b.pending {
		b.labels[name] = offset
	}
	b.pending = b.pending[:0]
}

func (b *methodBuilder) parseCatch(ln line, head, rest string) {
	c := catchLine{lineNum: ln.num}
	if head == ".catch" {
		c.typ, rest = splitHead(rest)
	}
	lb, rb := strings.IndexByte(rest, '{'), strings.IndexByte(rest, '}')
	if lb < 0 || rb < lb {
		b.p.errorf(ln.num, "invalid %s directive", head)
		return
	}
	rng := strings.SplitN(rest[lb+1:rb], "..", 2)
	if len(rng) != 2 {
		b.p.errorf(ln.num, "invalid %s range", head)
		return
	}
	c.start = strings.TrimPrefix(strings.TrimSpace(rng[0]), ":")
	c.end = strings.TrimPrefix(strings.TrimSpace(rng[1]), ":")
	c.handler = strings.TrimPrefix(strings.TrimSpace(rest[rb+1:]), ":")
	b.catches = append(b.catches, c)
}

func (b *methodBuilder) parsePayload(ln line, head, rest string) {
	p := b.p
	pl := &payload{kind: strings.TrimPrefix(head, "."), lineNum: ln.num}
	for _, name := range b.pending {
		b.payloads[name] = pl
	}
	b.pending = b.pending[:0]

	switch pl.kind {
	case "packed-switch":
		v, err := parseLiteral(rest)
		if err != nil {
			p.errorf(ln.num, "%v", err)
		}
		pl.first = v
	case "array-data":
		w, err := strconv.Atoi(rest)
		if err != nil {
			p.errorf(ln.num, "invalid array element width %q", rest)
		}
		pl.width = w
	}

	end := ".end " + pl.kind
	for p.pos < len(p.lines) {
		item := p.lines[p.pos]
		p.pos++
		if item.text == end {
			return
		}
		switch pl.kind {
		case "packed-switch":
			pl.labels = append(pl.labels, strings.TrimPrefix(item.text, ":"))
		case "sparse-switch":
			parts := strings.SplitN(item.text, "->", 2)
			if len(parts) != 2 {
				p.errorf(item.num, "invalid sparse-switch entry %q", item.text)
				continue
			}
			k, err := parseLiteral(parts[0])
			if err != nil {
				p.errorf(item.num, "%v", err)
			}
			pl.keys = append(pl.keys, k)
			pl.labels = append(pl.labels, strings.TrimPrefix(strings.TrimSpace(parts[1]), ":"))
		case "array-data":
			for _, f := range strings.Fields(item.text) {
				v, err := parseLiteral(f)
				if err != nil {
					p.errorf(item.num, "%v", err)
				}
				pl.values = append(pl.values, v)
			}
		}
	}
	p.errorf(ln.num, "missing %s", end)
}

// finish 第二遍：解析操作数并建立异常表
func (b *methodBuilder) finish() {
	m := b.m
	ins := m.Ins()
	if b.hasLocals {
		m.Registers = b.locals + ins
	}
	if m.Registers < ins {
		m.Registers = ins
	}
	for _, pi := range b.insts {
		b.decode(pi)
		m.Code = append(m.Code, pi.inst)
	}

	var dirs []bytecode.CatchDirective
	for _, c := range b.catches {
		start, ok1 := b.labels[c.start]
		end, ok2 := b.labels[c.end]
		h, ok3 := b.labels[c.handler]
		if !ok1 || !ok2 || !ok3 {
			b.p.errorf(c.lineNum, "undefined label in catch directive")
			continue
		}
		dirs = append(dirs, bytecode.CatchDirective{Start: start, End: end, Type: c.typ, Handler: h})
	}
	m.Tries = bytecode.NormalizeTries(dirs)
	m.Overlaps = bytecode.PartialOverlaps(dirs)
}

func (b *methodBuilder) register(s string, lineNum int) int {
	if len(s) < 2 {
		b.p.errorf(lineNum, "invalid register %q", s)
		return 0
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		b.p.errorf(lineNum, "invalid register %q", s)
		return 0
	}
	switch s[0] {
	case 'v':
		return n
	case 'p':
		return b.m.Registers - b.m.Ins() + n
	}
	b.p.errorf(lineNum, "invalid register %q", s)
	return 0
}

func (b *methodBuilder) label(s string, lineNum int) int {
	name := strings.TrimPrefix(s, ":")
	off, ok := b.labels[name]
	if !ok {
		b.p.errorf(lineNum, "undefined label %q", name)
	}
	return off
}

func (b *methodBuilder) decode(pi *pendingInst) {
	inst := pi.inst
	ops := pi.operands
	ln := pi.lineNum
	regs := func(n int) bool {
		if len(ops) < n {
			b.p.errorf(ln, "%s expects %d operands", inst.Mnemonic, n)
			return false
		}
		for _, o := range ops[:n] {
			inst.Regs = append(inst.Regs, b.register(o, ln))
		}
		return true
	}

	switch inst.Op {
	case bytecode.OpNop, bytecode.OpReturnVoid:
	case bytecode.OpMoveResult, bytecode.OpMoveException, bytecode.OpReturn,
		bytecode.OpMonitorEnter, bytecode.OpMonitorExit, bytecode.OpThrow:
		regs(1)
	case bytecode.OpMove, bytecode.OpArrayLength, bytecode.OpUnary, bytecode.OpConvert:
		regs(2)
	case bytecode.OpConst, bytecode.OpConstWide:
		if regs(1) && len(ops) > 1 {
			v, err := parseLiteral(ops[1])
			if err != nil {
				b.p.errorf(ln, "%v", err)
			}
			inst.Literal = v
		}
	case bytecode.OpConstString:
		if regs(1) && len(ops) > 1 {
			s, err := parseString(ops[1])
			if err != nil {
				b.p.errorf(ln, "%v", err)
			}
			inst.Str = s
		}
	case bytecode.OpConstClass, bytecode.OpCheckCast, bytecode.OpNewInstance:
		if regs(1) && len(ops) > 1 {
			inst.Ref = ops[1]
			if inst.Op != bytecode.OpConstClass {
				inst.Type = ops[1]
			}
		}
	case bytecode.OpInstanceOf, bytecode.OpNewArray:
		if regs(2) && len(ops) > 2 {
			inst.Ref = ops[2]
			if inst.Op == bytecode.OpNewArray {
				inst.Type = ops[2]
			}
		}
	case bytecode.OpFilledNewArray:
		b.decodeList(inst, ops, ln)
		if len(ops) > 1 {
			inst.Ref = ops[1]
			inst.Type = ops[1]
		}
	case bytecode.OpFillArrayData:
		if regs(1) && len(ops) > 1 {
			inst.Payload = strings.TrimPrefix(ops[1], ":")
			if pl := b.payloads[inst.Payload]; pl != nil && pl.kind == "array-data" {
				inst.Array = &bytecode.ArrayPayload{ElementWidth: pl.width, Values: pl.values}
			} else {
				b.p.errorf(ln, "undefined array-data payload %q", inst.Payload)
			}
		}
	case bytecode.OpGoto:
		if len(ops) < 1 {
			b.p.errorf(ln, "goto expects a label")
			return
		}
		inst.Target = b.label(ops[0], ln)
	case bytecode.OpIf:
		if regs(2) && len(ops) > 2 {
			inst.Target = b.label(ops[2], ln)
		}
	case bytecode.OpIfZ:
		if regs(1) && len(ops) > 1 {
			inst.Target = b.label(ops[1], ln)
		}
	case bytecode.OpPackedSwitch, bytecode.OpSparseSwitch:
		if regs(1) && len(ops) > 1 {
			inst.Payload = strings.TrimPrefix(ops[1], ":")
			b.decodeSwitch(inst, ln)
		}
	case bytecode.OpCmp, bytecode.OpAGet, bytecode.OpAPut:
		regs(3)
	case bytecode.OpBinary:
		if inst.TwoAddr {
			regs(2)
		} else {
			regs(3)
		}
	case bytecode.OpBinaryLit:
		if regs(2) && len(ops) > 2 {
			v, err := parseLiteral(ops[2])
			if err != nil {
				b.p.errorf(ln, "%v", err)
			}
			inst.Literal = v
		}
	case bytecode.OpIGet, bytecode.OpIPut:
		if regs(2) && len(ops) > 2 {
			inst.Field = b.fieldRef(ops[2], ln)
		}
	case bytecode.OpSGet, bytecode.OpSPut:
		if regs(1) && len(ops) > 1 {
			inst.Field = b.fieldRef(ops[1], ln)
		}
	case bytecode.OpInvoke:
		b.decodeList(inst, ops, ln)
		if len(ops) > 1 {
			inst.Method = b.methodRef(ops[1], ln)
		}
		if inst.Method != nil {
			inst.Type = inst.Method.Return
		}
	}
}

func (b *methodBuilder) decodeList(inst *bytecode.Instruction, ops []string, ln int) {
	if len(ops) < 1 {
		b.p.errorf(ln, "%s expects a register list", inst.Mnemonic)
		return
	}
	list, err := parseRegisterList(ops[0])
	if err != nil {
		b.p.errorf(ln, "%v", err)
		return
	}
	for _, r := range list {
		inst.Regs = append(inst.Regs, b.register(r, ln))
	}
}

func (b *methodBuilder) decodeSwitch(inst *bytecode.Instruction, ln int) {
	pl := b.payloads[inst.Payload]
	want := "packed-switch"
	if inst.Op == bytecode.OpSparseSwitch {
		want = "sparse-switch"
	}
	if pl == nil || pl.kind != want {
		b.p.errorf(ln, "undefined %s payload %q", want, inst.Payload)
		return
	}
	sw := &bytecode.SwitchPayload{}
	for i, l := range pl.labels {
		if pl.kind == "packed-switch" {
			sw.Keys = append(sw.Keys, pl.first+int64(i))
		} else {
			sw.Keys = append(sw.Keys, pl.keys[i])
		}
		sw.Targets = append(sw.Targets, b.label(l, pl.lineNum))
	}
	inst.Switch = sw
}

func (b *methodBuilder) fieldRef(s string, ln int) *bytecode.FieldRef {
	class, name, rest, err := parseMember(s)
	if err != nil || !strings.HasPrefix(rest, ":") {
		b.p.errorf(ln, "invalid field reference %q", s)
		return nil
	}
	return &bytecode.FieldRef{Class: class, Name: name, Type: rest[1:]}
}

func (b *methodBuilder) methodRef(s string, ln int) *bytecode.MethodRef {
	class, name, rest, err := parseMember(s)
	if err != nil {
		b.p.errorf(ln, "invalid method reference %q", s)
		return nil
	}
	params, ret, ok := bytecode.ParseMethodDescriptor(rest)
	if !ok {
		b.p.errorf(ln, "invalid method descriptor %q", rest)
		return nil
	}
	return &bytecode.MethodRef{Class: class, Name: name, Params: params, Return: ret}
}
