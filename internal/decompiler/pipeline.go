package decompiler

import (
	goerrors "errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tangzhangming/dexdec/internal/ast"
	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/dataflow"
	"github.com/tangzhangming/dexdec/internal/errors"
	"github.com/tangzhangming/dexdec/internal/graph"
	"github.com/tangzhangming/dexdec/internal/ir"
	"github.com/tangzhangming/dexdec/internal/structure"
)

// ============================================================================
// 流水线
// ============================================================================

// work 一个方法在流水线中的全部中间结果，阶段之间依次移交
type work struct {
	ctx    *Context
	log    *zap.Logger
	method *bytecode.Method

	g      *graph.Graph
	chains *dataflow.Chains
	doms   *graph.Dominators
	decls  map[*ir.Variable]*graph.Node
	result *structure.Result
	done   bool // 后续阶段不再执行（无方法体）
}

// Stage 流水线阶段
type Stage struct {
	Name    string
	Enabled func(*Context) bool // nil 表示总是执行
	Run     func(*work) error
}

// Stages 按执行顺序排列的阶段
var Stages = []Stage{
	{Name: "verify", Run: verifyStage},
	{Name: "graph", Run: graphStage},
	{Name: "dataflow", Run: chainsStage},
	{Name: "split", Enabled: splitEnabled, Run: splitStage},
	{Name: "dce", Run: dceStage},
	{Name: "propagate", Enabled: propagateEnabled, Run: propagateStage},
	{Name: "dce", Enabled: propagateEnabled, Run: dceStage},
	{Name: "declare", Run: declareStage},
	{Name: "simplify", Run: simplifyStage},
	{Name: "dominators", Run: dominatorsStage},
	{Name: "structure", Run: structureStage},
}

func splitEnabled(c *Context) bool     { return c.Config.Pipeline.SplitVariables }
func propagateEnabled(c *Context) bool { return c.Config.Pipeline.Propagate }

// runPipeline 对一个方法顺序执行全部阶段
func runPipeline(ctx *Context, m *bytecode.Method) (*work, error) {
	w := &work{
		ctx:    ctx,
		log:    ctx.Logger.With(zap.String("method", m.FullName())),
		method: m,
	}
	for _, st := range Stages {
		if w.done {
			break
		}
		if st.Enabled != nil && !st.Enabled(ctx) {
			continue
		}
		start := time.Now()
		err := st.Run(w)
		elapsed := time.Since(start)
		ctx.Profiler.Record(st.Name, elapsed)
		if err != nil {
			w.log.Debug("stage failed", zap.String("stage", st.Name), zap.Error(err))
			return w, err
		}
		if ce := w.log.Check(zap.DebugLevel, "stage done"); ce != nil {
			nodes := 0
			if w.g != nil {
				nodes = len(w.g.RPO)
			}
			ce.Write(zap.String("stage", st.Name), zap.Int("nodes", nodes), zap.Duration("elapsed", elapsed))
		}
	}
	return w, nil
}

// ============================================================================
// 各阶段
// ============================================================================

func verifyStage(w *work) error {
	return bytecode.Verify(w.method)
}

func graphStage(w *work) error {
	g, err := graph.Construct(w.method)
	if err != nil {
		return err
	}
	w.g = g
	if g.Empty() {
		w.done = true
		return nil
	}
	w.dump("graph", dumpGraph(g))
	return nil
}

func chainsStage(w *work) error {
	c, err := dataflow.BuildChains(w.g)
	if err != nil {
		return err
	}
	w.chains = c
	return nil
}

// splitStage 拆分后链已经重新计算
func splitStage(w *work) error {
	c, err := dataflow.SplitVariables(w.g, w.chains)
	if err != nil {
		return err
	}
	w.chains = c
	return nil
}

func dceStage(w *work) error {
	if n := dataflow.EliminateDeadCode(w.g, w.chains); n > 0 {
		w.log.Debug("dead code removed", zap.Int("statements", n))
	}
	return nil
}

func propagateStage(w *work) error {
	if n := dataflow.PropagateRegisters(w.g, w.chains, w.ctx.Config.PropagateOptions()); n > 0 {
		w.log.Debug("registers propagated", zap.Int("substitutions", n))
	}
	return nil
}

// declareStage 声明位置基于简化前的图计算
func declareStage(w *work) error {
	dataflow.InferTypes(w.chains)
	doms := graph.ImmediateDominators(w.g)
	w.decls = dataflow.PlaceDeclarations(w.g, w.chains, doms, graph.FindLoops(w.g, doms))
	return nil
}

func simplifyStage(w *work) error {
	graph.SplitIfNodes(w.g)
	graph.Simplify(w.g)
	// 简化改变了节点，旧的链不再有效
	w.chains = nil
	w.dump("simplify", dumpGraph(w.g))
	return nil
}

func dominatorsStage(w *work) error {
	w.doms = graph.ImmediateDominators(w.g)
	return nil
}

func structureStage(w *work) error {
	res, err := structure.Recover(w.g, w.doms, w.ctx.Config.Policy())
	if err != nil {
		return err
	}
	w.result = res
	if res.Gotos > 0 {
		w.log.Warn("unstructured jumps emitted as goto",
			zap.Int("gotos", res.Gotos), zap.Int("irreducible", res.Irreducible))
	}
	if w.ctx.Config.Pipeline.DumpStages {
		if data, err := ast.DumpIndent(res.Root, "  "); err == nil {
			w.dump("structure", string(data))
		}
	}
	return nil
}

// dump 开启 dump_stages 时把中间结果写入 debug 日志
func (w *work) dump(stage, text string) {
	if !w.ctx.Config.Pipeline.DumpStages {
		return
	}
	w.log.Debug("stage dump", zap.String("stage", stage), zap.String("dump", text))
}

// dumpGraph 按逆后序列出节点、后继和语句
func dumpGraph(g *graph.Graph) string {
	var sb strings.Builder
	for _, n := range g.RPO {
		fmt.Fprintf(&sb, "%s #%d", n, n.Num)
		if n.Try != nil {
			fmt.Fprintf(&sb, " try%d", n.Try.ID)
		}
		if n.Handler {
			sb.WriteString(" handler")
		}
		sb.WriteString(" ->")
		for _, s := range n.Succs {
			fmt.Fprintf(&sb, " %s", s)
		}
		for _, s := range n.CatchSuccs {
			fmt.Fprintf(&sb, " !%s", s)
		}
		sb.WriteString("\n")
		for _, s := range n.Stmts {
			fmt.Fprintf(&sb, "    %d: %s\n", s.Loc(), s)
		}
	}
	return sb.String()
}

// ============================================================================
// 错误分类
// ============================================================================

// classify 把阶段错误映射为错误码
func classify(err error) string {
	var lower *ir.LowerError
	if goerrors.As(err, &lower) {
		if strings.HasPrefix(lower.Message, "unsupported") {
			return errors.D0003
		}
		return errors.D0001
	}
	var inv *dataflow.InvariantError
	if goerrors.As(err, &inv) {
		return errors.D0002
	}
	var verr *bytecode.VerificationError
	if goerrors.As(err, &verr) {
		return errors.D0001
	}
	// 结构恢复自身的失败也是内部错误
	return errors.D0002
}
