package i18n

var messagesEN = map[string]string{
	// ========== CLI ==========
	MsgUsage:           "usage: dexdec [flags] file.smali|dir ...",
	MsgLoadFailed:      "failed to load %s: %v",
	MsgNoClasses:       "no classes loaded",
	MsgClassNotFound:   "class not found: %s",
	MsgMethodNotFound:  "method not found: %s",
	MsgClassList:       "Classes:",
	MsgMethodList:      "Methods of %s:",
	MsgPromptClass:     "class (name fragment, * for all, empty to quit)> ",
	MsgPromptMethod:    "method (index or name, * for all, empty to go back)> ",
	MsgConfigFailed:    "failed to load config %s: %v",
	MsgConfigWritten:   "default configuration written to %s",
	MsgCacheDisabled:   "cache disabled: %v",
	MsgStats:           "%d methods, %d failed, %d gotos, %d cache hits",
	MsgStageTime:       "%-14s %8d calls %12s",
	MsgSummary:         "%d error(s), %d warning(s)",
	MsgInvalidSelector: "invalid selection: %s",

	// ========== Diagnostics ==========
	MsgMalformed:      "malformed bytecode: %v",
	MsgInvariant:      "internal invariant violated: %v",
	MsgUnsupported:    "unsupported instruction: %v",
	MsgResidualGoto:   "%d jump(s) could not be structured and were emitted as goto",
	MsgUnresolved:     "unresolved reference %s",
	MsgOverlappingTry: "try ranges overlap at %04x",

	// ========== Hints ==========
	HintMalformed:    "the method body is skipped; other methods of the class are still decompiled",
	HintInvariant:    "this is a decompiler bug, please report the method together with its bytecode",
	HintUnsupported:  "only a subset of the Dalvik instruction set is lowered",
	HintResidualGoto: "the control flow graph is irreducible or uses jumps that have no structured form",
	HintLoopPolicy:   "try structure.loop_policy = \"posttest-first\" in the configuration",
	HintUnresolved:   "the referenced member is not declared in the loaded class",
	HintDidYouMean:   "did you mean %s?",
}
