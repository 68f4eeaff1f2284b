package i18n

// 消息 ID
const (
	// ========== 命令行 ==========
	MsgUsage           = "cli.usage"
	MsgLoadFailed      = "cli.load_failed"
	MsgNoClasses       = "cli.no_classes"
	MsgClassNotFound   = "cli.class_not_found"
	MsgMethodNotFound  = "cli.method_not_found"
	MsgClassList       = "cli.class_list"
	MsgMethodList      = "cli.method_list"
	MsgPromptClass     = "cli.prompt_class"
	MsgPromptMethod    = "cli.prompt_method"
	MsgConfigFailed    = "cli.config_failed"
	MsgConfigWritten   = "cli.config_written"
	MsgCacheDisabled   = "cli.cache_disabled"
	MsgStats           = "cli.stats"
	MsgStageTime       = "cli.stage_time"
	MsgSummary         = "cli.summary"
	MsgInvalidSelector = "cli.invalid_selector"

	// ========== 诊断 ==========
	MsgMalformed      = "diag.malformed"
	MsgInvariant      = "diag.invariant"
	MsgUnsupported    = "diag.unsupported"
	MsgResidualGoto   = "diag.residual_goto"
	MsgUnresolved     = "diag.unresolved"
	MsgOverlappingTry = "diag.overlapping_try"

	// ========== 建议 ==========
	HintMalformed    = "hint.malformed"
	HintInvariant    = "hint.invariant"
	HintUnsupported  = "hint.unsupported"
	HintResidualGoto = "hint.residual_goto"
	HintLoopPolicy   = "hint.loop_policy"
	HintUnresolved   = "hint.unresolved"
	HintDidYouMean   = "hint.did_you_mean"
)
