package i18n

var messagesZH = map[string]string{
	// ========== 命令行 ==========
	MsgUsage:           "用法: dexdec [选项] 文件.smali|目录 ...",
	MsgLoadFailed:      "加载 %s 失败: %v",
	MsgNoClasses:       "没有加载任何类",
	MsgClassNotFound:   "找不到类: %s",
	MsgMethodNotFound:  "找不到方法: %s",
	MsgClassList:       "类列表:",
	MsgMethodList:      "%s 的方法:",
	MsgPromptClass:     "类（名称片段，* 表示全部，空行退出）> ",
	MsgPromptMethod:    "方法（序号或名称，* 表示全部，空行返回）> ",
	MsgConfigFailed:    "加载配置 %s 失败: %v",
	MsgConfigWritten:   "默认配置已写入 %s",
	MsgCacheDisabled:   "缓存已禁用: %v",
	MsgStats:           "%d 个方法，%d 个失败，%d 个 goto，缓存命中 %d 次",
	MsgStageTime:       "%-14s %8d 次 %12s",
	MsgSummary:         "%d 个错误，%d 个警告",
	MsgInvalidSelector: "无效的选择: %s",

	// ========== 诊断 ==========
	MsgMalformed:      "字节码格式错误: %v",
	MsgInvariant:      "内部不变量被破坏: %v",
	MsgUnsupported:    "不支持的指令: %v",
	MsgResidualGoto:   "%d 处跳转无法结构化，以 goto 输出",
	MsgUnresolved:     "无法解析的引用 %s",
	MsgOverlappingTry: "try 范围在 %04x 处重叠",

	// ========== 建议 ==========
	HintMalformed:    "跳过该方法体，类中的其他方法仍会反编译",
	HintInvariant:    "这是反编译器的缺陷，请连同字节码一起报告该方法",
	HintUnsupported:  "目前只翻译 Dalvik 指令集的一个子集",
	HintResidualGoto: "控制流图不可归约，或者存在没有结构化形式的跳转",
	HintLoopPolicy:   "可以在配置中尝试 structure.loop_policy = \"posttest-first\"",
	HintUnresolved:   "被引用的成员没有在已加载的类中声明",
	HintDidYouMean:   "是否是指 %s？",
}
