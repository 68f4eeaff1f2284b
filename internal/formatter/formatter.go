// Package formatter 把类和反编译后的方法输出为 Java 风格的源码
package formatter

// FormatClass 输出整个类
func FormatClass(cs *ClassSource, options *Options) string {
	p := NewPrinter(options)
	p.PrintClass(cs)
	return p.String()
}

// FormatMethod 只输出一个方法
func FormatMethod(ms *MethodSource, options *Options) string {
	p := NewPrinter(options)
	p.PrintMethod(ms)
	return p.String()
}

// FormatWithDefaultOptions 使用默认选项输出类
func FormatWithDefaultOptions(cs *ClassSource) string {
	return FormatClass(cs, DefaultOptions())
}
