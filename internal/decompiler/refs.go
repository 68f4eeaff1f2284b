package decompiler

import (
	"github.com/tangzhangming/dexdec/internal/bytecode"
	"github.com/tangzhangming/dexdec/internal/loader"
)

// unresolvedRef 指向已加载类中不存在成员的引用
type unresolvedRef struct {
	Ref        string   // 引用文本
	Name       string   // 成员名
	Candidates []string // 目标类中已声明的同类成员名
}

// checkReferences 找出方法引用的、目标类已加载但成员没有声明的字段和方法
//
// 沿父类链查找；父类链离开已加载集合时视为已解析，java.lang.Object 除外。
func checkReferences(img *loader.Image, m *bytecode.Method) []unresolvedRef {
	if img == nil {
		return nil
	}
	var out []unresolvedRef
	seen := make(map[string]bool)
	for _, inst := range m.Code {
		switch {
		case inst.Method != nil:
			ref := inst.Method
			key := ref.Class + "->" + ref.Name + ref.Descriptor()
			if seen[key] || img.Class(ref.Class) == nil {
				continue
			}
			seen[key] = true
			if !hasMethod(img, ref.Class, ref.Name, ref.Descriptor()) {
				out = append(out, unresolvedRef{Ref: key, Name: ref.Name, Candidates: methodNames(img.Class(ref.Class))})
			}
		case inst.Field != nil:
			ref := inst.Field
			key := ref.String()
			if seen[key] || img.Class(ref.Class) == nil {
				continue
			}
			seen[key] = true
			if !hasField(img, ref.Class, ref.Name) {
				out = append(out, unresolvedRef{Ref: key, Name: ref.Name, Candidates: fieldNames(img.Class(ref.Class))})
			}
		}
	}
	return out
}

const objectClass = "Ljava/lang/Object;"

// objectMethods java.lang.Object 声明的方法
var objectMethods = map[string]bool{
	"<init>": true, "clone": true, "equals": true, "finalize": true, "getClass": true,
	"hashCode": true, "notify": true, "notifyAll": true, "toString": true, "wait": true,
}

func hasMethod(img *loader.Image, class, name, desc string) bool {
	for c := img.Class(class); c != nil; c = img.Class(c.Super) {
		for _, m := range c.Methods {
			if m.Name == name && m.Descriptor == desc {
				return true
			}
		}
		if c.Super == "" {
			return false
		}
		if img.Class(c.Super) == nil {
			return c.Super != objectClass || objectMethods[name]
		}
	}
	return false
}

func hasField(img *loader.Image, class, name string) bool {
	for c := img.Class(class); c != nil; c = img.Class(c.Super) {
		for _, f := range c.Fields {
			if f.Name == name {
				return true
			}
		}
		if c.Super == "" {
			return false
		}
		if img.Class(c.Super) == nil {
			return c.Super != objectClass
		}
	}
	return false
}

func methodNames(c *bytecode.Class) []string {
	var out []string
	for _, m := range c.Methods {
		out = append(out, m.Name)
	}
	return out
}

func fieldNames(c *bytecode.Class) []string {
	var out []string
	for _, f := range c.Fields {
		out = append(out, f.Name)
	}
	return out
}
