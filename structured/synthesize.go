package structured

import "fmt"

// Synthesize 直接从 schema 确定性地构造一个最小合法文档。
// 纯函数，对任意输入全定义，永不失败。
//
// 结果保证满足 Validator 的 required 存在性检查；所有生成路径
// 耗尽时，这是管线返回给调用方的最后一道结构保证。
func Synthesize(schema *Schema) map[string]any {
	if schema == nil || len(schema.Properties) == 0 {
		return map[string]any{
			"error": "unable to generate a response matching the requested schema",
		}
	}

	doc := make(map[string]any, len(schema.Required))
	for _, name := range schema.Required {
		prop, present := schema.Properties[name]
		if !present || prop == nil {
			continue
		}
		doc[name] = minimalValue(name, prop)
	}
	return doc
}

// minimalValue 按声明类型映射确定性的最小值。
func minimalValue(name string, prop *Schema) any {
	switch prop.Type {
	case TypeString:
		if prop.Description != "" {
			return prop.Description
		}
		return fmt.Sprintf("autogenerated %s", name)
	case TypeNumber, TypeInteger:
		return float64(0)
	case TypeBoolean:
		return false
	case TypeArray:
		return []any{}
	case TypeObject:
		return map[string]any{}
	default:
		return nil
	}
}
