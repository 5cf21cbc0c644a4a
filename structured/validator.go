package structured

// Validator 对候选文档做浅层 schema 符合性检查。
//
// 检查刻意保持浅层：只验证 required 键的存在性和顶层声明类型的
// 一致性，不递归嵌套对象/数组形状，不区分 integer 与 number，
// 不检查 enum/format/范围。调用方依赖这种宽松性，不要"修正"它。
type Validator struct{}

// NewValidator 创建浅层验证器。
func NewValidator() *Validator {
	return &Validator{}
}

// Validate 检查 document 是否满足 schema。永不 panic 外泄，
// 任何内部故障一律按验证失败处理。
func (v *Validator) Validate(document any, schema *Schema) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	if schema == nil {
		return true
	}

	obj, isMap := document.(map[string]any)

	// (a) required 键存在性检查，缺失即短路失败
	for _, key := range schema.Required {
		if !isMap {
			return false
		}
		if _, present := obj[key]; !present {
			return false
		}
	}

	if !isMap {
		// 无 required 约束的非对象文档没有可检查的键
		return true
	}

	// (b) 对文档中实际出现且有属性声明的键做顶层类型检查
	for key, value := range obj {
		prop, declared := schema.Properties[key]
		if !declared || prop == nil {
			continue
		}
		if !typeAgrees(value, prop.Type) {
			return false
		}
	}

	return true
}

// typeAgrees 检查运行时值与声明类型的一致性。
// integer 不在映射中，与未声明类型同样放行。
func typeAgrees(value any, declared SchemaType) bool {
	switch declared {
	case TypeNumber:
		_, ok := value.(float64)
		return ok
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeArray:
		_, ok := value.([]any)
		return ok
	case TypeObject:
		m, ok := value.(map[string]any)
		return ok && m != nil
	default:
		return true
	}
}
