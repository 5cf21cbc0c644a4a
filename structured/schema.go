package structured

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/structflow/llm"
)

// SchemaType represents JSON Schema primitive types.
type SchemaType string

const (
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
)

// Schema is the shallow schema model callers supply per request.
// Only required-key presence and top-level primitive types are enforced;
// nested shapes, enums, formats and ranges are deliberately not modeled.
type Schema struct {
	Type        SchemaType         `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// ToJSONIndent 返回 pretty-print 序列化，用于提示词注入。
func (s *Schema) ToJSONIndent() (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	return string(data), nil
}

// SchemaFromResponseFormat 从请求的 response_format 解析出 Schema。
// 非 json_schema 类型或缺失 schema 时返回 nil，表示调用方未请求结构化输出。
func SchemaFromResponseFormat(rf *llm.ResponseFormat) *Schema {
	if rf == nil || rf.Type != "json_schema" || len(rf.Schema) == 0 {
		return nil
	}
	var s Schema
	if err := json.Unmarshal(rf.Schema, &s); err != nil {
		return nil
	}
	return &s
}
