package structured

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/structflow/llm"
)

// schemaInstruction 构造注入给模型的结构化输出指令。
func schemaInstruction(schema *Schema) string {
	schemaJSON, err := schema.ToJSONIndent()
	if err != nil {
		// Schema 来自已成功反序列化的请求，重新序列化不应失败；
		// 万一失败则退化为紧凑序列化。
		compact, _ := json.Marshal(schema)
		schemaJSON = string(compact)
	}

	// schema 放在围栏内：即使指令被重复注入，围栏策略仍能
	// 稳定取到第一个 schema 块。
	return fmt.Sprintf(
		"You must respond with a single valid JSON object that conforms to the following JSON Schema:\n"+
			"```json\n%s\n```\n\n"+
			"Respond with ONLY the JSON object. Do not wrap it in markdown code fences and do not add any explanatory text.",
		schemaJSON,
	)
}

// Augment 将结构化输出指令注入消息序列并返回新序列，原序列不被修改。
//
// 存在 system 消息时，指令以空行分隔追加到每一条 system 消息的内容之后；
// 不存在时，在序列头部插入一条新的 system 消息。该函数永不失败。
func Augment(messages []llm.Message, schema *Schema) []llm.Message {
	instruction := schemaInstruction(schema)

	hasSystem := false
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			hasSystem = true
			break
		}
	}

	if !hasSystem {
		out := make([]llm.Message, 0, len(messages)+1)
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: instruction})
		out = append(out, messages...)
		return out
	}

	out := make([]llm.Message, len(messages))
	for i, m := range messages {
		if m.Role == llm.RoleSystem {
			m.Content = m.Content + "\n\n" + instruction
		}
		out[i] = m
	}
	return out
}
