/*
包 structured 把补全服务的自由文本输出强转为符合调用方 schema 的
JSON 文档，采用分层提取-修复策略而不是信任模型输出干净 JSON。

# 控制流

	Augment → 补全服务 → Extract → Validate → (失败) Regenerate → (失败) Synthesize

提取策略从最严到最松排列（整体解析 → 围栏代码块 → 大括号跨度 →
schema 引导再生成），首个成功者胜出。再生成是系统的安全阀：它把
任何下游故障转化为结构上的必然成功，最低保障由 [Synthesize] 的
确定性合成文档兜底。

# 失败语义

请求了 schema 的路径永不向外失败，退化结果通过 warning 字段标记。
调用方只需要为传输故障和自身参数错误做防御，不需要为模型的不可
预测性做防御。

# 核心类型

  - [Pipeline]：状态机编排器，入口 [Pipeline.Execute]
  - [Extractor]：有序短路回退的 JSON 提取
  - [Regenerator]：面向 schema 的二次转换调用，永不失败
  - [Validator]：浅层符合性检查（required 存在性 + 顶层原始类型）
  - [Synthesize]：模型无关的最小合法文档合成
*/
package structured
