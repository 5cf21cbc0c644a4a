/*
包 llm 提供补全服务接入层的统一请求、响应与错误模型。

# 概述

本包屏蔽上游补全服务在接口与错误语义上的差异，
对上层（结构化管线与 API Handler）暴露一致的消息与错误类型。

# 核心接口

  - [Provider]：补全服务接口，提供 Completion / RawStream / HealthCheck / Name
  - [Error]：统一错误类型，携带错误码、HTTP 状态与可重试标记

# 错误语义

所有上游故障统一映射为 [ErrUpstreamError] 或 [ErrUpstreamMalformed]；
调用方参数错误映射为 [ErrInvalidRequest]。提取失败（仅无 schema 路径）
映射为 [ErrExtractionFailed]，并通过 Raw 字段回显原始输出。
*/
package llm
