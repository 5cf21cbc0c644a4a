// 包 handlers 提供 HTTP 传输层：聊天入口、健康检查与通用中间件。
//
// 传输层只做薄编排：解码请求、调用结构化管线或流式透传、
// 按统一错误码映射写回响应。核心语义全部在 structured 包内。
package handlers
