// 包 ollama 实现面向 Ollama 风格 /api/chat 接口的 llm.Provider。
//
// 非流式补全走 POST {base}/api/chat（stream=false），流式透传
// 返回上游原始响应体。健康检查探测 {base}/api/tags。
package ollama
