// 包 testutil 汇集测试辅助设施。mocks 子包提供 llm.Provider 的
// 模拟实现，支持脚本化响应与错误注入。
package testutil
