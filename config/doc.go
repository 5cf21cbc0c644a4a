// 包 config 提供进程级只读配置的加载与校验。
//
// 优先级为 默认值 → YAML 文件 → STRUCTFLOW_ 前缀环境变量，
// 启动时加载一次，之后不再变更。
package config
