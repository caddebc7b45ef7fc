// Package dag 构建不可变的任务图（TaskGraph）。
//
// 任务图在构建时完成全部结构校验：节点 ID 唯一、依赖必须存在且不能自引用、
// 重试策略合法、依赖关系无环。存在环时返回 CircularDependencyError，
// 任何节点都不会被执行。构建完成的任务图可被执行引擎和验证引擎并发只读使用。
package dag
