// Package runner 把 catalog 中的 crew 与运行期基础设施（工具缓存、指标、运行记录、人工反馈）
// 组装起来执行一次 kickoff。CLI 的 run 命令和 HTTP API 共用同一个 Runner。
package runner
