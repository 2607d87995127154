// Package telemetry 初始化 crewflow 的 OpenTelemetry TracerProvider 与 MeterProvider。
// crews 包通过全局 otel.Tracer("crewflow/crews") 为 kickoff、任务和 LLM 调用创建 span；
// 遥测禁用时全局 provider 保持 noop，不连接任何外部服务。
package telemetry
