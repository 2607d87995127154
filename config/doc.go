// Package config 提供 crewflow 的配置管理功能。
//
// 配置来自默认值、YAML 文件与 CREWFLOW_ 前缀的环境变量，
// 覆盖 LLM、工具、crew 运行、日志、遥测、数据库、Redis 与 HTTP 服务。
// 环境变量名由 env 标签逐级拼接，例如 CREWFLOW_LLM_MODEL。
package config
