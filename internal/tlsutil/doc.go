// Package tlsutil 构建 crewflow 对外 HTTP 调用（LLM 端点、搜索 API、网页抓取）
// 共用的 http.Client：TLS 1.2+，仅 AEAD 密码套件，支持代理环境变量和默认请求头。
package tlsutil
