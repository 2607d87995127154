// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、消息与工具调用类型、
模型引用解析以及限流包装。

# Provider 抽象

核心接口是 [Provider]，包含补全、流式输出、健康检查与能力声明。
crews 包只依赖该接口，因此本地 Ollama 与 OpenAI 兼容服务可以互换。

# 模型引用

[ParseModelRef] 解析 "ollama/deepseek-r1:8b" 形式的引用，
前缀决定 Provider，余下部分原样作为模型名。

# 错误语义

所有 Provider 返回 [*Error]，Code 对齐 HTTP 状态，Retryable 决定
providers.RetryableProvider 是否重试。
*/
package llm
