// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 crewflow serve 命令的 HTTP 服务器生命周期。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供 Start、Run、Shutdown。
  - Config：监听地址、读写超时、空闲超时、请求头上限与优雅关闭超时，
    可由 config.ServerConfig 通过 FromConfig 生成。

Run 在 ctx 取消（通常来自 signal.NotifyContext）或服务异常退出时触发优雅关闭。
监听 ":0" 时 Addr 返回实际分配的地址。
*/
package server
