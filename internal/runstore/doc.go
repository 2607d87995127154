// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 runstore 使用 GORM 持久化 crew 运行记录。

# 核心类型

  - RunRecord：一次 kickoff 的输入、状态、最终输出、错误与 Token 用量。
  - TaskRecord：运行中每个任务的输出，随 RunRecord 一起保存。
  - Store：打开 sqlite、postgres 或 mysql 数据库，自动迁移表结构，
    提供 Start/RecordTask/Finish/Get/List。

sqlite 使用纯 Go 的 glebarez 驱动，不需要 cgo。
*/
package runstore
