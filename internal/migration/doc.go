// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理运行记录表（run_records、task_records）的版本化 Schema，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

各方言的 SQL 文件通过 embed.FS 内嵌。默认情况下 runstore 在启动时用
GORM AutoMigrate 建表；设置 database.disable_auto_migrate 后由
`crewflow migrate up` 管理表结构。

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info。
  - Open：按 config.DatabaseConfig 打开连接，复用 runstore 的方言选择。
  - CLI：把迁移操作格式化输出到终端，供 crewflow migrate 子命令使用。
*/
package migration
