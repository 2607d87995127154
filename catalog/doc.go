// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package catalog 收录可直接运行的 crew 定义。

每个 Entry 描述一个 crew：名称、说明、默认输入，以及由 Deps 构建
crews.Crew 的函数。内置三个 crew：

  - customer-support：客服代表 + 质检专家，抓取 CrewAI 文档回答客户问题
  - event-planning：场地、后勤、市场三名 Agent 协作策划活动，输出
    venue_details.json 与 marketing_report.md
  - research-write：内容策划、写作、编辑三步生成博客文章

cmd/crewflow 通过 Lookup 按名称取得 Entry。
*/
package catalog
