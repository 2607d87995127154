// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package tools 提供 Agent 可调用的工具注册、执行与缓存能力。

# 核心组件

  - DefaultRegistry：按名称注册 ToolFunc 及其元数据，支持工具级速率限制
  - DefaultExecutor：并发执行工具调用，保持结果顺序，处理超时与参数校验
  - ResultCache：工具结果缓存接口，MemoryResultCache 为进程内实现

# 内置工具

  - web_scrape：通过 WebScrapeProvider 抓取网页正文，HTTPScraper 为默认后端
  - web_search：通过 WebSearchProvider 搜索网页，SerperSearch 为默认后端
  - NewFixedTool：把任意工具绑定到固定参数，得到零参数工具
*/
package tools
