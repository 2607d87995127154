// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 crewflow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 数据工具: MustJSON
  - 流式辅助: CollectStreamContent，用于 LLM 流式响应测试

# 子包

  - testutil/mocks: MockProvider（LLM Provider），支持脚本化响应、
    工具调用与错误注入

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithScript(
		mocks.CallTool("call_1", "web_search", nil),
		mocks.Reply("final answer"),
	)
	resp, err := provider.Completion(ctx, req)
*/
package testutil
