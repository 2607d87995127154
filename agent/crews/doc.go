// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 crews 提供基于角色分工的多智能体团队运行时。

# 概述

一个 Crew 由若干 Agent（角色、目标、背景故事、工具）与按顺序排列的
Task 组成。Kickoff 用输入变量填充模板后依次执行任务，前序任务的输出
作为后续任务的上下文。

# 核心模型

  - Agent：角色提示词 + LLM + 工具；Execute 运行工具调用循环直到给出最终答案
  - Task：描述、期望输出、执行者、可选的上下文任务、输出文件与输出结构
  - Crew：团队容器，支持顺序（sequential）与层级（hierarchical）两种流程
  - HumanInputProvider：任务完成后的人工反馈闸门

# 主要能力

  - 模板插值：{name} 占位符在副本上替换，原始定义不被修改
  - 原生函数调用：工具经 llm/tools 执行器并发执行，结果按调用顺序回填
  - 同事委派：AllowDelegation 的 Agent 自动获得委派与提问两个工具
  - 异步任务：通过 errgroup 并发执行，在下一个同步任务前汇合
  - 结构化输出：OutputJSON 任务的最终答案经 structured 包解析与校验
  - 上下文裁剪：估算 token 超出窗口时截断最早的工具观察结果
*/
package crews
