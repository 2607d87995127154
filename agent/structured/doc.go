// Copyright 2026 AgentFlow Authors
// Use of this source code is governed by the project license.

/*
# 概述

包 structured 把模型的自由文本回答转换为类型化的结构。

# 主要能力

  - GenerateSchema：通过反射从 Go 类型生成 JSONSchema（以 json 标签命名字段）
  - ExtractJSON：从回答中找出第一个括号平衡的 JSON 对象或数组，
    忽略 markdown 代码块与 <think> 推理块
  - Validate：校验必填字段与基础类型
  - Parse[T]：依次执行提取、校验、反序列化

# 典型用法

	venue, err := structured.Parse[VenueDetails](answer)
	if err != nil {
		var ve *structured.ValidationErrors
		if errors.As(err, &ve) { ... }
	}
*/
package structured
