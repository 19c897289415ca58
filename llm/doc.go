// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供对话引擎使用的推理后端接入层。

# 概述

对话核心只依赖一个操作：提交一个提示词（或消息列表）载荷，
取回生成文本与 Token 用量。本包定义该操作的接口 [Backend]，
并提供兼容 OpenAI completions 语义的 HTTP 实现 [Client]。

# 核心类型

  - [Backend]：推理后端接口，唯一方法 Submit
  - [Job]：一次推理请求载荷（prompt 或 messages、预设动作、聊天/情境/交互 ID、模型参数）
  - [Response]：推理结果（ID、文本、输入/输出 Token）
  - [ModelConfig]：扁平化的采样参数，附带聊天模板与提示词预算配置
  - [InferenceError]：可区分的推理失败错误，携带出错的 Job、部分响应与底层原因
  - [Error] / [ErrorCode]：HTTP 状态到统一错误码的映射

# 流式协议

当响应的 Content-Type 为 text/event-stream 时，[Client] 逐行读取
"data:" 记录，遇到 [DONE] 结束，跳过无法解析的分片，
并把增量文本重新拼装为与 JSON 模式相同的 [Response]。

# 重试

[RetryBackend] 以指数退避重复可重试的失败（429、5xx、网络错误、中断的流），
参数来自 [ClientConfig].Retry；[IsRetryable] 给出判定规则。

# 可观测性

[InstrumentedBackend] 为任意 Backend 增加 Prometheus 指标与 OpenTelemetry span。
*/
package llm
