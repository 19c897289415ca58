// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的对话引擎指标采集能力，覆盖
HTTP、推理、对话回合、发言人选择、触发器与存储六个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto.With
注册到调用方提供的 Registerer（为 nil 时使用默认注册表）。
所有指标按 namespace 隔离。Collector 的方法对 nil 接收者安全，
未启用指标时引擎可以直接传入 nil。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 向量指标。

# 主要能力

  - HTTP 指标：请求总数与耗时，按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 推理指标：请求总数、耗时、Token 用量（input/output），按 model 分组。
  - 对话指标：回合数（按 companion/kind）、发言人选择规则命中次数。
  - 触发器指标：触发次数，按 companion/kind 分组。
  - 存储指标：操作总数，按 backend/operation/status 分组。
  - 会话指标：当前 WebSocket 会话数 Gauge。
*/
package metrics
