// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 Drama 的 HTTP / WebSocket 服务层。

# 概述

Manager 封装 net/http.Server 的监听、服务与优雅关闭；Handler 在其上
暴露健康检查、聊天列表、Prometheus 指标与 /ws 聊天通道；Stage 持有
drama.Engine 并串行化所有对话运行（引擎本身不是并发安全的）。

# WebSocket 协议

客户端发送 {"chat":"anne_chat","text":"Hello"}，服务端依次返回：

  - type=message：本轮追加的每条消息（包括用户自己的消息）
  - type=turn_end：本轮结束，rounds 为发言次数，active 为等待输入的伙伴
  - type=error：聊天不存在、输入为空或推理失败

# 中间件

Recovery、RequestID、OTelTracing、MetricsMiddleware、RequestLogger
按此顺序包裹路由；响应包装器实现 Unwrap，以便 WebSocket 升级时取得
http.Hijacker。
*/
package server
