// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 drama 实现多方对话编排引擎：决定谁下一个发言、每位发言者收到什么上下文，
以及副作用（世界状态变更、委托子任务）如何传播。

# 概述

Engine 持有伙伴名册、世界状态、聊天列表与推理任务队列。一次用户输入进入
某个 Chat 后，RunConversation 反复调用 RunChat：由 Moderator 选出发言栈，
逐个弹出发言者并运行其回复管线，直到轮次耗尽或控制权回到用户。每轮结束后
持久化历史、同步计数器并执行触发器扫描。

# 核心类型

  - Companion：由 CompanionConfig 构造的参与者，持有回复管线
    （Trigger + ReplyFunc 的有序列表）、心情与交互计数。
  - Context：单轮上下文，承载各类文本槽位、收件人与用量统计。
  - Chat：一段对话，包含参与者、发言选择策略、历史与主持人。
  - Moderator：按固定规则顺序选择发言者，必要时回退到 LLM 推理。
  - ClassRegistry：伙伴类别（chat、instruction、passthrough、deputy、user）
    到回复管线装配函数的映射。

# 委托

伙伴的 action 指向一个副手（deputy）。副手按 scope 注册文本选取或
文档摘要处理器；action 可覆盖副手的 scope，引擎为此构建并缓存变体副手。

# 并发

Engine 不是并发安全的：同一引擎只应由一个 goroutine 驱动。
需要服务多个客户端的传输层应在外部串行化访问。
*/
package drama
