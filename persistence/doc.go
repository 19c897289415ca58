// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供对话引擎的持久化抽象及多后端实现。

# 概述

Database 接口覆盖引擎需要落盘的三类数据：世界状态（有序键值对）、
聊天记录（每个聊天一份历史）以及提示词日志（每次推理的完整提示与结果）。
所有方法都接收 context.Context，引擎在这些调用处让出执行。

# 后端

  - memory：进程内存储，默认后端，适合开发与测试。
  - redis：基于 go-redis 的 Hash + Sorted Set，保持插入顺序。
  - sqlite / postgres / mysql：基于 GORM 的 SQL 存储，
    连接池由 internal/database 管理。

# 辅助能力

  - New：按 StoreConfig.Type 创建后端。
  - Instrument：为任意后端记录 Prometheus 存储操作指标。
  - InteractionsKey / ActionsKey：伙伴计数器在世界状态中的键名。
*/
package persistence
