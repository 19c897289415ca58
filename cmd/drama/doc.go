// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Command drama 是多角色对话引擎的可执行入口。

# 子命令

  - chat              终端交互式聊天，支持 /chats、/switch、/reset
  - serve             HTTP + WebSocket 服务（/healthz、/chats、/ws、/metrics）
  - roster validate   校验名册文件
  - version           显示构建版本

# 配置

全局参数 --config 指定 YAML 配置文件，--roster 覆盖名册路径。
环境变量以 DRAMA_ 为前缀覆盖配置，例如 DRAMA_LLM_BASE_URL。

# 运行时

serve 使用 errgroup 同时运行 HTTP 服务器与（--watch 时的）名册监听器；
名册变更后以同一存储重建引擎并原子替换。收到 SIGINT/SIGTERM 时先关闭
WebSocket 会话，再优雅关闭 HTTP 服务器与遥测导出器。
*/
package main
