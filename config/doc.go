// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 Drama 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → DRAMA_ 前缀环境变量 的顺序加载，
// 覆盖引擎、推理客户端、持久化、HTTP 服务、日志、指标与遥测。
// FileWatcher 借助 fsnotify 与轮询监听角色名册文件，供 serve 命令热重载。
package config
