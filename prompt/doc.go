// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 prompt 负责把伙伴人设、回合上下文与聊天历史组装为最终提示词。

# 核心类型

  - Decorator / Decorators: 按槽位（Slot）包装上下文文本，首个匹配者生效
  - Assembler: 按固定优先级拼装系统块，并按字符预算从新到旧裁剪历史
  - Template: 基于 text/template 的聊天模板（ChatML、Mistral），实现 Renderer
  - Config: max_prompt_length / job_in_chat / system_role_allowed

系统块永远不会被裁剪；预算不足时输出只包含系统块这一轮。
*/
package prompt
