// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 world 提供对话引擎共享的世界状态（World State）与条件求值器。

# 概述

世界状态是一个扁平的键值存储（string → number | string | bool），
用于记录全局事实：使用计数、功能开关、已解锁的知识等。
触发器与知识行通过 Condition 引用世界状态中的键，由 Evaluator 求值。

# 核心类型

  - Value: 数值 / 字符串 / 布尔三态标签联合，支持 JSON 与 YAML 编解码
  - State: 按插入顺序保存条目的存储，只暴露 Get / Set / Increase / Delete / Entries
  - Condition: none / event / <key> 三类条件，可选 min、max、value
  - Evaluator: 纯函数式求值器，配置错误只记录日志并返回 false

# 使用方式

	state := world.NewState()
	state.Set("CREDITS", world.Number(5))

	ev := world.NewEvaluator(logger)
	ok := ev.Evaluate(world.Condition{Tag: "CREDITS", Min: world.Float(1)}, state)
*/
package world
