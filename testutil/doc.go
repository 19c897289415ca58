// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package testutil 提供 drama 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 日志辅助: ObservedLogger 返回 zap observer，用于断言告警日志
  - 异步断言: AssertEventuallyTrue / WaitFor
  - 时间辅助: FixedClock 生成单调递增的确定性时间戳

# 子包

  - testutil/mocks: MockBackend（推理后端），支持脚本化响应、
    按动作路由与错误注入
  - testutil/fixtures: 测试数据工厂，提供名册 YAML 与长文档

# 使用示例

	ctx := testutil.TestContext(t)
	backend := mocks.NewMockBackend().WithScript("hello")
	resp, err := backend.Submit(ctx, job)
*/
package testutil
