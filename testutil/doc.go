/*
Package testutil 提供 aimodal 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / AssertEventuallyEqual / AssertStable，
    用于轮询循环的时序断言
  - 日志辅助: ObservedLogger 捕获 zap 日志条目
  - 数据工具: WriteTempFile / MustJSON / AssertJSONEqual

# 子包

  - testutil/mocks: FakeBackend，基于 httptest 的后端模拟，
    支持脚本化生成状态序列、错误注入与请求计数
  - testutil/fixtures: 视频字节、视频元数据与状态序列样例

# 使用示例

	backend := mocks.NewFakeBackend().WithStatusScript(fixtures.CompletedSequence()...)
	defer backend.Close()
	ctx := testutil.TestContext(t)
*/
package testutil
