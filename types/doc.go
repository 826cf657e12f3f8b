/*
Package types 提供 aimodal 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包。目前只承载结构化错误体系，
供 client、modal 与 cmd 共用。

# 错误分类

  - 客户端校验（VALIDATION、BUSY）：未发出任何网络请求，消息原样展示
  - 传输 / HTTP 失败（TRANSPORT、HTTP、DECODE、TIMEOUT）：展示通用兜底文案
  - 服务端业务失败（SERVER、TASK_FAILED、NOT_FOUND）：detail 原样透传

UserMessage 根据上述分类把任意 error 转换为用户可见文本。
*/
package types
