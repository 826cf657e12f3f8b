/*
Package modal 实现 AI Modal 前端的四个有状态视图：提示提交、视频上传、
视频生成与视频播放。

# 概述

每个视图持有与浏览器组件相同的局部状态（加载标志、结果文本、错误文本、
任务状态），所有状态由互斥锁保护，Snapshot 返回副本。视图之间只共享
标识符（视频 ID、任务 ID）。

# 核心类型

  - PromptView：提交提示词，关联视频时改走视频分析端点。
    加载中的重复提交返回 BUSY 错误，不发起请求。
  - Uploader：按显式类型、扩展名、内容嗅探的顺序确定文件类型，
    非 video/* 文件在客户端拒绝；失败时保留之前的视频引用。
  - GenerationView：提交异步生成任务，以固定间隔（默认 2 秒）串行轮询状态，
    在 completed、failed、请求失败、重新提交或 Close 时停止。
  - Viewer：按视频 ID 拉取视频流，状态为 loading、ready 或 error。

# 错误

所有错误在视图内转换为面向用户的文本：客户端校验与服务端 detail 原样展示，
传输、状态码与解码错误替换为通用提示（见 types.UserMessage）。
*/
package modal
