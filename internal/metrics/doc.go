/*
包 metrics 提供基于 Prometheus 的客户端指标采集能力，覆盖
后端请求、视频上传、生成轮询与会话存储四个维度。

# 概述

Collector 在独立的 prometheus.Registry 上注册指标（promauto.With），
多个 Collector 可以在同一进程内共存，互不冲突。Handler 通过
promhttp 暴露抓取端点，由 internal/server 挂载。

# 主要能力

  - 后端请求：请求总数与耗时，按 method/route/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx，传输失败记为 error。
  - 上传：尝试次数按结果分组（ok/rejected/error），成功上传记录字节数。
  - 生成：每次轮询按返回状态计数，终态任务按 provider/result 计数并记录耗时。
  - 存储：会话存储操作耗时，按 driver/operation 分组。
*/
package metrics
