/*
Package main 提供 aimodal 命令行程序入口。

# 概述

cmd/aimodal 用命令行驱动 AI Modal 后端，对应浏览器界面的四个组件：
process（提示提交）、upload（视频上传）、generate / status（视频生成与轮询）、
fetch（视频播放）。跨进程的视频引用与任务状态保存在会话存储中，
history 查看、reset 清空。

# 主要能力

  - 子命令：process、upload、generate、status、fetch、providers、history、reset、health、version
  - 配置：--config 指定 YAML 文件，AIMODAL_* 环境变量覆盖
  - generate 默认等待任务结束，进度输出到 stderr；--no-wait 只打印任务 ID，--sync 使用同步端点
  - 所有面向用户的错误输出到 stderr，退出码为 1
  - metrics.enabled 时在独立端口暴露 /metrics 与 /healthz
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
