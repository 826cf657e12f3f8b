/*
包 server 管理 aimodal CLI 在长时间运行命令（如 generate 等待生成完成）
期间暴露的 HTTP 端点。

# 核心类型

  - Manager：封装 net/http.Server，提供非阻塞 Start、
    带超时的 Shutdown 以及异步错误通道。
  - Config：监听地址、请求头读取超时与优雅关闭超时。

NewMux 将 Prometheus 处理器挂载到 /metrics，并提供 /healthz 存活探针。
*/
package server
