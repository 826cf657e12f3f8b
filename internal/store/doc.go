/*
Package store 保存命令行会话状态：最近一次上传或生成的视频引用，以及生成任务的最后已知状态。

# 驱动

  - sqlite：默认驱动，GORM + 纯 Go 的 glebarez/sqlite，文件位于用户缓存目录。
  - postgres / mysql：GORM 驱动，使用 DSN 连接。
  - redis：记录以 JSON 字符串保存，任务 ID 索引在有序集合中。
  - memory：进程内存储，用于测试。

Open 根据 config.StoreConfig 选择驱动；传入 metrics.Collector 时每次操作都会记录耗时。
记录不存在时返回 ErrNotFound。
*/
package store
