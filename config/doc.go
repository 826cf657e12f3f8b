// Package config 提供 aimodal 的配置管理功能。
//
// 配置来自默认值、YAML 文件与 AIMODAL_ 前缀的环境变量，
// 后者依次覆盖前者。例如 AIMODAL_BACKEND_BASE_URL 覆盖 backend.base_url，
// AIMODAL_GENERATION_POLL_INTERVAL 覆盖 generation.poll_interval。
package config
