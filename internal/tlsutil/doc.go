// Package tlsutil 提供后端 HTTP 客户端的集中式传输配置，
// 包括安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）与连接池参数。
package tlsutil
