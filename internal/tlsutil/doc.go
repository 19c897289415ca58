// Package tlsutil 提供推理客户端与 Redis 存储共用的 TLS 设置：
// 默认 TLS 1.2+、仅 AEAD 密码套件，可选自定义 CA 与跳过校验（本地自签名推理服务）。
package tlsutil
