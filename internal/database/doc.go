// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责打开 GORM 连接并管理连接池，供 SQL 持久化后端使用。

# 概述

Open 按驱动名（sqlite、postgres、mysql）选择方言并建立连接，
随后交给 PoolManager 统一管理连接池参数与关闭。postgres 与 mysql
在连接前校验连接池配置。
SQLite 使用纯 Go 驱动 github.com/glebarez/sqlite，无需 cgo；
为保证内存库在连接间共享，SQLite 固定为单连接且连接永不过期。

# 核心类型

  - Config：驱动、DSN 与连接池配置。
  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Close() 与 Transact()。
  - PoolConfig：最大空闲/打开连接数与连接生命周期。

# 事务

Transact 对死锁、序列化失败、连接中断等可重试错误做指数退避，
其他错误立即返回。
*/
package database
