// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理，并为工具调用提供共享的结果缓存。

# 核心类型

  - Manager：封装 go-redis 客户端，统一添加键前缀，提供
    Get/Set/Delete/Ping/Close，可选后台健康检查。
  - RedisResultCache：实现 tools.ResultCache，键为
    <前缀>tool:<CacheKey>，用于在多个进程之间复用抓取与搜索结果。

未命中返回 ErrCacheMiss，可用 IsCacheMiss 判断；关闭后的操作返回 ErrClosed。
*/
package cache
