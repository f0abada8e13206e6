// Package strategy 负责请求分类与三种缓存策略的执行。
//
// Classifier 是纯函数：只看 URL 路径、扩展名与导航模式，决定 cache-first、
// network-first 或 stale-while-revalidate；不访问网络与存储。
//
// Executor 针对分类结果运行对应算法，目标存储由 generation.Manager 显式注入。
// 任何策略都会返回一个结果而不是错误：网络失败与缓存缺失在本包内部被转换为
// 缓存命中或合成的 503 "Offline" 响应。唯一的例外是 stale-while-revalidate
// 在缓存缺失且网络失败时返回 Usable=false，由代理层决定如何呈现。
package strategy
