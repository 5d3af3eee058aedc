// Package llm 抽象了外部大模型的意图解析能力。
// 具体实现位于子包中，调用方只依赖 Client 接口，
// 模型不可用时由 intent 包回退到确定性解析。
package llm
