package xlog

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNilHandler 当 NewEnrichHandler 的 base handler 为 nil 时返回
var ErrNilHandler = errors.New("xlog: base handler is nil")

type ctxKey int

const (
	ctxKeyServerID ctxKey = iota
	ctxKeyClientID
)

// ContextWithServerID 返回携带 server_id 的派生 context，供 EnrichHandler 注入日志。
func ContextWithServerID(ctx context.Context, serverID string) context.Context {
	return context.WithValue(ctx, ctxKeyServerID, serverID)
}

// ContextWithClientID 返回携带 client_id（fencing token）的派生 context。
func ContextWithClientID(ctx context.Context, clientID int64) context.Context {
	return context.WithValue(ctx, ctxKeyClientID, clientID)
}

// EnrichHandler 自动从 context 提取集群身份信息并注入日志
//
// 装饰模式实现，包装底层 slog.Handler，在 Handle() 时自动添加 server_id、
// client_id（当 context 携带时）。
//
// Best-effort 策略：context 中缺少字段不会影响日志记录。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 创建 EnrichHandler
func NewEnrichHandler(base slog.Handler) (*EnrichHandler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	return &EnrichHandler{base: base}, nil
}

// Enabled 委托给底层 handler
func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// maxEnrichAttrs 最大注入属性数量（server_id + client_id）
const maxEnrichAttrs = 2

// Handle 在调用底层 handler 前，从 context 提取 server_id/client_id
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf [maxEnrichAttrs]slog.Attr
	attrs := buf[:0]
	if ctx != nil {
		if serverID, ok := ctx.Value(ctxKeyServerID).(string); ok && serverID != "" {
			attrs = append(attrs, ServerID(serverID))
		}
		if clientID, ok := ctx.Value(ctxKeyClientID).(int64); ok {
			attrs = append(attrs, ClientID(clientID))
		}
	}

	if len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}

	return h.base.Handle(ctx, r)
}

// WithAttrs 返回带额外属性的新 handler
func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{
		base: h.base.WithAttrs(attrs),
	}
}

// WithGroup 返回带分组的新 handler
func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{
		base: h.base.WithGroup(name),
	}
}
