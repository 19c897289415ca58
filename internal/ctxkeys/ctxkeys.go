// Package ctxkeys carries request-scoped identifiers on context.Context.
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	chatIDKey        contextKey = "chat_id"
	interactionIDKey contextKey = "interaction_id"
	companionIDKey   contextKey = "companion_id"
	sessionIDKey     contextKey = "session_id"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func getString(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithChatID 设置当前聊天 ID
func WithChatID(ctx context.Context, chatID string) context.Context {
	return withString(ctx, chatIDKey, chatID)
}

// ChatID 获取当前聊天 ID
func ChatID(ctx context.Context) (string, bool) { return getString(ctx, chatIDKey) }

// WithInteractionID 设置交互 ID（一次用户输入引发的全部活动共享同一个 ID）
func WithInteractionID(ctx context.Context, id string) context.Context {
	return withString(ctx, interactionIDKey, id)
}

// InteractionID 获取交互 ID
func InteractionID(ctx context.Context) (string, bool) { return getString(ctx, interactionIDKey) }

// WithCompanionID 设置当前发言的伙伴 ID
func WithCompanionID(ctx context.Context, id string) context.Context {
	return withString(ctx, companionIDKey, id)
}

// CompanionID 获取当前发言的伙伴 ID
func CompanionID(ctx context.Context) (string, bool) { return getString(ctx, companionIDKey) }

// WithSessionID 设置传输层会话 ID
func WithSessionID(ctx context.Context, id string) context.Context {
	return withString(ctx, sessionIDKey, id)
}

// SessionID 获取传输层会话 ID
func SessionID(ctx context.Context) (string, bool) { return getString(ctx, sessionIDKey) }
