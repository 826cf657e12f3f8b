package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	taskIDKey    contextKey = "task_id"
	commandKey   contextKey = "command"
)

// WithRequestID 设置 RequestID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取 RequestID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithTaskID 设置生成任务 ID
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskIDKey, taskID)
}

// TaskID 获取生成任务 ID
func TaskID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(taskIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithCommand 设置当前 CLI 子命令
func WithCommand(ctx context.Context, command string) context.Context {
	return context.WithValue(ctx, commandKey, command)
}

// Command 获取当前 CLI 子命令
func Command(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(commandKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
