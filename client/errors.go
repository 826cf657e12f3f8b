package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/BaSui01/aimodal/api"
	"github.com/BaSui01/aimodal/types"
)

// maxErrorBody 限制读取错误响应体的大小
const maxErrorBody = 64 << 10

// mapHTTPError 将非 2xx 响应转换为 types.Error。
// 带 detail 的响应视为服务端业务错误，消息原样透传；
// 没有 detail 的响应只保留状态码，由调用方替换为通用提示。
func mapHTTPError(status int, detail string) *types.Error {
	if detail == "" {
		return types.NewError(types.ErrHTTP, fmt.Sprintf("backend returned status %d", status)).
			WithHTTPStatus(status).
			WithRetryable(status >= 500)
	}

	code := types.ErrServer
	if status == http.StatusNotFound {
		code = types.ErrNotFound
	}

	return types.NewError(code, detail).
		WithHTTPStatus(status).
		WithRetryable(status >= 500)
}

// readErrorDetail 读取 FastAPI 风格的 detail 字段
func readErrorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	var resp api.ErrorResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return ""
	}
	return resp.Message()
}

// transportError 包装请求发送阶段的错误
func transportError(ctx context.Context, err error) *types.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "backend request timed out").WithCause(err)
	}
	return types.NewError(types.ErrTransport, "backend unreachable").WithCause(err)
}

// decodeError 包装响应解码错误
func decodeError(err error) *types.Error {
	return types.NewError(types.ErrDecode, "invalid backend response").WithCause(err)
}
