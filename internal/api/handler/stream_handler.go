package handler

import (
    "github.com/gin-gonic/gin"
    "go.uber.org/zap"

    "github.com/d60-Lab/timeline-fanout/internal/api/middleware"
    "github.com/d60-Lab/timeline-fanout/internal/stream"
    "github.com/d60-Lab/timeline-fanout/pkg/logger"
)

// Streaming websocket 推送；连接建立后用 connect/disconnect 帧订阅频道
// @Summary 实时推送
// @Description 升级为 websocket；发送 {"type":"connect","body":{"channel":"mutualTimeline","id":"..."}} 订阅互关时间线
// @Tags 时间线
// @Security BearerAuth
// @Param i query string false "token（浏览器无法设置请求头时使用）"
// @Success 101
// @Failure 401 {object} response.Response
// @Router /api/v1/streaming [get]
func (h *Handler) Streaming(c *gin.Context) {
    ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
    if err != nil {
        // Upgrade 已写回错误响应
        logger.Debug("websocket upgrade failed", zap.Error(err))
        return
    }
    stream.NewConnection(ws, middleware.ViewerID(c), h.channels, h.sendQueueSize).Serve(c.Request.Context())
}
