package handler

import (
    "errors"
    "net/http"
    "time"

    "github.com/gin-gonic/gin"

    "github.com/d60-Lab/timeline-fanout/internal/api/middleware"
    "github.com/d60-Lab/timeline-fanout/internal/model"
    "github.com/d60-Lab/timeline-fanout/internal/repository"
    "github.com/d60-Lab/timeline-fanout/internal/service"
    "github.com/d60-Lab/timeline-fanout/pkg/response"
)

const (
    CodeEmptyNote       = "EMPTY_NOTE"
    CodeNoSuchReference = "NO_SUCH_NOTE"
)

type createNoteRequest struct {
    Text           *string          `json:"text" binding:"omitempty,max=3000"`
    Visibility     model.Visibility `json:"visibility" binding:"omitempty,oneof=public home followers specified"`
    VisibleUserIDs []string         `json:"visibleUserIds" binding:"omitempty,max=100"`
    ChannelID      *string          `json:"channelId"`
    ReplyID        *string          `json:"replyId" binding:"omitempty,cursorid"`
    RenoteID       *string          `json:"renoteId" binding:"omitempty,cursorid"`
    FileIDs        []string         `json:"fileIds" binding:"omitempty,max=16"`
    Poll           bool             `json:"poll"`
    // ExpiresAt 毫秒时间戳
    ExpiresAt *int64 `json:"expiresAt"`
}

// CreateNote 发帖：写库 + outbox，异步推入关注者的时间线缓存
// @Summary 发帖
// @Tags 帖子
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createNoteRequest true "帖子内容"
// @Success 200 {object} response.Response{data=model.Post}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/notes/create [post]
func (h *Handler) CreateNote(c *gin.Context) {
    var req createNoteRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        bindError(c, err)
        return
    }
    if req.Text == nil && req.RenoteID == nil && len(req.FileIDs) == 0 && !req.Poll {
        response.Fail(c, http.StatusBadRequest, CodeEmptyNote, "text, renoteId, fileIds or poll is required")
        return
    }

    in := service.NewPost{
        AuthorID:       middleware.ViewerID(c),
        Text:           req.Text,
        Visibility:     req.Visibility,
        VisibleUserIDs: req.VisibleUserIDs,
        ChannelID:      req.ChannelID,
        ReplyID:        req.ReplyID,
        RenoteID:       req.RenoteID,
        FileIDs:        req.FileIDs,
        HasPoll:        req.Poll,
    }
    if req.ExpiresAt != nil {
        at := time.UnixMilli(*req.ExpiresAt)
        in.ExpiresAt = &at
    }

    post, err := h.publisher.Publish(c.Request.Context(), in)
    switch {
    case err == nil:
        response.Success(c, post)
    case errors.Is(err, service.ErrReferenceNotFound):
        response.Fail(c, http.StatusBadRequest, CodeNoSuchReference, err.Error())
    case errors.Is(err, repository.ErrUserNotFound):
        response.Fail(c, http.StatusUnauthorized, CodeNoSuchUser, err.Error())
    default:
        response.InternalError(c, err)
    }
}
