package handler

import (
    "errors"
    "io"
    "net/http"

    "github.com/gin-gonic/gin"
    "github.com/go-playground/validator/v10"

    "github.com/d60-Lab/timeline-fanout/internal/api/middleware"
    "github.com/d60-Lab/timeline-fanout/internal/idgen"
    "github.com/d60-Lab/timeline-fanout/internal/model"
    "github.com/d60-Lab/timeline-fanout/internal/repository"
    "github.com/d60-Lab/timeline-fanout/internal/service"
    "github.com/d60-Lab/timeline-fanout/pkg/response"
)

const (
    CodeMutualTimelineDisabled  = "MUTUAL_TIMELINE_DISABLED"
    CodeBothWithRepliesAndFiles = "BOTH_WITH_REPLIES_AND_WITH_FILES"
    CodeMalformedID             = "MALFORMED_ID"
    CodeNoSuchUser              = "NO_SUCH_USER"
)

type timelineResponse struct {
    Posts   []*model.Post `json:"posts"`
    Partial bool          `json:"partial"`
}

// MutualTimeline 互关时间线
// @Summary 互关时间线
// @Description 返回与自己互相关注的用户的帖子（含自己的），按 id 倒序
// @Tags 时间线
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.MutualTimelineParams false "分页与过滤参数"
// @Success 200 {object} response.Response{data=timelineResponse}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 429 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /api/v1/notes/mutual-timeline [post]
func (h *Handler) MutualTimeline(c *gin.Context) {
    var p service.MutualTimelineParams
    // 空 body 按默认参数处理
    if err := c.ShouldBindJSON(&p); err != nil && !errors.Is(err, io.EOF) {
        bindError(c, err)
        return
    }

    res, err := h.mutual.Timeline(c.Request.Context(), middleware.ViewerID(c), p)
    if err != nil {
        timelineError(c, err)
        return
    }
    response.Success(c, timelineResponse{Posts: res.Posts, Partial: res.Partial})
}

func bindError(c *gin.Context, err error) {
    var verrs validator.ValidationErrors
    if errors.As(err, &verrs) {
        for _, fe := range verrs {
            if fe.Tag() == "cursorid" {
                response.Fail(c, http.StatusBadRequest, CodeMalformedID, fe.Field()+" is not a valid id")
                return
            }
        }
    }
    response.BadRequest(c, err.Error())
}

func timelineError(c *gin.Context, err error) {
    switch {
    case errors.Is(err, service.ErrPolicyDenied):
        response.Forbidden(c, CodeMutualTimelineDisabled, err.Error())
    case errors.Is(err, service.ErrBothWithRepliesAndWithFiles):
        response.Fail(c, http.StatusBadRequest, CodeBothWithRepliesAndFiles, err.Error())
    case errors.Is(err, service.ErrInvalidParameters):
        response.BadRequest(c, err.Error())
    case errors.Is(err, idgen.ErrMalformedIdentifier):
        response.Fail(c, http.StatusBadRequest, CodeMalformedID, err.Error())
    case errors.Is(err, repository.ErrUserNotFound):
        response.Fail(c, http.StatusUnauthorized, CodeNoSuchUser, err.Error())
    case errors.Is(err, service.ErrStorageUnavailable):
        _ = c.Error(err)
        response.ServiceUnavailable(c, "timeline storage unavailable, retry later")
    default:
        response.InternalError(c, err)
    }
}
