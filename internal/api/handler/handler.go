package handler

import (
    "net/http"
    "sync"

    "github.com/gin-gonic/gin/binding"
    "github.com/go-playground/validator/v10"
    "github.com/gorilla/websocket"

    "github.com/d60-Lab/timeline-fanout/internal/idgen"
    "github.com/d60-Lab/timeline-fanout/internal/service"
    "github.com/d60-Lab/timeline-fanout/internal/stream"
)

// Handler HTTP 入口
type Handler struct {
    mutual        *service.MutualTimelineService
    publisher     *service.Publisher
    channels      stream.ChannelDeps
    upgrader      websocket.Upgrader
    sendQueueSize int
}

func NewHandler(mutual *service.MutualTimelineService, publisher *service.Publisher, channels stream.ChannelDeps, sendQueueSize int) *Handler {
    return &Handler{
        mutual:    mutual,
        publisher: publisher,
        channels:  channels,
        upgrader: websocket.Upgrader{
            ReadBufferSize:  4096,
            WriteBufferSize: 4096,
            CheckOrigin:     func(*http.Request) bool { return true },
        },
        sendQueueSize: sendQueueSize,
    }
}

var registerOnce sync.Once

// RegisterValidators 注册自定义 binding 标签：cursorid
func RegisterValidators() {
    registerOnce.Do(func() {
        v, ok := binding.Validator.Engine().(*validator.Validate)
        if !ok {
            return
        }
        _ = v.RegisterValidation("cursorid", func(fl validator.FieldLevel) bool {
            return idgen.Valid(fl.Field().String())
        })
    })
}
