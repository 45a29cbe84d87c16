package logger

import (
    "sync"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

var (
    mu     sync.RWMutex
    log    = zap.NewNop()
    helper = log
)

// Init 初始化全局日志；development 为 true 时输出彩色 console 格式
func Init(level string, development bool) error {
    lvl := zapcore.InfoLevel
    if level != "" {
        if err := lvl.Set(level); err != nil {
            return err
        }
    }

    var cfg zap.Config
    if development {
        cfg = zap.NewDevelopmentConfig()
        cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
    } else {
        cfg = zap.NewProductionConfig()
        cfg.EncoderConfig.TimeKey = "ts"
        cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
    }
    cfg.Level = zap.NewAtomicLevelAt(lvl)

    l, err := cfg.Build()
    if err != nil {
        return err
    }
    Set(l)
    return nil
}

// Set 替换全局 logger（测试里可注入 zaptest / observer）
func Set(l *zap.Logger) {
    if l == nil {
        l = zap.NewNop()
    }
    mu.Lock()
    log = l
    helper = l.WithOptions(zap.AddCallerSkip(1))
    mu.Unlock()
}

// L 返回当前全局 logger
func L() *zap.Logger {
    mu.RLock()
    defer mu.RUnlock()
    return log
}

// Named 返回带子系统名的 logger
func Named(name string) *zap.Logger { return L().Named(name) }

func h() *zap.Logger {
    mu.RLock()
    defer mu.RUnlock()
    return helper
}

func Debug(msg string, fields ...zap.Field) { h().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { h().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { h().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { h().Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { h().Fatal(msg, fields...) }

// Sync 刷新缓冲
func Sync() error { return L().Sync() }
