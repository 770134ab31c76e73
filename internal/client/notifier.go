package client

import "go.uber.org/zap"

// Notifier 面向用户的操作结果提示
type Notifier interface {
	Success(msg string)
	Info(msg string)
	Failure(msg string, err error)
}

// LogNotifier 把提示写入日志，用于无界面的调用方
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建 LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Success(msg string) { n.logger.Info(msg) }

func (n *LogNotifier) Info(msg string) { n.logger.Info(msg) }

func (n *LogNotifier) Failure(msg string, err error) { n.logger.Warn(msg, zap.Error(err)) }
