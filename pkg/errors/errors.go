package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：系列已被其他请求修改（version 不匹配）
var ErrOptimisticLock = errors.New("事件已被其他操作修改，请刷新后重试")
