package client

import (
	"time"

	"sashi-calendar/backend/internal/dto"
)

// ConflictPolicy 后台同步时本地缓存与服务端读结果的合并策略
type ConflictPolicy interface {
	Resolve(local, remote dto.InstanceResponse) dto.InstanceResponse
}

// ConflictPolicyFunc 函数适配器
type ConflictPolicyFunc func(local, remote dto.InstanceResponse) dto.InstanceResponse

func (f ConflictPolicyFunc) Resolve(local, remote dto.InstanceResponse) dto.InstanceResponse {
	return f(local, remote)
}

// RemoteWins 服务端结果总是覆盖本地（默认策略）
var RemoteWins ConflictPolicy = ConflictPolicyFunc(func(_, remote dto.InstanceResponse) dto.InstanceResponse {
	return remote
})

// LastWriteWins 比较 updated_at，本地更新时保留本地；无法解析时服务端优先
var LastWriteWins ConflictPolicy = ConflictPolicyFunc(func(local, remote dto.InstanceResponse) dto.InstanceResponse {
	lt, err := time.Parse(time.RFC3339, local.UpdatedAt)
	if err != nil {
		return remote
	}
	rt, err := time.Parse(time.RFC3339, remote.UpdatedAt)
	if err != nil {
		return remote
	}
	if lt.After(rt) {
		return local
	}
	return remote
})
