package client

// UndoKind 撤销记录类型
type UndoKind uint8

const (
	UndoUpdate UndoKind = iota
	UndoMove
	UndoDelete
)

func (k UndoKind) String() string {
	switch k {
	case UndoUpdate:
		return "update"
	case UndoMove:
		return "move"
	case UndoDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// UndoRecord 一条可逆操作
// UndoDelete 的 InversePatch 是重建系列所需的完整字段，其余类型是写回旧值的补丁
type UndoRecord struct {
	Kind         UndoKind
	TargetID     string
	Scope        string
	Date         string
	InversePatch Patch
	Description  string
}

// DefaultUndoCapacity 默认保留的撤销步数
const DefaultUndoCapacity = 20

// UndoBuffer 定长环形缓冲，写满后覆盖最旧的记录
// 由调用方持有并传给 Dispatcher，非并发安全
type UndoBuffer struct {
	records []UndoRecord
	head    int // 下一个写入位置
	size    int
}

// NewUndoBuffer capacity<=0 时使用 DefaultUndoCapacity
func NewUndoBuffer(capacity int) *UndoBuffer {
	if capacity <= 0 {
		capacity = DefaultUndoCapacity
	}
	return &UndoBuffer{records: make([]UndoRecord, capacity)}
}

func (b *UndoBuffer) Push(r UndoRecord) {
	b.records[b.head] = r
	b.head = (b.head + 1) % len(b.records)
	if b.size < len(b.records) {
		b.size++
	}
}

// Pop 取出最近一条
func (b *UndoBuffer) Pop() (UndoRecord, bool) {
	if b.size == 0 {
		return UndoRecord{}, false
	}
	b.head = (b.head - 1 + len(b.records)) % len(b.records)
	r := b.records[b.head]
	b.records[b.head] = UndoRecord{}
	b.size--
	return r, true
}

// Peek 查看最近一条但不取出
func (b *UndoBuffer) Peek() (UndoRecord, bool) {
	if b.size == 0 {
		return UndoRecord{}, false
	}
	return b.records[(b.head-1+len(b.records))%len(b.records)], true
}

func (b *UndoBuffer) Len() int { return b.size }

func (b *UndoBuffer) Cap() int { return len(b.records) }
