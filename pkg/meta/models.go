package meta

import (
	"time"

	"gorm.io/datatypes"
)

// NodeModel 是节点注册表中的一行
// Ordinal 决定发现时的遍历顺序 (越小越先探测)
type NodeModel struct {
	Name string `gorm:"primaryKey;type:varchar(100)"`

	// Kind: disk | s3 | memory
	Kind string `gorm:"type:varchar(16);not null"`

	// Root: disk 节点的 home 目录，s3 节点的 Key 前缀
	Root string `gorm:"type:text"`

	Ordinal int64 `gorm:"index;not null;default:0"`

	// Online 为 false 时节点不参与发现
	Online bool `gorm:"not null"`

	// Options: 类型相关的连接参数 (bucket, endpoint, region ...)
	Options datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (NodeModel) TableName() string {
	return "nodes"
}

// NodeOptions 是 NodeModel.Options 的结构化形式
// 凭据不入库，s3 节点使用默认的 AWS 凭据链
type NodeOptions struct {
	Bucket   string `json:"bucket,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Region   string `json:"region,omitempty"`
}

// 传输状态
const (
	StatusOK          = "ok"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// TransferModel 是传输台账中的一行，每次 CopyRecursive 一条
type TransferModel struct {
	ID string `gorm:"primaryKey;type:char(36)"`

	SourceNode string `gorm:"index;type:varchar(100)"`
	SourcePath string `gorm:"type:text"`
	DestNode   string `gorm:"index;type:varchar(100)"`
	DestPath   string `gorm:"type:text"`

	Includes string `gorm:"type:text"`
	Excludes string `gorm:"type:text"`

	Count  int    `gorm:"not null;default:0"`
	Status string `gorm:"index;type:varchar(16);not null"`
	Error  string `gorm:"type:text"`

	StartedAt  time.Time `gorm:"index"`
	DurationMs int64

	CreatedAt time.Time
}

func (TransferModel) TableName() string {
	return "transfers"
}

// Models 返回需要迁移的所有表
func Models() []any {
	return []any{&NodeModel{}, &TransferModel{}}
}
