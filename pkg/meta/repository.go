package meta

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNodeNotFound = errors.New("node not found in registry")

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 节点注册表 (Nodes)
// -----------------------------------------------------------------------------

// EncodeOptions 把 NodeOptions 转成 JSON 列
func EncodeOptions(o NodeOptions) (datatypes.JSON, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node options: %w", err)
	}
	return datatypes.JSON(data), nil
}

// DecodeOptions 解析 JSON 列，空列返回零值
func (n *NodeModel) DecodeOptions() (NodeOptions, error) {
	var o NodeOptions
	if len(n.Options) == 0 {
		return o, nil
	}
	if err := json.Unmarshal(n.Options, &o); err != nil {
		return o, fmt.Errorf("invalid options for node %s: %w", n.Name, err)
	}
	return o, nil
}

// UpsertNode 注册或更新节点
// 新节点排到最后 (Ordinal = max + 1)，已有节点保持原来的位置
func (r *Repository) UpsertNode(ctx context.Context, n *NodeModel) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing NodeModel
		err := tx.Where("name = ?", n.Name).First(&existing).Error
		switch {
		case err == nil:
			n.Ordinal = existing.Ordinal
			n.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			var maxOrdinal sql.NullInt64
			if err := tx.Model(&NodeModel{}).Select("MAX(ordinal)").Row().Scan(&maxOrdinal); err != nil {
				return fmt.Errorf("failed to read node ordinal: %w", err)
			}
			n.Ordinal = 0
			if maxOrdinal.Valid {
				n.Ordinal = maxOrdinal.Int64 + 1
			}
		default:
			return err
		}

		// SQL: INSERT ... ON CONFLICT (name) DO UPDATE SET kind, root, online, options
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "root", "online", "options", "updated_at"}),
		}).Create(n).Error
		if err != nil {
			return fmt.Errorf("failed to upsert node: %w", err)
		}
		return nil
	})
}

func (r *Repository) GetNode(ctx context.Context, name string) (*NodeModel, error) {
	var n NodeModel
	err := r.db.GetConn().WithContext(ctx).Where("name = ?", name).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListNodes 按 Ordinal、Name 排序返回所有节点 (包括离线节点)
func (r *Repository) ListNodes(ctx context.Context) ([]NodeModel, error) {
	var nodes []NodeModel
	err := r.db.GetConn().WithContext(ctx).
		Order("ordinal ASC").
		Order("name ASC").
		Find(&nodes).Error
	return nodes, err
}

// SetOnline 修改节点的在线状态
func (r *Repository) SetOnline(ctx context.Context, name string, online bool) error {
	result := r.db.GetConn().WithContext(ctx).
		Model(&NodeModel{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"online":     online,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (r *Repository) DeleteNode(ctx context.Context, name string) error {
	result := r.db.GetConn().WithContext(ctx).Where("name = ?", name).Delete(&NodeModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNodeNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------
// 2. 传输台账 (Transfers)
// -----------------------------------------------------------------------------

func (r *Repository) RecordTransfer(ctx context.Context, t *TransferModel) error {
	if err := r.db.GetConn().WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	return nil
}

// ListTransfers 返回最近的传输记录，node 非空时只看涉及该节点的
func (r *Repository) ListTransfers(ctx context.Context, node string, limit int) ([]TransferModel, error) {
	q := r.db.GetConn().WithContext(ctx).Model(&TransferModel{})
	if node != "" {
		q = q.Where("source_node = ? OR dest_node = ?", node, node)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []TransferModel
	err := q.Order("started_at DESC").Find(&out).Error
	return out, err
}
