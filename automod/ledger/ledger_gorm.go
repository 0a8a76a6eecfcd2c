package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/aegis-bot/warden/automod/config"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ViolationRow struct {
	ID              string            `gorm:"primaryKey"`
	GroupID         string            `gorm:"not null;index:idx_violations_author,priority:1"`
	AuthorID        string            `gorm:"not null;index:idx_violations_author,priority:2"`
	ChannelID       string
	MessageID       string
	ViolationType   string            `gorm:"not null"`
	Kinds           []string          `gorm:"serializer:json;type:text"`
	Metadata        map[string]string `gorm:"serializer:json;type:text"`
	ContentSnapshot string            `gorm:"type:text"`
	ActionTaken     string            `gorm:"not null"`
	CreatedAt       time.Time         `gorm:"not null;index:idx_violations_author,priority:3"`
}

func (ViolationRow) TableName() string {
	return "automod_violations"
}

type GormStore struct {
	db *gorm.DB
}

var (
	_ Store  = (*GormStore)(nil)
	_ Lister = (*GormStore)(nil)
)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ViolationRow{}); err != nil {
		return nil, fmt.Errorf("migrating violations table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Append(ctx context.Context, rec *ViolationRecord) (string, error) {
	if err := prepare(rec); err != nil {
		return "", err
	}
	kinds := make([]string, len(rec.Kinds))
	for i, k := range rec.Kinds {
		kinds[i] = string(k)
	}
	row := ViolationRow{
		ID:              rec.ID,
		GroupID:         rec.GroupID,
		AuthorID:        rec.AuthorID,
		ChannelID:       rec.ChannelID,
		MessageID:       rec.MessageID,
		ViolationType:   string(rec.PrimaryKind()),
		Kinds:           kinds,
		Metadata:        rec.Metadata,
		ContentSnapshot: rec.ContentSnapshot,
		ActionTaken:     string(rec.ActionTaken),
		CreatedAt:       rec.CreatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLedgerWriteFailed, err)
	}
	return rec.ID, nil
}

func (s *GormStore) CountSince(ctx context.Context, groupID, authorID string, since time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&ViolationRow{}).
		Where("group_id = ? AND author_id = ? AND created_at >= ?", groupID, authorID, since.UTC()).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *GormStore) Recent(ctx context.Context, groupID, authorID string, limit int) ([]ViolationRecord, error) {
	var rows []ViolationRow
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND author_id = ?", groupID, authorID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ViolationRecord, 0, len(rows))
	for _, row := range rows {
		kinds := make([]config.FilterKind, len(row.Kinds))
		for i, k := range row.Kinds {
			kinds[i] = config.FilterKind(k)
		}
		out = append(out, ViolationRecord{
			ID:              row.ID,
			GroupID:         row.GroupID,
			AuthorID:        row.AuthorID,
			ChannelID:       row.ChannelID,
			MessageID:       row.MessageID,
			Kinds:           kinds,
			Metadata:        row.Metadata,
			ContentSnapshot: row.ContentSnapshot,
			ActionTaken:     ActionTaken(row.ActionTaken),
			CreatedAt:       row.CreatedAt,
		})
	}
	return out, nil
}
