package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database row for a group's configuration. The nested sections are stored as JSON columns.
type GroupConfigRow struct {
	GroupID    string     `gorm:"primaryKey"`
	Enabled    bool       `gorm:"not null;default:false"`
	Filters    Filters    `gorm:"serializer:json;type:text"`
	Exemptions Exemptions `gorm:"serializer:json;type:text"`
	Escalation Escalation `gorm:"serializer:json;type:text"`
	Actions    Actions    `gorm:"serializer:json;type:text"`
	LogChannel string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (GroupConfigRow) TableName() string {
	return "automod_config"
}

func rowFromConfig(groupID string, c *GuildConfig) GroupConfigRow {
	return GroupConfigRow{
		GroupID:    groupID,
		Enabled:    c.Enabled,
		Filters:    c.Filters,
		Exemptions: c.Exemptions,
		Escalation: c.Escalation,
		Actions:    c.Actions,
		LogChannel: c.LogChannel,
	}
}

func (r *GroupConfigRow) config() *GuildConfig {
	c := &GuildConfig{
		Enabled:    r.Enabled,
		Filters:    r.Filters,
		Exemptions: r.Exemptions,
		Escalation: r.Escalation,
		Actions:    r.Actions,
		LogChannel: r.LogChannel,
	}
	return c.Clone()
}

// Called after any successful configuration change, with the affected group.
type ChangeHook func(ctx context.Context, groupID string)

// Persistent configuration store, and the configuration API exposed to the command surface.
type GormStore struct {
	db       *gorm.DB
	logger   *slog.Logger
	onChange []ChangeHook
}

var _ Provider = (*GormStore)(nil)

func NewGormStore(db *gorm.DB, logger *slog.Logger) (*GormStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&GroupConfigRow{}); err != nil {
		return nil, fmt.Errorf("migrating config table: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With("component", "config-store"),
	}, nil
}

// Registers a hook run after every change. Typically the engine's cache invalidation.
func (s *GormStore) OnChange(hook ChangeHook) {
	s.onChange = append(s.onChange, hook)
}

func (s *GormStore) changed(ctx context.Context, groupID string) {
	for _, hook := range s.onChange {
		hook(ctx, groupID)
	}
}

func (s *GormStore) GetConfig(ctx context.Context, groupID string) (*GuildConfig, error) {
	var row GroupConfigRow
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return row.config(), nil
}

func (s *GormStore) upsert(ctx context.Context, groupID string, c *GuildConfig) error {
	row := rowFromConfig(groupID, c)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "filters", "exemptions", "escalation", "actions", "log_channel", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving config for group %s: %w", groupID, err)
	}
	s.changed(ctx, groupID)
	return nil
}

// read-modify-write of a single group's config
func (s *GormStore) update(ctx context.Context, groupID string, fn func(c *GuildConfig) error) error {
	c, err := s.GetConfig(ctx, groupID)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return s.upsert(ctx, groupID, c)
}

// Replaces the full configuration of a group.
func (s *GormStore) Configure(ctx context.Context, groupID string, c *GuildConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := s.upsert(ctx, groupID, c); err != nil {
		return err
	}
	s.logger.Info("updated automod config", "group", groupID)
	return nil
}

// Turns moderation on, resetting the group to the default filters and thresholds.
func (s *GormStore) Enable(ctx context.Context, groupID string) error {
	c := Default()
	c.Enabled = true
	if err := s.upsert(ctx, groupID, c); err != nil {
		return err
	}
	s.logger.Info("enabled automod", "group", groupID)
	return nil
}

// Turns moderation off, keeping the rest of the configuration.
func (s *GormStore) Disable(ctx context.Context, groupID string) error {
	err := s.update(ctx, groupID, func(c *GuildConfig) error {
		c.Enabled = false
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("disabled automod", "group", groupID)
	return nil
}

func (s *GormStore) UpdateFilter(ctx context.Context, groupID string, kind FilterKind, enabled bool) error {
	err := s.update(ctx, groupID, func(c *GuildConfig) error {
		return c.Filters.SetEnabled(kind, enabled)
	})
	if err != nil {
		return err
	}
	s.logger.Info("updated filter", "group", groupID, "filter", kind, "enabled", enabled)
	return nil
}

func (s *GormStore) SetLogChannel(ctx context.Context, groupID, channelID string) error {
	err := s.update(ctx, groupID, func(c *GuildConfig) error {
		c.LogChannel = channelID
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("set log channel", "group", groupID, "channel", channelID)
	return nil
}

func (s *GormStore) UpdateExemption(ctx context.Context, groupID string, t ExemptionType, targetID string, add bool) error {
	err := s.update(ctx, groupID, func(c *GuildConfig) error {
		return c.Exemptions.Update(t, targetID, add)
	})
	if err != nil {
		return err
	}
	s.logger.Info("updated exemption", "group", groupID, "type", t, "target", targetID, "add", add)
	return nil
}
