// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentwire/a2a"
)

// InMemoryPushConfigStore is an in-memory PushConfigStore.
type InMemoryPushConfigStore struct {
	mu      sync.RWMutex
	configs map[string]map[string]*a2a.PushNotificationConfig
}

var _ PushConfigStore = (*InMemoryPushConfigStore)(nil)

// NewInMemoryPushConfigStore creates an InMemoryPushConfigStore.
func NewInMemoryPushConfigStore() *InMemoryPushConfigStore {
	return &InMemoryPushConfigStore{
		configs: make(map[string]map[string]*a2a.PushNotificationConfig),
	}
}

// Set inserts or replaces a config for the task. An empty config ID is
// assigned a fresh UUID; the stored config (with its final ID) is written
// back to the caller's struct.
func (s *InMemoryPushConfigStore) Set(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.ID == "" {
		config.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.configs[taskID]
	if byID == nil {
		byID = make(map[string]*a2a.PushNotificationConfig)
		s.configs[taskID] = byID
	}
	stored := *config
	byID[config.ID] = &stored
	return nil
}

// Get retrieves one config.
func (s *InMemoryPushConfigStore) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	config, ok := s.configs[taskID][configID]
	if !ok {
		return nil, a2a.ConfigNotFoundError{TaskID: taskID, ConfigID: configID}
	}
	out := *config
	return &out, nil
}

// List returns all configs for the task, ordered by config ID.
func (s *InMemoryPushConfigStore) List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := s.configs[taskID]
	out := make([]*a2a.PushNotificationConfig, 0, len(byID))
	for _, config := range byID {
		c := *config
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *a2a.PushNotificationConfig) int {
		return cmpString(a.ID, b.ID)
	})
	return out, nil
}

// Delete removes one config.
func (s *InMemoryPushConfigStore) Delete(ctx context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.configs[taskID]
	if _, ok := byID[configID]; !ok {
		return a2a.ConfigNotFoundError{TaskID: taskID, ConfigID: configID}
	}
	delete(byID, configID)
	if len(byID) == 0 {
		delete(s.configs, taskID)
	}
	return nil
}

// Initialize is a no-op for the in-memory store.
func (s *InMemoryPushConfigStore) Initialize(ctx context.Context) error {
	return nil
}

// Close clears the in-memory table.
func (s *InMemoryPushConfigStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = make(map[string]map[string]*a2a.PushNotificationConfig)
	return nil
}

// GormPushConfigStore is a PushConfigStore backed by a GORM-supported
// database.
type GormPushConfigStore struct {
	db *gorm.DB
}

var _ PushConfigStore = (*GormPushConfigStore)(nil)

// NewGormPushConfigStore creates a GormPushConfigStore on an open database
// handle.
func NewGormPushConfigStore(db *gorm.DB) (*GormPushConfigStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	return &GormPushConfigStore{db: db}, nil
}

// Initialize migrates the push config table.
func (s *GormPushConfigStore) Initialize(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&PushConfigModel{}); err != nil {
		return StoreError{Operation: "initialize", Err: err}
	}
	return nil
}

// Set inserts or replaces a config for the task. An empty config ID is
// assigned a fresh UUID.
func (s *GormPushConfigStore) Set(ctx context.Context, taskID string, config *a2a.PushNotificationConfig) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.ID == "" {
		config.ID = uuid.NewString()
	}

	model, err := toPushConfigModel(taskID, config)
	if err != nil {
		return StoreError{Operation: "set", TaskID: taskID, Err: err}
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}, {Name: "config_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return StoreError{Operation: "set", TaskID: taskID, Err: err}
	}
	return nil
}

// Get retrieves one config.
func (s *GormPushConfigStore) Get(ctx context.Context, taskID, configID string) (*a2a.PushNotificationConfig, error) {
	var model PushConfigModel
	err := s.db.WithContext(ctx).
		First(&model, "task_id = ? AND config_id = ?", taskID, configID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, a2a.ConfigNotFoundError{TaskID: taskID, ConfigID: configID}
	}
	if err != nil {
		return nil, StoreError{Operation: "get", TaskID: taskID, Err: err}
	}
	return model.toConfig()
}

// List returns all configs for the task, ordered by config ID.
func (s *GormPushConfigStore) List(ctx context.Context, taskID string) ([]*a2a.PushNotificationConfig, error) {
	var models []PushConfigModel
	err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("config_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, StoreError{Operation: "list", TaskID: taskID, Err: err}
	}

	out := make([]*a2a.PushNotificationConfig, len(models))
	for i := range models {
		config, err := models[i].toConfig()
		if err != nil {
			return nil, StoreError{Operation: "list", TaskID: taskID, Err: err}
		}
		out[i] = config
	}
	return out, nil
}

// Delete removes one config.
func (s *GormPushConfigStore) Delete(ctx context.Context, taskID, configID string) error {
	res := s.db.WithContext(ctx).
		Delete(&PushConfigModel{}, "task_id = ? AND config_id = ?", taskID, configID)
	if res.Error != nil {
		return StoreError{Operation: "delete", TaskID: taskID, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return a2a.ConfigNotFoundError{TaskID: taskID, ConfigID: configID}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *GormPushConfigStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return StoreError{Operation: "close", Err: err}
	}
	return sqlDB.Close()
}
