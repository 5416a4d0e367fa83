// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentwire/a2a"
)

// GormTaskStore is a TaskStore backed by a GORM-supported database. The
// *gorm.DB is injected so the caller chooses the dialect (SQLite, Postgres,
// MySQL).
type GormTaskStore struct {
	db *gorm.DB
}

var _ TaskStore = (*GormTaskStore)(nil)

// NewGormTaskStore creates a GormTaskStore on an open database handle.
func NewGormTaskStore(db *gorm.DB) (*GormTaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	return &GormTaskStore{db: db}, nil
}

// Initialize migrates the task table.
func (s *GormTaskStore) Initialize(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&TaskModel{}); err != nil {
		return StoreError{Operation: "initialize", Err: err}
	}
	return nil
}

// Save persists a task, inserting or replacing by ID.
func (s *GormTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return ValidationError{TaskID: task.ID, Err: err}
	}

	model, err := toTaskModel(task)
	if err != nil {
		return StoreError{Operation: "save", TaskID: task.ID, Err: err}
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return StoreError{Operation: "save", TaskID: task.ID, Err: err}
	}
	return nil
}

// Get retrieves a task by ID.
func (s *GormTaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	var model TaskModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, a2a.TaskNotFoundError{TaskID: taskID}
	}
	if err != nil {
		return nil, StoreError{Operation: "get", TaskID: taskID, Err: err}
	}

	task, err := model.toTask()
	if err != nil {
		return nil, StoreError{Operation: "get", TaskID: taskID, Err: err}
	}
	return task, nil
}

// Delete removes a task by ID.
func (s *GormTaskStore) Delete(ctx context.Context, taskID string) error {
	if taskID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	res := s.db.WithContext(ctx).Delete(&TaskModel{}, "id = ?", taskID)
	if res.Error != nil {
		return StoreError{Operation: "delete", TaskID: taskID, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return a2a.TaskNotFoundError{TaskID: taskID}
	}
	return nil
}

// List returns tasks matching the query in (updated_at desc, id asc) order.
// The After cursor translates to a keyset condition on the same sort key so
// pages stay stable under concurrent writes.
func (s *GormTaskStore) List(ctx context.Context, query ListQuery) ([]*a2a.Task, error) {
	q := s.db.WithContext(ctx).Model(&TaskModel{}).
		Order("updated_at DESC").
		Order("id ASC")

	if len(query.States) > 0 {
		states := make([]string, len(query.States))
		for i, st := range query.States {
			states[i] = string(st)
		}
		q = q.Where("state IN ?", states)
	}
	if c := query.After; c != nil {
		q = q.Where("updated_at < ? OR (updated_at = ? AND id > ?)",
			c.UpdatedAt, c.UpdatedAt, c.ID)
	}
	if query.Limit > 0 {
		q = q.Limit(query.Limit)
	}

	var models []TaskModel
	if err := q.Find(&models).Error; err != nil {
		return nil, StoreError{Operation: "list", Err: err}
	}

	tasks := make([]*a2a.Task, len(models))
	for i := range models {
		task, err := models[i].toTask()
		if err != nil {
			return nil, StoreError{Operation: "list", TaskID: models[i].ID, Err: err}
		}
		tasks[i] = task
	}
	return tasks, nil
}

// Close closes the underlying database connection.
func (s *GormTaskStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return StoreError{Operation: "close", Err: err}
	}
	return sqlDB.Close()
}
