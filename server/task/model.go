// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/agentwire/a2a"
)

// TaskModel is the GORM row for a task. Structured fields (history,
// artifacts, metadata) are stored as JSON blobs; the columns the store
// queries on (state, updated_at, id) are first-class and indexed.
type TaskModel struct {
	ID            string    `gorm:"primaryKey;size:64"`
	ContextID     string    `gorm:"size:64;index"`
	State         string    `gorm:"size:32;index"`
	StatusMessage string    `gorm:"type:text"`
	StatusTime    time.Time `gorm:""`
	History       []byte    `gorm:"type:blob"`
	Artifacts     []byte    `gorm:"type:blob"`
	Metadata      []byte    `gorm:"type:blob"`
	CreatedAt     time.Time `gorm:""`
	UpdatedAt     time.Time `gorm:"index:idx_tasks_updated_at_id,priority:1"`
}

// TableName sets the table name for GORM.
func (TaskModel) TableName() string { return "a2a_tasks" }

func toTaskModel(task *a2a.Task) (*TaskModel, error) {
	m := &TaskModel{
		ID:            task.ID,
		ContextID:     task.ContextID,
		State:         string(task.Status.State),
		StatusMessage: task.Status.Message,
		StatusTime:    task.Status.Timestamp,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
	}

	var err error
	if len(task.History) > 0 {
		if m.History, err = json.Marshal(task.History); err != nil {
			return nil, fmt.Errorf("marshal history: %w", err)
		}
	}
	if len(task.Artifacts) > 0 {
		if m.Artifacts, err = json.Marshal(task.Artifacts); err != nil {
			return nil, fmt.Errorf("marshal artifacts: %w", err)
		}
	}
	if len(task.Metadata) > 0 {
		if m.Metadata, err = json.Marshal(task.Metadata); err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return m, nil
}

func (m *TaskModel) toTask() (*a2a.Task, error) {
	task := &a2a.Task{
		ID:        m.ID,
		ContextID: m.ContextID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskState(m.State),
			Message:   m.StatusMessage,
			Timestamp: m.StatusTime,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}

	if len(m.History) > 0 {
		if err := json.Unmarshal(m.History, &task.History); err != nil {
			return nil, fmt.Errorf("unmarshal history for task %s: %w", m.ID, err)
		}
	}
	if len(m.Artifacts) > 0 {
		if err := json.Unmarshal(m.Artifacts, &task.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshal artifacts for task %s: %w", m.ID, err)
		}
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &task.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for task %s: %w", m.ID, err)
		}
	}
	return task, nil
}

// PushConfigModel is the GORM row for a push notification config, keyed by
// (task ID, config ID).
type PushConfigModel struct {
	TaskID         string `gorm:"primaryKey;size:64"`
	ConfigID       string `gorm:"primaryKey;size:64"`
	URL            string `gorm:"type:text"`
	Token          string `gorm:"type:text"`
	Authentication []byte `gorm:"type:blob"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName sets the table name for GORM.
func (PushConfigModel) TableName() string { return "a2a_push_configs" }

func toPushConfigModel(taskID string, config *a2a.PushNotificationConfig) (*PushConfigModel, error) {
	m := &PushConfigModel{
		TaskID:   taskID,
		ConfigID: config.ID,
		URL:      config.URL,
		Token:    config.Token,
	}
	if config.Authentication != nil {
		raw, err := json.Marshal(config.Authentication)
		if err != nil {
			return nil, fmt.Errorf("marshal authentication: %w", err)
		}
		m.Authentication = raw
	}
	return m, nil
}

func (m *PushConfigModel) toConfig() (*a2a.PushNotificationConfig, error) {
	config := &a2a.PushNotificationConfig{
		ID:    m.ConfigID,
		URL:   m.URL,
		Token: m.Token,
	}
	if len(m.Authentication) > 0 {
		if err := json.Unmarshal(m.Authentication, &config.Authentication); err != nil {
			return nil, fmt.Errorf("unmarshal authentication for config %s: %w", m.ConfigID, err)
		}
	}
	return config, nil
}
