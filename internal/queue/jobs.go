// Package queue defines the background tasks ClientDesk hands to asynq.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/clientdesk/internal/model"
)

const (
	// DeliverNotificationTask carries one lifecycle notification to the inbox.
	DeliverNotificationTask = "notification:deliver"
	// InspectDocumentTask is scheduled each time a document record is created.
	InspectDocumentTask = "document:inspect"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// InspectPayload tells the worker which object belongs to which record.
type InspectPayload struct {
	RecordID  string `json:"record_id"`
	ObjectKey string `json:"object_key"`
	MimeType  string `json:"mime_type"`
}

// NewDeliverNotification builds a notification task. The notification id
// doubles as the asynq task id so a notification is queued at most once.
func NewDeliverNotification(n model.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return asynq.NewTask(DeliverNotificationTask, data, asynq.TaskID(n.ID), asynq.MaxRetry(10)), nil
}

// NewInspectDocument builds an inspection task.
func NewInspectDocument(p InspectPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(InspectDocumentTask, data, asynq.MaxRetry(5)), nil
}

// EnqueueNotification enqueues a notification delivery job.
func EnqueueNotification(ctx context.Context, client Enqueuer, n model.Notification) error {
	task, err := NewDeliverNotification(n)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue notification task: %w", err)
	}
	return nil
}

// EnqueueInspect enqueues a document inspection job.
func EnqueueInspect(ctx context.Context, client Enqueuer, p InspectPayload) error {
	task, err := NewInspectDocument(p)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue inspect task: %w", err)
	}
	return nil
}

// Inspections adapts an Enqueuer to lifecycle.InspectionQueue.
type Inspections struct {
	Client Enqueuer
}

// EnqueueInspection implements lifecycle.InspectionQueue.
func (i Inspections) EnqueueInspection(ctx context.Context, recordID, path, mimeType string) error {
	return EnqueueInspect(ctx, i.Client, InspectPayload{RecordID: recordID, ObjectKey: path, MimeType: mimeType})
}
