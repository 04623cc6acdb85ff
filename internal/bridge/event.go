package bridge

import (
	"encoding/json"
)

// EventType is the Todoist webhook event name. Only the item lifecycle
// events are handled; anything else passes through as a no-op so new event
// types never break deliveries.
type EventType string

const (
	EventItemAdded       EventType = "item:added"
	EventItemUpdated     EventType = "item:updated"
	EventItemCompleted   EventType = "item:completed"
	EventItemUncompleted EventType = "item:uncompleted"
	EventItemDeleted     EventType = "item:deleted"
)

// webhookEnvelope is the wire shape of a Todoist webhook delivery.
type webhookEnvelope struct {
	EventName EventType       `json:"event_name"`
	UserID    json.Number     `json:"user_id"`
	Version   string          `json:"version"`
	EventData json.RawMessage `json:"event_data"`
}

// TaskDue is the due object Todoist attaches to a task, null when unset.
type TaskDue struct {
	Date        string `json:"date"`
	IsRecurring bool   `json:"is_recurring"`
	String      string `json:"string"`
}

// TaskSnapshot is the task's attributes at the time of the event. The core
// only needs the ID; the rest feeds the Notion page properties.
type TaskSnapshot struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"`
	ProjectID   string   `json:"project_id"`
	Checked     bool     `json:"checked"`
	Due         *TaskDue `json:"due"`
}
