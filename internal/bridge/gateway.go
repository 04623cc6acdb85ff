package bridge

import (
	"context"
	"errors"
	"fmt"
)

var ErrGatewayNotReady = errors.New("notion gateway not ready")

// PageWriter is the write surface of the remote workspace. The HTTP client
// in this package implements it against the Notion API; tests use an
// in-memory fake.
type PageWriter interface {
	CreatePage(ctx context.Context, task TaskSnapshot) (string, error)
	UpdatePage(ctx context.Context, pageID string, task TaskSnapshot) error
	SetCompletion(ctx context.Context, pageID string, completed bool) error
	ArchivePage(ctx context.Context, pageID string) error
}

type GatewayOptions struct {
	Writer  PageWriter
	Mapping *MappingStore
	Logger  Logger
}

// Gateway mirrors Todoist task events onto Notion pages, consulting the
// mapping store to decide between creating and updating. Every operation is
// safe to invoke more than once for the same task: webhook delivery is
// at-least-once, not exactly-once.
type Gateway struct {
	writer  PageWriter
	mapping *MappingStore
	logger  Logger
}

func NewGateway(opts GatewayOptions) *Gateway {
	mapping := opts.Mapping
	if mapping == nil {
		mapping = NewMappingStore()
	}
	return &Gateway{
		writer:  opts.Writer,
		mapping: mapping,
		logger:  opts.Logger,
	}
}

// Ready reports whether a page writer is configured. Operations on an
// unready gateway return ErrGatewayNotReady without touching the remote
// side, so callers can tell "nothing to do" from "tried and failed".
func (g *Gateway) Ready() bool {
	return g != nil && g.writer != nil
}

// CreateTask mirrors a new Todoist task as a Notion page. A task that
// already has a mapping returns its existing page ID instead of creating a
// duplicate.
func (g *Gateway) CreateTask(ctx context.Context, task TaskSnapshot) (string, error) {
	if !g.Ready() {
		return "", ErrGatewayNotReady
	}
	if task.ID == "" {
		return "", fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}
	if pageID, ok := g.mapping.RemoteID(task.ID); ok {
		g.logf("task %s already mapped to notion page %s", task.ID, pageID)
		return pageID, nil
	}
	pageID, err := g.writer.CreatePage(ctx, task)
	if err != nil {
		return "", err
	}
	g.mapping.Add(task.ID, pageID)
	g.logf("created notion page %s for task %s (%q)", pageID, task.ID, task.Content)
	return pageID, nil
}

// UpdateTask refreshes the mapped page. An unmapped task is treated as a
// first sighting and created instead.
func (g *Gateway) UpdateTask(ctx context.Context, task TaskSnapshot) error {
	if !g.Ready() {
		return ErrGatewayNotReady
	}
	if task.ID == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}
	pageID, ok := g.mapping.RemoteID(task.ID)
	if !ok {
		g.logf("no mapping for task %s, creating instead of updating", task.ID)
		_, err := g.CreateTask(ctx, task)
		return err
	}
	return g.writer.UpdatePage(ctx, pageID, task)
}

// CompleteTask marks the mapped page completed, creating it first when the
// task was never seen.
func (g *Gateway) CompleteTask(ctx context.Context, task TaskSnapshot) error {
	if !g.Ready() {
		return ErrGatewayNotReady
	}
	if task.ID == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}
	pageID, ok := g.mapping.RemoteID(task.ID)
	if !ok {
		g.logf("no mapping for task %s, creating before completing", task.ID)
		created, err := g.CreateTask(ctx, task)
		if err != nil {
			return err
		}
		pageID = created
	}
	return g.writer.SetCompletion(ctx, pageID, true)
}

// UncompleteTask clears the completion state. The fallback for an unmapped
// task is a plain create: new pages start incomplete, so no state is forced.
func (g *Gateway) UncompleteTask(ctx context.Context, task TaskSnapshot) error {
	if !g.Ready() {
		return ErrGatewayNotReady
	}
	if task.ID == "" {
		return fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}
	pageID, ok := g.mapping.RemoteID(task.ID)
	if !ok {
		g.logf("no mapping for task %s, creating instead of uncompleting", task.ID)
		_, err := g.CreateTask(ctx, task)
		return err
	}
	return g.writer.SetCompletion(ctx, pageID, false)
}

// DeleteTask archives the mapped page and drops the mapping. A task with no
// mapping is already satisfied: success, no remote call.
func (g *Gateway) DeleteTask(ctx context.Context, task TaskSnapshot) error {
	if !g.Ready() {
		return ErrGatewayNotReady
	}
	pageID, ok := g.mapping.RemoteID(task.ID)
	if !ok {
		g.logf("no mapping for task %s, nothing to delete", task.ID)
		return nil
	}
	if err := g.writer.ArchivePage(ctx, pageID); err != nil {
		return err
	}
	g.mapping.RemoveBySourceID(task.ID)
	g.logf("archived notion page %s for deleted task %s", pageID, task.ID)
	return nil
}

func (g *Gateway) logf(format string, args ...any) {
	if g.logger == nil {
		return
	}
	g.logger.Printf(format, args...)
}
