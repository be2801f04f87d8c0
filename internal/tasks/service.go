package tasks

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Service is the single place where validation, ownership and storage meet.
type Service struct {
	store  Store
	tracer trace.Tracer
}

func NewService(store Store) *Service {
	return &Service{
		store:  store,
		tracer: otel.Tracer("github.com/s1natex/owned-tasks-api/internal/tasks"),
	}
}

// CreateTask validates and stores a new task owned by owner.
func (s *Service) CreateTask(ctx context.Context, owner, title, description string) (t Task, err error) {
	ctx, span := s.start(ctx, "create", owner)
	defer func() { finish(span, "create", err) }()

	if err := ValidateTaskData(title, description); err != nil {
		return Task{}, err
	}
	return s.store.Create(ctx, owner, strings.TrimSpace(title), strings.TrimSpace(description))
}

// GetUserTasks returns the owner's tasks as ordered by the store.
func (s *Service) GetUserTasks(ctx context.Context, owner string, q ListQuery) (ts []Task, err error) {
	ctx, span := s.start(ctx, "list", owner)
	defer func() { finish(span, "list", err) }()

	return s.store.GetByOwner(ctx, owner, q)
}

// GetTaskByID returns ErrNotFound for an unknown id and ErrForbidden when
// the task belongs to someone else.
func (s *Service) GetTaskByID(ctx context.Context, id int64, requester string) (t Task, err error) {
	ctx, span := s.start(ctx, "get", requester)
	defer func() { finish(span, "get", err) }()

	return s.lookup(ctx, id, requester)
}

// UpdateTask applies p to a task the requester owns. Whenever a field is
// supplied, the resulting title/description pair is validated as a whole.
func (s *Service) UpdateTask(ctx context.Context, id int64, requester string, p TaskPatch) (t Task, err error) {
	ctx, span := s.start(ctx, "update", requester)
	defer func() { finish(span, "update", err) }()

	cur, err := s.lookup(ctx, id, requester)
	if err != nil {
		return Task{}, err
	}
	if p.empty() {
		return cur, nil
	}

	title, description := cur.Title, cur.Description
	if p.Title != nil {
		title = *p.Title
	}
	if p.Description != nil {
		description = *p.Description
	}
	if err := ValidateTaskData(title, description); err != nil {
		return Task{}, err
	}

	var out TaskPatch
	if p.Title != nil {
		v := strings.TrimSpace(*p.Title)
		out.Title = &v
	}
	if p.Description != nil {
		v := strings.TrimSpace(*p.Description)
		out.Description = &v
	}
	return s.store.Update(ctx, cur, out)
}

// DeleteTask removes a task the requester owns.
func (s *Service) DeleteTask(ctx context.Context, id int64, requester string) (err error) {
	ctx, span := s.start(ctx, "delete", requester)
	defer func() { finish(span, "delete", err) }()

	cur, err := s.lookup(ctx, id, requester)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, cur)
}

// Ping reports store health; stores without a remote resource are always healthy.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, id int64, requester string) (Task, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if err := CheckOwnership(t, requester); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *Service) start(ctx context.Context, op, user string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "tasks."+op, trace.WithAttributes(attribute.String("user.id", user)))
}

func finish(span trace.Span, op string, err error) {
	out := outcome(err)
	taskOperations.WithLabelValues(op, out).Inc()

	span.SetAttributes(attribute.String("tasks.outcome", out))
	if out == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
