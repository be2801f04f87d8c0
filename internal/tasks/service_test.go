package tasks

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(store), store
}

func ptr(s string) *string { return &s }

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	created, err := svc.CreateTask(ctx, "U1", "Buy milk", "2%")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID <= 0 || created.Owner != "U1" || created.Title != "Buy milk" || created.Description != "2%" {
		t.Fatalf("unexpected created task: %+v", created)
	}

	list, err := svc.GetUserTasks(ctx, "U1", ListQuery{})
	if err != nil {
		t.Fatalf("list U1: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("expected U1 to see its task, got %+v", list)
	}

	list, err = svc.GetUserTasks(ctx, "U2", ListQuery{})
	if err != nil {
		t.Fatalf("list U2: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("U2 should see nothing, got %+v", list)
	}

	if _, err := svc.GetTaskByID(ctx, created.ID, "U2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for U2 get, got %v", err)
	}

	updated, err := svc.UpdateTask(ctx, created.ID, "U1", TaskPatch{Title: ptr("Buy oat milk")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Buy oat milk" || updated.Description != "2%" || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("unexpected updated task: %+v", updated)
	}

	if err := svc.DeleteTask(ctx, created.ID, "U2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for U2 delete, got %v", err)
	}
	if err := svc.DeleteTask(ctx, created.ID, "U1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetTaskByID(ctx, created.ID, "U1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestService_CreateTrimsAndValidates(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	got, err := svc.CreateTask(ctx, "u1", "  Buy milk  ", "  2 liters \n")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Title != "Buy milk" || got.Description != "2 liters" {
		t.Fatalf("expected trimmed fields, got %+v", got)
	}

	for _, title := range []string{"", "   ", "ab", strings.Repeat("x", MaxTitleLen+1)} {
		if _, err := svc.CreateTask(ctx, "u1", title, ""); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("title %q: expected ErrInvalidInput, got %v", title, err)
		}
	}
	if _, err := svc.CreateTask(ctx, "u1", "abc", strings.Repeat("d", MaxDescriptionLen+1)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for long description, got %v", err)
	}

	list, _ := store.GetByOwner(ctx, "u1", ListQuery{})
	if len(list) != 1 {
		t.Fatalf("rejected tasks must not be stored, have %d", len(list))
	}
}

func TestService_ForbiddenLeavesTaskUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	orig, _ := svc.CreateTask(ctx, "u1", "Buy milk", "x")

	if _, err := svc.UpdateTask(ctx, orig.ID, "u2", TaskPatch{Title: ptr("Buy oat milk")}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("update: expected ErrForbidden, got %v", err)
	}
	if err := svc.DeleteTask(ctx, orig.ID, "u2"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("delete: expected ErrForbidden, got %v", err)
	}
	stored, err := store.GetByID(ctx, orig.ID)
	if err != nil || stored != orig {
		t.Fatalf("task changed by forbidden calls: %+v err=%v", stored, err)
	}
}

func TestService_ListIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	for _, title := range []string{"one task", "two task", "three task"} {
		_, _ = svc.CreateTask(ctx, "u1", title, "")
	}

	first, err := svc.GetUserTasks(ctx, "u1", ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	second, err := svc.GetUserTasks(ctx, "u1", ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(first, second) {
		t.Fatalf("repeated listing differs:\n%v\n%v", first, second)
	}
	if first[0].Title != "three task" {
		t.Fatalf("expected newest first, got %q", first[0].Title)
	}
}

func TestService_GetMissing(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.GetTaskByID(context.Background(), 12345, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_UpdateRules(t *testing.T) {
	ctx := context.Background()

	t.Run("description only keeps title", func(t *testing.T) {
		svc, _ := newTestService()
		orig, _ := svc.CreateTask(ctx, "u1", "Buy milk", "old")

		got, err := svc.UpdateTask(ctx, orig.ID, "u1", TaskPatch{Description: ptr("  new  ")})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.Title != "Buy milk" || got.Description != "new" {
			t.Fatalf("unexpected result: %+v", got)
		}
	})

	t.Run("invalid title rejected and nothing written", func(t *testing.T) {
		svc, store := newTestService()
		orig, _ := svc.CreateTask(ctx, "u1", "Buy milk", "")

		if _, err := svc.UpdateTask(ctx, orig.ID, "u1", TaskPatch{Title: ptr("ab")}); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		stored, _ := store.GetByID(ctx, orig.ID)
		if stored.Title != "Buy milk" {
			t.Fatalf("task changed after rejected update: %+v", stored)
		}
	})

	t.Run("long description rejected", func(t *testing.T) {
		svc, _ := newTestService()
		orig, _ := svc.CreateTask(ctx, "u1", "Buy milk", "")

		_, err := svc.UpdateTask(ctx, orig.ID, "u1", TaskPatch{Description: ptr(strings.Repeat("d", MaxDescriptionLen+1))})
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "description" {
			t.Fatalf("expected description ValidationError, got %v", err)
		}
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		svc, _ := newTestService()
		orig, _ := svc.CreateTask(ctx, "u1", "Buy milk", "x")

		got, err := svc.UpdateTask(ctx, orig.ID, "u1", TaskPatch{})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got != orig {
			t.Fatalf("expected unchanged task, got %+v", got)
		}
	})

	t.Run("forbidden is checked before validation", func(t *testing.T) {
		svc, _ := newTestService()
		orig, _ := svc.CreateTask(ctx, "u1", "Buy milk", "")

		if _, err := svc.UpdateTask(ctx, orig.ID, "u2", TaskPatch{Title: ptr("")}); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("missing task", func(t *testing.T) {
		svc, _ := newTestService()
		if _, err := svc.UpdateTask(ctx, 99, "u1", TaskPatch{Title: ptr("Buy milk")}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestService_ListUsesQuery(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	for _, title := range []string{"Buy milk", "Call mom", "Buy bread"} {
		if _, err := svc.CreateTask(ctx, "u1", title, ""); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := svc.GetUserTasks(ctx, "u1", ListQuery{Search: "buy", Ordering: Ordering{Field: "title"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Title != "Buy bread" || list[1].Title != "Buy milk" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestService_Ping(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.Ping(context.Background()); err != nil {
		t.Fatalf("memory store should always be healthy, got %v", err)
	}

	sqlite := NewService(newTempDB(t))
	if err := sqlite.Ping(context.Background()); err != nil {
		t.Fatalf("sqlite ping: %v", err)
	}
}

func TestService_RecordsOperationMetrics(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	okBefore := testutil.ToFloat64(taskOperations.WithLabelValues("create", "ok"))
	badBefore := testutil.ToFloat64(taskOperations.WithLabelValues("create", "invalid_input"))
	forbiddenBefore := testutil.ToFloat64(taskOperations.WithLabelValues("get", "forbidden"))

	task, _ := svc.CreateTask(ctx, "u1", "Buy milk", "")
	_, _ = svc.CreateTask(ctx, "u1", "", "")
	_, _ = svc.GetTaskByID(ctx, task.ID, "u2")

	if got := testutil.ToFloat64(taskOperations.WithLabelValues("create", "ok")) - okBefore; got != 1 {
		t.Fatalf("create ok delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(taskOperations.WithLabelValues("create", "invalid_input")) - badBefore; got != 1 {
		t.Fatalf("create invalid_input delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(taskOperations.WithLabelValues("get", "forbidden")) - forbiddenBefore; got != 1 {
		t.Fatalf("get forbidden delta = %v, want 1", got)
	}
}

func TestService_RecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	svc := NewService(NewMemoryStore())
	task, _ := svc.CreateTask(ctx, "u1", "Buy milk", "")
	_ = svc.DeleteTask(ctx, task.ID, "u1")
	_, _ = svc.GetTaskByID(ctx, task.ID, "u1")

	spans := exp.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	want := []string{"tasks.create", "tasks.delete", "tasks.get"}
	for i, s := range spans {
		if s.Name != want[i] {
			t.Fatalf("span %d: got %q, want %q", i, s.Name, want[i])
		}
		// domain outcomes are not span errors
		if s.Status.Code == codes.Error {
			t.Fatalf("span %q unexpectedly marked as error", s.Name)
		}
	}

	var outcomeAttr string
	for _, kv := range spans[2].Attributes {
		if kv.Key == "tasks.outcome" {
			outcomeAttr = kv.Value.AsString()
		}
	}
	if outcomeAttr != "not_found" {
		t.Fatalf("expected not_found outcome on get span, got %q", outcomeAttr)
	}
}
