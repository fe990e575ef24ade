package internal

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"

	pkgerrs "github.com/jamesprial/xkcdbot/pkg/errors"
	"github.com/jamesprial/xkcdbot/pkg/types"
	"github.com/jamesprial/xkcdbot/test_generators"
)

func batchSizes(reqs []*Request) []int {
	sizes := make([]int, 0, len(reqs))
	for _, r := range reqs {
		sizes = append(sizes, len(strings.Split(r.Query.Get("children"), ",")))
	}
	return sizes
}

func TestMoreResolver_BatchesOfHundred(t *testing.T) {
	gen := test_generators.NewThreadGenerator(3, "test", "t1")
	server := newThreadServer(gen)
	pending := continuationIDs("m", 250)
	for _, id := range pending {
		c := gen.Comment("resolved")
		c.ID = id
		server.moreChildren[id] = types.Node{Comment: c}
	}
	exec := &scriptedExecutor{respond: server.respond}
	handler := &recordingHandler{}

	if err := NewMoreResolver(exec, handler, nil).Drain(context.Background(), "t1", pending); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}

	if got := batchSizes(exec.Requests()); !reflect.DeepEqual(got, []int{100, 100, 50}) {
		t.Errorf("batch sizes = %v, want [100 100 50]", got)
	}
	if got := handler.IDs(); !reflect.DeepEqual(got, pending) {
		t.Errorf("expected every resolved comment once in order, got %d visits", len(got))
	}

	req := exec.Requests()[0]
	if req.Method != http.MethodGet || req.Query.Get("api_type") != "json" || req.Query.Get("link_id") != "t3_t1" {
		t.Errorf("unexpected request %s %v", req.Method, req.Query)
	}
}

func TestMoreResolver_RequeuesReturnedMarkers(t *testing.T) {
	gen := test_generators.NewThreadGenerator(3, "test", "t1")
	server := newThreadServer(gen)
	pending := continuationIDs("m", 250)
	for _, id := range pending {
		c := gen.Comment("resolved")
		c.ID = id
		server.moreChildren[id] = types.Node{Comment: c}
	}
	// The first id of the last batch expands into a marker holding two more ids.
	server.moreChildren["m200"] = types.Node{More: gen.More("t1_m200", "deep1", "deep2")}
	server.moreChildren["deep1"] = types.Node{Comment: gen.Comment("deep one")}
	server.moreChildren["deep2"] = types.Node{Comment: gen.Comment("deep two")}

	exec := &scriptedExecutor{respond: server.respond}
	handler := &recordingHandler{}

	if err := NewMoreResolver(exec, handler, nil).Drain(context.Background(), "t1", pending); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}

	if got := batchSizes(exec.Requests()); !reflect.DeepEqual(got, []int{100, 100, 50, 2}) {
		t.Errorf("batch sizes = %v, want [100 100 50 2]", got)
	}
	if n := len(handler.IDs()); n != 251 {
		t.Errorf("expected 249 resolved plus 2 deep comments, got %d", n)
	}
}

func TestMoreResolver_DoesNotRequestIDsTwice(t *testing.T) {
	gen := test_generators.NewThreadGenerator(3, "test", "t1")
	server := newThreadServer(gen)
	// The server echoes the marker it was asked to expand.
	server.moreChildren["loop"] = types.Node{More: gen.More("t1_x", "loop")}
	exec := &scriptedExecutor{respond: server.respond}

	if err := NewMoreResolver(exec, &recordingHandler{}, nil).Drain(context.Background(), "t1", []string{"loop", "loop"}); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if n := len(exec.Requests()); n != 1 {
		t.Errorf("expected a single request, got %d", n)
	}
}

func TestMoreResolver_EmptyIsNoop(t *testing.T) {
	exec := &scriptedExecutor{respond: func(*Request) (*Response, error) {
		t.Fatal("unexpected request")
		return nil, nil
	}}
	if err := NewMoreResolver(exec, &recordingHandler{}, nil).Drain(context.Background(), "t1", nil); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
}

func TestMoreResolver_SkipsFailedBatch(t *testing.T) {
	gen := test_generators.NewThreadGenerator(3, "test", "t1")
	server := newThreadServer(gen)
	pending := continuationIDs("m", 150)
	for _, id := range pending {
		c := gen.Comment("resolved")
		c.ID = id
		server.moreChildren[id] = types.Node{Comment: c}
	}

	calls := 0
	exec := &scriptedExecutor{respond: func(req *Request) (*Response, error) {
		calls++
		if calls == 1 {
			return nil, &pkgerrs.RequestError{Attempts: 3, Err: errors.New("timeout")}
		}
		return server.respond(req)
	}}
	handler := &recordingHandler{}

	if err := NewMoreResolver(exec, handler, nil).Drain(context.Background(), "t1", pending); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if n := len(handler.IDs()); n != 50 {
		t.Errorf("expected only the second batch to be handled, got %d", n)
	}
}

func TestMoreResolver_SkipsInvalidBatch(t *testing.T) {
	exec := &scriptedExecutor{respond: func(*Request) (*Response, error) {
		return okResponse(test_generators.MoreChildrenResponse(nil)), nil
	}}

	if err := NewMoreResolver(exec, &recordingHandler{}, nil).Drain(context.Background(), "t1", []string{"ok1", "bad id"}); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if n := len(exec.Requests()); n != 0 {
		t.Errorf("expected invalid batch not to be sent, got %d requests", n)
	}
}

func TestMoreResolver_FatalHandlerErrorStops(t *testing.T) {
	gen := test_generators.NewThreadGenerator(3, "test", "t1")
	server := newThreadServer(gen)
	pending := continuationIDs("m", 150)
	for _, id := range pending {
		c := gen.Comment("resolved")
		c.ID = id
		server.moreChildren[id] = types.Node{Comment: c}
	}
	exec := &scriptedExecutor{respond: server.respond}
	fatal := &pkgerrs.LedgerError{Operation: "record", Err: errors.New("read-only")}
	handler := &recordingHandler{failOn: "m3", err: fatal}

	err := NewMoreResolver(exec, handler, nil).Drain(context.Background(), "t1", pending)
	if !errors.Is(err, fatal) {
		t.Fatalf("expected ledger error, got %v", err)
	}
	if n := len(exec.Requests()); n != 1 {
		t.Errorf("expected drain to stop after the failing batch, got %d requests", n)
	}
}

func TestMoreResolver_DoesNotMutateInput(t *testing.T) {
	gen := test_generators.NewThreadGenerator(3, "test", "t1")
	server := newThreadServer(gen)
	server.moreChildren["a"] = types.Node{More: gen.More("t1_a", "b")}
	exec := &scriptedExecutor{respond: server.respond}

	pending := make([]string, 1, 10)
	pending[0] = "a"
	if err := NewMoreResolver(exec, &recordingHandler{}, nil).Drain(context.Background(), "t1", pending); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if got := pending[:cap(pending)][1]; got != "" {
		t.Errorf("caller's backing array was written: %q", got)
	}
}
