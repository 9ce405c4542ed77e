package operator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/completion"
	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
	"github.com/ZanzyTHEbar/concrete-go/internal/tools"
)

type memStore struct {
	mu   sync.Mutex
	msgs []concrete.Message
	err  error
}

func (s *memStore) SaveMessage(_ context.Context, msg concrete.Message) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *memStore) ListMessages(_ context.Context, operatorID string) ([]concrete.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []concrete.Message
	for _, m := range s.msgs {
		if m.OperatorID == operatorID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

// probe is a tool whose methods count their calls.
type probe struct {
	fails   atomic.Int32
	lookups atomic.Int32
}

func (p *probe) tool() *tools.Tool {
	return tools.NewTool("Probe",
		tools.WithMethod("fail", func(context.Context, tools.Args) (any, error) {
			p.fails.Add(1)
			return nil, errors.New("boom")
		}, tools.WithReturns(tools.KindStr), tools.WithDoc("Always fails")),
		tools.WithMethod("lookup", func(_ context.Context, a tools.Args) (any, error) {
			p.lookups.Add(1)
			return "value of " + a.Str("key"), nil
		}, tools.WithParam("key", tools.KindStr), tools.WithReturns(tools.KindStr)),
		tools.WithMethod("nothing", func(context.Context, tools.Args) (any, error) {
			return nil, nil
		}),
	)
}

func toolReply(tool, method string, params ...schema.Param) string {
	var b strings.Builder
	b.WriteString(`{"text":"","tool_name":"` + tool + `","tool_method":"` + method + `","tool_parameters":[`)
	for i, p := range params {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"name":"` + p.Name + `","value":"` + p.Value + `"}`)
	}
	b.WriteString("]}")
	return b.String()
}

func newTestOperator(t *testing.T, svc concrete.CompletionService, options ...Option) (*Operator, *probe) {
	t.Helper()
	p := &probe{}
	reg := tools.NewRegistry()
	reg.MustRegister(p.tool())
	o, err := New("tester", "You are a test operator.", append([]Option{
		WithClient("scripted", svc),
		WithToolRegistry(reg),
		WithTools(p.tool()),
	}, options...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o, p
}

func askCapability(o *Operator) {
	o.MustDefine("ask", func(_ context.Context, a Args) (any, error) {
		return a.Str("query"), nil
	})
}

func TestNonStringResultSkipsCompletion(t *testing.T) {
	svc := completion.NewScripted()
	o, _ := newTestOperator(t, svc)
	o.MustDefine("answer", func(context.Context, Args) (any, error) { return 42, nil })

	out, err := o.Invoke(context.Background(), "answer", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Zero(t, svc.CallCount())
}

func TestStringResultSendsOneCompletion(t *testing.T) {
	svc := completion.NewScripted(completion.Reply(schema.TextAnswer{Text: "hi"}))
	o, _ := newTestOperator(t, svc)
	askCapability(o)

	out, err := o.Invoke(context.Background(), "ask", Args{"query": "say hi"})
	require.NoError(t, err)
	assert.Equal(t, schema.TextAnswer{Text: "hi"}, out)

	calls := svc.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "You are a test operator.", calls[0].System())
	assert.Equal(t, "say hi", calls[0].User())
	assert.Equal(t, "textanswer", calls[0].SchemaName)
	assert.NotContains(t, calls[0].Schema["properties"], "tool_name")
}

func TestCallOptionsOverrideInstructionsAndSchema(t *testing.T) {
	svc := completion.NewScripted(completion.Reply(schema.PlannedComponents{Components: []string{"a", "b"}}))
	o, _ := newTestOperator(t, svc)
	askCapability(o)

	out, err := o.Invoke(context.Background(), "ask", Args{"query": "plan"},
		CallOptions{Instructions: "Plan things.", AnswerSchema: "PlannedComponents"})
	require.NoError(t, err)
	assert.Equal(t, schema.PlannedComponents{Components: []string{"a", "b"}}, out)
	assert.Equal(t, "Plan things.", svc.Calls()[0].System())
	assert.Equal(t, "plannedcomponents", svc.Calls()[0].SchemaName)
}

func TestToolsWidenSchemaAndAppendAddendum(t *testing.T) {
	svc := completion.NewScripted(completion.Reply(schema.TextAnswer{Text: "no tool needed"}))
	o, p := newTestOperator(t, svc)
	askCapability(o)

	out, err := o.Invoke(context.Background(), "ask", Args{"query": "q"}, CallOptions{UseTools: Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, schema.TextAnswer{Text: "no tool needed"}, out)

	call := svc.Calls()[0]
	assert.Equal(t, "q"+ToolsAddendum([]*tools.Tool{p.tool()}), call.User())
	assert.Equal(t, "textanswerwithtools", call.SchemaName)
	assert.Contains(t, call.Schema["properties"], "tool_name")
	assert.Contains(t, call.User(), "Tool Name: Probe")
}

func TestToolRetryIsBounded(t *testing.T) {
	svc := completion.NewScripted(completion.Reply(toolReply("Probe", "fail"))).Repeat()
	rec := &eventbus.Recorder{}
	bus := eventbus.NewChannelEventBus(eventbus.WithWorkerCount(1))
	_, err := bus.SubscribeAll(rec.Handle)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	o, p := newTestOperator(t, svc, WithUseTools(true), WithEventBus(bus))
	askCapability(o)

	out, err := o.Invoke(context.Background(), "ask", Args{"query": "q"})
	require.NoError(t, err)

	reply, ok := out.(schema.Reply)
	require.True(t, ok, "expected the last tool request, got %T", out)
	require.True(t, reply.IsToolRequest())
	assert.Equal(t, "Probe", reply.Tool.ToolName)
	assert.Equal(t, int32(MaxToolAttempts), p.fails.Load())
	assert.Equal(t, 1, svc.CallCount())

	assert.Eventually(t, func() bool {
		return rec.Count(eventbus.EventToolFailed) == MaxToolAttempts &&
			rec.Count(eventbus.EventToolRetryExceeded) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestToolResultIsFedBack(t *testing.T) {
	svc := completion.NewScripted(
		completion.Reply(toolReply("Probe", "lookup()", schema.Param{Name: "key", Value: "k"})),
		completion.Reply(schema.TextAnswer{Text: "done"}),
	)
	o, p := newTestOperator(t, svc, WithUseTools(true))
	askCapability(o)

	out, err := o.Invoke(context.Background(), "ask", Args{"query": "find k"})
	require.NoError(t, err)
	assert.Equal(t, schema.TextAnswer{Text: "done"}, out)
	assert.Equal(t, int32(1), p.lookups.Load())

	calls := svc.Calls()
	require.Len(t, calls, 2)
	second := calls[1].User()
	assert.True(t, strings.HasPrefix(second, "You called the tool: Probe.lookup()\n"))
	assert.Contains(t, second, "The tool returned: value of k\n")
	assert.True(t, strings.HasSuffix(second, "Use these results to answer the following query:\nfind k"))
	assert.Equal(t, "textanswerwithtools", calls[1].SchemaName)
}

func TestToolReturningNothingStopsTheLoop(t *testing.T) {
	svc := completion.NewScripted(completion.Reply(toolReply("Probe", "nothing")))
	o, _ := newTestOperator(t, svc, WithUseTools(true))
	askCapability(o)

	out, err := o.Invoke(context.Background(), "ask", Args{"query": "q"})
	require.NoError(t, err)
	reply, ok := out.(schema.Reply)
	require.True(t, ok)
	assert.Equal(t, "nothing", reply.Tool.ToolMethod)
	assert.Equal(t, 1, svc.CallCount())
}

func TestUnknownToolPropagates(t *testing.T) {
	svc := completion.NewScripted(completion.Reply(toolReply("Missing", "run")))
	o, _ := newTestOperator(t, svc, WithUseTools(true))
	askCapability(o)

	_, err := o.Invoke(context.Background(), "ask", Args{"query": "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, concrete.ErrToolNotFound)
}

func TestUnknownMethodIsRetried(t *testing.T) {
	svc := completion.NewScripted(completion.Reply(toolReply("Probe", "absent"))).Repeat()
	o, _ := newTestOperator(t, svc, WithUseTools(true))
	askCapability(o)

	out, err := o.Invoke(context.Background(), "ask", Args{"query": "q"})
	require.NoError(t, err)
	_, ok := out.(schema.Reply)
	assert.True(t, ok)
}

func TestRefusal(t *testing.T) {
	svc := completion.NewScripted(completion.Refuse("I can't help with that"))
	o, _ := newTestOperator(t, svc)
	askCapability(o)

	_, err := o.Invoke(context.Background(), "ask", Args{"query": "forbidden"})
	require.Error(t, err)
	assert.ErrorIs(t, err, concrete.ErrOperatorRefusal)
	var ce *concrete.ConcreteError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "forbidden", ce.Query)
	assert.Equal(t, 1, svc.CallCount())
}

func TestAsyncMatchesSync(t *testing.T) {
	answer := schema.TextAnswer{Text: "same"}
	svc := completion.NewScripted(completion.Reply(answer)).Repeat()
	o, _ := newTestOperator(t, svc)
	askCapability(o)
	ctx := context.Background()

	want, err := o.Invoke(ctx, "ask", Args{"query": "q"})
	require.NoError(t, err)

	out, err := o.Invoke(ctx, "ask", Args{"query": "q"}, CallOptions{Async: Bool(true)})
	require.NoError(t, err)
	f, ok := out.(*Future)
	require.True(t, ok)

	async, err := f.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, async)

	resolved, err := Resolve(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, want, resolved)
}

func TestAsyncErrorsSurfaceOnAwait(t *testing.T) {
	svc := completion.NewScripted(completion.Refuse("no"))
	o, _ := newTestOperator(t, svc, WithAsync(true))
	askCapability(o)

	out, err := o.Invoke(context.Background(), "ask", Args{"query": "q"})
	require.NoError(t, err)
	_, err = Resolve(context.Background(), out)
	assert.ErrorIs(t, err, concrete.ErrOperatorRefusal)
}

func TestAwaitHonoursContext(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, concrete.ErrCancelled)
}

func TestAsyncAfterClose(t *testing.T) {
	svc := completion.NewScripted(completion.Reply(schema.TextAnswer{Text: "x"}))
	o, _ := newTestOperator(t, svc, WithAsync(true))
	askCapability(o)
	require.NoError(t, o.Close())

	_, err := o.Invoke(context.Background(), "ask", Args{"query": "q"})
	assert.ErrorIs(t, err, concrete.ErrValidation)
}

func TestAsyncInvokeReturnsWhileWorkersBusy(t *testing.T) {
	const workers = 2
	release := make(chan struct{})
	var started atomic.Int32
	svc := concrete.CompletionFunc(func(ctx context.Context, _ concrete.CompletionRequest) (*concrete.CompletionResponse, error) {
		started.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &concrete.CompletionResponse{Content: json.RawMessage(`{"text":"done"}`)}, nil
	})
	o, _ := newTestOperator(t, svc, WithAsync(true), WithAsyncWorkers(workers))
	askCapability(o)
	ctx := context.Background()

	returned := make(chan []any, 1)
	go func() {
		var outs []any
		for i := 0; i < workers+2; i++ {
			out, err := o.Invoke(ctx, "ask", Args{"query": "q"})
			if err != nil {
				outs = append(outs, err)
				continue
			}
			outs = append(outs, out)
		}
		returned <- outs
	}()

	var outs []any
	select {
	case outs = <-returned:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("async Invoke blocked while every worker was busy")
	}
	require.Len(t, outs, workers+2)
	assert.Eventually(t, func() bool { return started.Load() == workers }, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return started.Load() > workers }, 100*time.Millisecond, 10*time.Millisecond)

	close(release)
	for _, out := range outs {
		f, ok := out.(*Future)
		require.True(t, ok, "got %v", out)
		v, err := f.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, schema.TextAnswer{Text: "done"}, v)
	}
}

func TestCloseResolvesAcceptedCalls(t *testing.T) {
	svc := completion.NewScripted(completion.Reply(schema.TextAnswer{Text: "x"})).Repeat()
	o, _ := newTestOperator(t, svc, WithAsync(true), WithAsyncWorkers(1))
	askCapability(o)
	ctx := context.Background()

	var wg sync.WaitGroup
	futures := make(chan *Future, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := o.Invoke(ctx, "ask", Args{"query": "q"})
			if err != nil {
				assert.ErrorIs(t, err, concrete.ErrValidation)
				return
			}
			futures <- out.(*Future)
		}()
	}
	require.NoError(t, o.Close())
	wg.Wait()
	close(futures)

	for f := range futures {
		select {
		case <-f.Done():
		default:
			t.Errorf("future %s still pending after Close", f.ID)
		}
	}
	require.NoError(t, o.Close())
}

func TestNilLoggerKeepsDefault(t *testing.T) {
	o, err := New("quiet", "instructions", WithLogger(nil))
	require.NoError(t, err)
	assert.NotNil(t, o.logger)
}

func TestChatIsPassthrough(t *testing.T) {
	svc := completion.NewScripted()
	o, _ := newTestOperator(t, svc)

	out, err := o.Invoke(context.Background(), "chat", Args{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "hello", o.Chat("hello"))
	assert.Zero(t, svc.CallCount())
}

func TestStoreMessages(t *testing.T) {
	t.Run("without a store", func(t *testing.T) {
		_, err := New("x", "instructions", WithStoreMessages(true))
		assert.ErrorIs(t, err, concrete.ErrStoreUnavailable)
	})

	t.Run("persists answers", func(t *testing.T) {
		store := &memStore{}
		svc := completion.NewScripted(completion.Reply(schema.TextAnswer{Text: "kept"}))
		o, _ := newTestOperator(t, svc, WithStore(store), WithStoreMessages(true), WithProjectID("p1"))
		askCapability(o)

		_, err := o.Invoke(context.Background(), "ask", Args{"query": "q"})
		require.NoError(t, err)

		msgs, err := store.ListMessages(context.Background(), o.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "textanswer", msgs[0].Type)
		assert.Equal(t, "q", msgs[0].Prompt)
		assert.Equal(t, "p1", msgs[0].ProjectID)
		assert.JSONEq(t, `{"text":"kept"}`, string(msgs[0].Content))
	})

	t.Run("store failure", func(t *testing.T) {
		store := &memStore{err: errors.New("disk full")}
		svc := completion.NewScripted(completion.Reply(schema.TextAnswer{Text: "lost"}))
		o, _ := newTestOperator(t, svc, WithStore(store), WithStoreMessages(true))
		askCapability(o)

		_, err := o.Invoke(context.Background(), "ask", Args{"query": "q"})
		assert.ErrorIs(t, err, concrete.ErrStore)
	})
}

func TestNewValidation(t *testing.T) {
	_, err := New("x", "  ")
	assert.ErrorIs(t, err, concrete.ErrValidation)

	_, err = New("x", "instructions", WithAnswerSchema("nope"))
	assert.ErrorIs(t, err, concrete.ErrSchemaNotRegistered)
}

func TestCapabilityRegistration(t *testing.T) {
	o, _ := newTestOperator(t, completion.NewScripted())
	askCapability(o)

	err := o.Define("ask", func(context.Context, Args) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, concrete.ErrDuplicateRegistration)

	_, err = o.Invoke(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, concrete.ErrCapabilityNotFound)

	assert.Equal(t, []string{"ask", "chat"}, o.Capabilities())
}

func TestMissingClient(t *testing.T) {
	o, err := New("x", "instructions")
	require.NoError(t, err)
	askCapability(o)

	_, err = o.Invoke(context.Background(), "ask", Args{"query": "q"})
	assert.ErrorIs(t, err, concrete.ErrConfiguration)
}

func TestCallOptionsMerge(t *testing.T) {
	base := CallOptions{Instructions: "a", AnswerSchema: "textanswer", UseTools: Bool(true), Client: "one"}
	out := base.Merge(CallOptions{AnswerSchema: "summary", UseTools: Bool(false)})

	assert.Equal(t, "a", out.Instructions)
	assert.Equal(t, "summary", out.AnswerSchema)
	assert.False(t, flag(out.UseTools))
	assert.Equal(t, "one", out.Client)
	assert.Nil(t, out.Async)
}
