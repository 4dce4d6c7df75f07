package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	bundlex "github.com/nattcha/bundlecraft/agent/bundle"
	catalogx "github.com/nattcha/bundlecraft/agent/catalog"
	contractx "github.com/nattcha/bundlecraft/agent/contract"
	statex "github.com/nattcha/bundlecraft/agent/state"
	toolx "github.com/nattcha/bundlecraft/agent/tool"
)

// scriptedModel replays a fixed sequence of turns. When the script runs
// out it repeats the last entry, which keeps iteration-limit tests simple.
type scriptedModel struct {
	script []func() (contractx.ModelTurn, error)
	calls  int
}

func (m *scriptedModel) Generate(ctx context.Context, _ []contractx.Message, _ []contractx.ToolDecl) (contractx.ModelTurn, error) {
	if err := ctx.Err(); err != nil {
		return contractx.ModelTurn{}, err
	}
	i := m.calls
	m.calls++
	if i >= len(m.script) {
		i = len(m.script) - 1
	}
	return m.script[i]()
}

func say(text string) func() (contractx.ModelTurn, error) {
	return func() (contractx.ModelTurn, error) {
		return contractx.ModelTurn{Text: text}, nil
	}
}

func callTool(name string, args map[string]any) func() (contractx.ModelTurn, error) {
	return func() (contractx.ModelTurn, error) {
		return contractx.ModelTurn{ToolCalls: []contractx.ToolCall{{Name: name, Args: args}}}, nil
	}
}

func fail(err error) func() (contractx.ModelTurn, error) {
	return func() (contractx.ModelTurn, error) {
		return contractx.ModelTurn{}, err
	}
}

func testRegistry(t *testing.T) *toolx.Registry {
	t.Helper()

	products := []catalogx.Product{
		{SKU: "RIB-001", Name: "Velvet Ribbon", Category: "ribbon", UnitPrice: 4.50, Stock: 40, Velocity: 0.12},
		{SKU: "RIB-002", Name: "Satin Ribbon", Category: "ribbon", UnitPrice: 3.25, Stock: 120, Velocity: 0.91},
	}
	projects := []catalogx.Project{{
		ID:           "proj-wreath",
		Title:        "Holiday Wreath",
		Trend:        "Winter Wonderland",
		Steps:        []string{"Shape the base", "Attach the ribbon"},
		Requirements: []catalogx.Requirement{{Category: "ribbon", Quantity: 1}},
	}}
	trends := []catalogx.Trend{{Name: "Winter Wonderland", Keywords: []string{"wreath"}}}

	gw := catalogx.NewStaticGateway(products, projects, trends)
	engine, err := bundlex.New(gw, nil, bundlex.Config{PromotionThreshold: 0.3, PromoteProbability: 1.0}, rand.NewSource(1))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	r, err := toolx.NewDefaultRegistry(toolx.Deps{Gateway: gw, Engine: engine})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func newTestOrchestrator(t *testing.T, store statex.Store, model contractx.TextGenerator, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	o, err := New(store, model, testRegistry(t), "You are a helpful shopping assistant.", cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestHandleMessageValidatesInput(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, statex.NewMemoryStore(), &scriptedModel{script: []func() (contractx.ModelTurn, error){say("hi")}}, Config{})

	if _, err := o.HandleMessage(context.Background(), "  ", "hello"); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("blank session id: got %v", err)
	}
	if _, err := o.HandleMessage(context.Background(), "sess", "  "); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("blank message: got %v", err)
	}
}

func TestPlainQuestionEntersClarifying(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	model := &scriptedModel{script: []func() (contractx.ModelTurn, error){
		say("What kind of project did you have in mind?"),
	}}
	o := newTestOrchestrator(t, store, model, Config{})

	result, err := o.HandleMessage(context.Background(), "sess-1", "I want to craft something")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if result.Reply == "" || result.Bundle != nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Trace) != 1 || result.Trace[0].Kind != statex.StepFinalAnswer {
		t.Fatalf("unexpected trace %+v", result.Trace)
	}

	sess, err := store.Load(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.Stage != statex.StageClarifying || sess.ResumeStage != statex.StageDiscovering {
		t.Fatalf("got stage=%s resume=%s", sess.Stage, sess.ResumeStage)
	}
	if sess.Version != 1 {
		t.Fatalf("expected one save, version=%d", sess.Version)
	}
}

func TestToolChainBuildsBundleAndCloses(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	model := &scriptedModel{script: []func() (contractx.ModelTurn, error){
		// turn 1
		callTool(toolx.ToolGetProjectDetails, map[string]any{"project_id": "proj-wreath"}),
		callTool(toolx.ToolBuildBundle, map[string]any{"project_id": "proj-wreath"}),
		say("Here is everything you need for your Holiday Wreath."),
		// turn 2
		callTool(toolx.ToolCloseSession, map[string]any{"outcome": toolx.OutcomeAccepted}),
		say("Wonderful, enjoy the crafting!"),
	}}
	o := newTestOrchestrator(t, store, model, Config{})
	ctx := context.Background()

	result, err := o.HandleMessage(ctx, "sess-2", "I want to build the wreath project")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if result.Bundle == nil {
		t.Fatal("expected a bundle on the turn result")
	}
	if got := result.Bundle.Items[0].Product.SKU; got != "RIB-001" {
		t.Fatalf("expected promoted slow mover, got %s", got)
	}

	sess, err := store.Load(ctx, "sess-2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.Stage != statex.StagePresenting || sess.ProjectID != "proj-wreath" {
		t.Fatalf("got stage=%s project=%s", sess.Stage, sess.ProjectID)
	}

	kinds := map[statex.StepKind]int{}
	for _, step := range result.Trace {
		kinds[step.Kind]++
	}
	if kinds[statex.StepToolCall] != 2 || kinds[statex.StepToolResult] != 2 || kinds[statex.StepFinalAnswer] != 1 {
		t.Fatalf("unexpected trace kinds %v", kinds)
	}

	result, err = o.HandleMessage(ctx, "sess-2", "Looks perfect, I'll take it")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	sess, err = store.Load(ctx, "sess-2")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !sess.Closed() {
		t.Fatalf("expected closed session, stage=%s", sess.Stage)
	}

	// A message after close gets the fixed goodbye and no extra save.
	version := sess.Version
	result, err = o.HandleMessage(ctx, "sess-2", "one more thing")
	if err != nil {
		t.Fatalf("post-close turn: %v", err)
	}
	if result.Reply == "" || result.Reply == "Wonderful, enjoy the crafting!" {
		t.Fatalf("expected fixed closed reply, got %q", result.Reply)
	}
	sess, _ = store.Load(ctx, "sess-2")
	if sess.Version != version {
		t.Fatalf("closed turn must not save, version %d -> %d", version, sess.Version)
	}
}

func TestRebuildMergesEarlierRejections(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	ctx := context.Background()

	// Seed a presenting session where RIB-001 was already turned down.
	sess := statex.NewSession("sess-3", time.Now())
	if err := sess.Advance(statex.StageDiscovering); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := sess.SelectProject("proj-wreath"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := sess.AttachBundle(&bundlex.Bundle{ID: "b0", ProjectID: "proj-wreath"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sess.RejectSKUs([]string{"RIB-001"})
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	model := &scriptedModel{script: []func() (contractx.ModelTurn, error){
		callTool(toolx.ToolRebuildBundle, map[string]any{
			"project_id":  "proj-wreath",
			"exclude_ids": []any{},
		}),
		say("Swapped the ribbon for a different one."),
	}}
	o := newTestOrchestrator(t, store, model, Config{})

	result, err := o.HandleMessage(ctx, "sess-3", "I don't like that ribbon, show me another option")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if result.Bundle == nil {
		t.Fatal("expected a rebuilt bundle")
	}
	for _, item := range result.Bundle.Items {
		if item.Product.SKU == "RIB-001" {
			t.Fatal("rebuild re-selected a rejected SKU")
		}
	}
}

func TestIterationLimitFailsClosed(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	model := &scriptedModel{script: []func() (contractx.ModelTurn, error){
		callTool(toolx.ToolSearchProjects, map[string]any{"keyword": "wreath"}),
	}}
	o := newTestOrchestrator(t, store, model, Config{MaxIterations: 2})

	result, err := o.HandleMessage(context.Background(), "sess-4", "help me decide")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if result.Reply != apologyReply {
		t.Fatalf("expected apology, got %q", result.Reply)
	}

	sess, err := store.Load(context.Background(), "sess-4")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.Stage != statex.StageGreeting {
		t.Fatalf("stage must roll back to greeting, got %s", sess.Stage)
	}
	if sess.Trace.Len() == 0 {
		t.Fatal("trace must keep the failed turn's steps")
	}
}

func TestModelOutageLeavesSessionUnsaved(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	model := &scriptedModel{script: []func() (contractx.ModelTurn, error){
		fail(contractx.ErrModelUnavailable),
	}}
	o := newTestOrchestrator(t, store, model, Config{ModelRetries: 1})

	_, err := o.HandleMessage(context.Background(), "sess-5", "hello")
	if !errors.Is(err, contractx.ErrModelUnavailable) {
		t.Fatalf("got %v, want ErrModelUnavailable", err)
	}
	if model.calls != 2 {
		t.Fatalf("expected initial call plus one retry, got %d", model.calls)
	}
	if _, err := store.Load(context.Background(), "sess-5"); !errors.Is(err, statex.ErrStateNotFound) {
		t.Fatalf("failed turn must not persist, got %v", err)
	}
}

func TestTransientTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	model := &scriptedModel{script: []func() (contractx.ModelTurn, error){
		fail(contractx.ErrModelTimeout),
		say("Sorry about the pause. Tell me about your project."),
	}}
	o := newTestOrchestrator(t, store, model, Config{ModelRetries: 2})

	result, err := o.HandleMessage(context.Background(), "sess-6", "hello")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if result.Reply != "Sorry about the pause. Tell me about your project." {
		t.Fatalf("got %q", result.Reply)
	}
}

func TestCancellationDiscardsInFlightResult(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	model := &scriptedModel{script: []func() (contractx.ModelTurn, error){
		func() (contractx.ModelTurn, error) {
			// Cancel after the model turn is produced; the dispatched
			// tool result must then be thrown away.
			cancel()
			return contractx.ModelTurn{ToolCalls: []contractx.ToolCall{{
				Name: toolx.ToolSearchProjects,
				Args: map[string]any{"keyword": "wreath"},
			}}}, nil
		},
	}}
	o := newTestOrchestrator(t, store, model, Config{})

	_, err := o.HandleMessage(ctx, "sess-7", "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if _, err := store.Load(context.Background(), "sess-7"); !errors.Is(err, statex.ErrStateNotFound) {
		t.Fatalf("cancelled turn must not persist, got %v", err)
	}
}

func TestEmptyModelTurnIsSchemaViolation(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{script: []func() (contractx.ModelTurn, error){
		say(""),
	}}
	o := newTestOrchestrator(t, statex.NewMemoryStore(), model, Config{})

	_, err := o.HandleMessage(context.Background(), "sess-8", "hello")
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("got %v, want ErrSchemaViolation", err)
	}
}
