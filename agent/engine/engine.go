package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
	"github.com/jirayu-k/wayfinder/agent/responders"
	"github.com/jirayu-k/wayfinder/agent/route"
	statex "github.com/jirayu-k/wayfinder/agent/state"
)

// Trace labels for pipeline events that do not belong to a responder.
const (
	routerTraceLabel      = contractx.Label("router")
	synthesizerTraceLabel = contractx.Label("synthesizer")
	compositeRecordLabel  = contractx.Label("composite")
)

// persistTimeout bounds the final composite write after the transport context
// may already be gone.
const persistTimeout = 5 * time.Second

// Config is the engine-owned configuration surface.
type Config struct {
	// MaxHops bounds responder invocations per request. Zero means one hop
	// per routable responder.
	MaxHops int `envconfig:"MAX_HOPS" split_words:"true" default:"0"`
	// MemoryWindow bounds the recent slice loaded before classification.
	MemoryWindow int `envconfig:"MEMORY_WINDOW" split_words:"true" default:"10"`
}

// Request is the inbound shape of the sole public entry point.
type Request struct {
	RequesterID   string
	RequesterName string
	Text          string
}

// pipelineState carries per-request data between graph nodes.
type pipelineState struct {
	st       *statex.RequestState
	next     contractx.Label
	decision route.Decision
}

// Engine drives classifier, responders, and continuation policy until
// termination, then synthesizes. The pipeline is a compiled graph whose
// deciding branch loops back to the responder node until the policy
// terminates. One Engine serves many concurrent requests; all per-request
// data lives on the RequestState.
type Engine struct {
	table    route.Table
	policy   route.Policy
	registry *responders.Registry
	memory   contractx.Memory
	composer Composer
	window   int

	runner compose.Runnable[Request, *statex.RequestState]

	now    func() time.Time
	logger zerolog.Logger
}

func New(table route.Table, registry *responders.Registry, memory contractx.Memory, cfg Config) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: responder registry is required", contractx.ErrValidation)
	}
	if memory == nil {
		memory = noopMemory{}
	}
	window := cfg.MemoryWindow
	if window <= 0 {
		window = 10
	}

	e := &Engine{
		table:    table,
		policy:   route.NewPolicy(table, cfg.MaxHops),
		registry: registry,
		memory:   memory,
		composer: NewComposer(nil),
		window:   window,
		now:      time.Now,
		logger:   log.With().Str("component", "engine").Logger(),
	}

	runner, err := e.compileProcessGraph(context.Background())
	if err != nil {
		return nil, err
	}
	e.runner = runner

	return e, nil
}

// compileProcessGraph builds the request pipeline:
//
//	prepare -> load_context -> classify -> respond -> decide
//	                                          ^          |
//	                                          +----------+--> synthesize
//
// The decide branch re-enters respond while the policy continues; the
// policy's hop bound forces synthesis, and the compile-time step limit is a
// structural backstop on top of it.
func (e *Engine) compileProcessGraph(ctx context.Context) (compose.Runnable[Request, *statex.RequestState], error) {
	const (
		nodePrepare     = "prepare"
		nodeLoadContext = "load_context"
		nodeClassify    = "classify"
		nodeRespond     = "respond"
		nodeDecide      = "decide"
		nodeSynthesize  = "synthesize"
	)

	graph := compose.NewGraph[Request, *statex.RequestState]()

	if err := graph.AddLambdaNode(nodePrepare,
		compose.InvokableLambda(func(ctx context.Context, req Request) (*pipelineState, error) {
			if strings.TrimSpace(req.RequesterID) == "" {
				return nil, fmt.Errorf("%w: requester id is required", contractx.ErrValidation)
			}
			return &pipelineState{
				st: statex.New(req.RequesterID, req.RequesterName, req.Text, e.now()),
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodePrepare, err)
	}

	if err := graph.AddLambdaNode(nodeLoadContext,
		compose.InvokableLambda(func(ctx context.Context, ps *pipelineState) (*pipelineState, error) {
			e.loadPriorContext(ctx, ps.st)
			return ps, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeLoadContext, err)
	}

	if err := graph.AddLambdaNode(nodeClassify,
		compose.InvokableLambda(func(ctx context.Context, ps *pipelineState) (*pipelineState, error) {
			ps.next = e.table.Classify(ps.st.RawText)
			ps.st.AppendTrace(routerTraceLabel, fmt.Sprintf("Routed query to %s", ps.next), e.now())
			e.logger.Debug().
				Str("request_id", ps.st.RequestID).
				Str("route", string(ps.next)).
				Msg("classified request")
			return ps, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeClassify, err)
	}

	if err := graph.AddLambdaNode(nodeRespond,
		compose.InvokableLambda(func(ctx context.Context, ps *pipelineState) (*pipelineState, error) {
			e.execute(ctx, ps.st, ps.next)
			return ps, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeRespond, err)
	}

	if err := graph.AddLambdaNode(nodeDecide,
		compose.InvokableLambda(func(ctx context.Context, ps *pipelineState) (*pipelineState, error) {
			ps.decision = e.policy.Next(ps.st)
			if ps.decision.Kind == route.DecisionContinue {
				ps.next = ps.decision.Next
			}
			return ps, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeDecide, err)
	}

	if err := graph.AddLambdaNode(nodeSynthesize,
		compose.InvokableLambda(func(ctx context.Context, ps *pipelineState) (*statex.RequestState, error) {
			final := e.composer.Synthesize(ps.st)
			if err := ps.st.SetFinalAnswer(final); err != nil {
				e.logger.Error().Err(err).Str("request_id", ps.st.RequestID).Msg("final answer set twice")
			}
			ps.st.AppendTrace(synthesizerTraceLabel, fmt.Sprintf("Synthesized %d responder answers", len(ps.st.Responses)), e.now())
			return ps.st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeSynthesize, err)
	}

	edges := [][2]string{
		{compose.START, nodePrepare},
		{nodePrepare, nodeLoadContext},
		{nodeLoadContext, nodeClassify},
		{nodeClassify, nodeRespond},
		{nodeRespond, nodeDecide},
		{nodeSynthesize, compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	// synthesize and end both produce the uniform envelope; an empty run
	// surfaces as the sentinel answer
	if err := graph.AddBranch(nodeDecide, compose.NewGraphBranch(
		func(ctx context.Context, ps *pipelineState) (string, error) {
			if ps.decision.Kind == route.DecisionContinue {
				return nodeRespond, nil
			}
			return nodeSynthesize, nil
		},
		map[string]bool{nodeRespond: true, nodeSynthesize: true},
	)); err != nil {
		return nil, fmt.Errorf("add branch %s: %w", nodeDecide, err)
	}

	// one step per node: three before the loop, two per hop, one to finish
	runner, err := graph.Compile(ctx,
		compose.WithGraphName("engine.process"),
		compose.WithMaxRunSteps(2*e.policy.MaxHops()+6),
	)
	if err != nil {
		return nil, fmt.Errorf("compile process graph: %w", err)
	}
	return runner, nil
}

// Process handles one request end to end and returns the full state: final
// answer, per-responder answers, route history, and execution trace. The only
// hard failure is a missing requester id; everything else degrades into the
// response envelope.
func (e *Engine) Process(ctx context.Context, req Request) (*statex.RequestState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st, err := e.runner.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	e.persistComposite(ctx, st)
	return st, nil
}

// execute runs one responder against a state snapshot and folds its outcome
// patch back in. Responder failures never abort the pipeline: any residual
// error is converted into a degraded outcome here.
func (e *Engine) execute(ctx context.Context, st *statex.RequestState, label contractx.Label) {
	responder, ok := e.registry.ByLabel(label)
	if !ok {
		// unreachable with a validated registry; keep the pipeline alive
		e.logger.Error().Str("route", string(label)).Msg("no responder for route label")
		st.AppendTrace(label, "Skipped: no responder registered", e.now())
		return
	}

	outcome, err := responder.Respond(ctx, st.Clone())
	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("request_id", st.RequestID).
			Str("responder", string(label)).
			Msg("responder failed, degrading")
		outcome = degradedOutcome(label, st.RawText)
	}
	if outcome.Responder == "" {
		outcome.Responder = label
	}

	if err := st.Apply(outcome, e.now()); err != nil {
		e.logger.Error().
			Err(err).
			Str("request_id", st.RequestID).
			Str("responder", string(label)).
			Msg("outcome rejected")
		st.AppendTrace(label, fmt.Sprintf("Outcome rejected: %v", err), e.now())
	}
}

// loadPriorContext attaches the bounded recent slice from the memory gateway.
// Unavailability leaves the context empty and the trace untouched.
func (e *Engine) loadPriorContext(ctx context.Context, st *statex.RequestState) {
	prior, err := e.memory.Recent(ctx, st.RequesterID, e.window)
	if err != nil {
		e.logger.Warn().Err(err).Str("request_id", st.RequestID).Msg("prior context unavailable")
		return
	}
	if len(prior) == 0 {
		return
	}
	st.PriorContext = prior
	st.AppendTrace(routerTraceLabel, fmt.Sprintf("Loaded %d prior exchanges", len(prior)), e.now())
}

// persistComposite writes the final record. The context is detached so an
// abandoned request can still complete (or safely drop) this write within a
// small bound.
func (e *Engine) persistComposite(ctx context.Context, st *statex.RequestState) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	entry := fmt.Sprintf("Q: %s\nA: %s", st.RawText, st.FinalAnswer)
	if err := e.memory.Append(pctx, st.RequesterID, compositeRecordLabel, entry, 0); err != nil {
		e.logger.Warn().Err(err).Str("request_id", st.RequestID).Msg("composite persist failed")
	}
}

func degradedOutcome(label contractx.Label, rawText string) statex.Outcome {
	return statex.Outcome{
		Responder: label,
		Answer:    fmt.Sprintf("[degraded] %s responder is currently unavailable. Query was: %s", label, rawText),
		Action:    "Recovered from responder failure",
	}
}

type noopMemory struct{}

func (noopMemory) Recent(context.Context, string, int) ([]contractx.Exchange, error) {
	return nil, nil
}

func (noopMemory) Append(context.Context, string, contractx.Label, string, time.Duration) error {
	return nil
}
