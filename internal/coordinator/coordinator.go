// Package coordinator implements the per-task state machine from spec §4.8:
// it owns one Task's world state, drives the GOAP planner to pick the next
// action, dispatches that action to the Role Workers or Consensus
// Collector, and reacts to human intervention commands.
//
// Grounded on haricheung-agentic-shell's cmd/agsh/main.go orchestration loop
// (a single goroutine with a select over a typed inbox, one message handled
// at a time) and its runSubtaskDispatcher per-parent dispatch-state map,
// generalized from a fixed role sequence into a GOAP-driven one with
// pause/resume and sub-task wait states.
package coordinator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/taskforge/orchestrator/internal/blackboard"
	"github.com/taskforge/orchestrator/internal/consensus"
	"github.com/taskforge/orchestrator/internal/contextbudget"
	"github.com/taskforge/orchestrator/internal/goap"
	"github.com/taskforge/orchestrator/internal/roles"
	"github.com/taskforge/orchestrator/internal/types"
)

// orchestratorRole is the synthetic role used for the optional orchestrator
// mode override (spec §4.8). It is not one of the three primary roles.
const orchestratorRole = types.Role("orchestrator")

// Publisher is the minimal Event Bus surface the Coordinator depends on.
type Publisher interface {
	Publish(eventType string, taskID string, payload any) uint64
}

// RoleDispatcher is the surface of a Role Worker the Coordinator submits
// ExecuteRole requests to. *roles.Worker satisfies this.
type RoleDispatcher interface {
	Submit(types.ExecuteRole) error
}

// Registry receives the task snapshot after every mutation.
type Registry interface {
	Update(task *types.Task)
}

// SubTaskSpawner asks the Dispatcher to create a child Coordinator.
type SubTaskSpawner interface {
	Spawn(parentID string, depth int, title, description string) (childID string, err error)
}

// ContextRetriever is the optional code-context collaborator (spec §1,
// Open Question decision #2 in DESIGN.md). Nil-safe: a nil ContextRetriever
// means no extra context is appended to prompts. Aliased from
// internal/contextbudget, which also holds the reference implementations.
type ContextRetriever = contextbudget.ContextRetriever

// BudgetAccountant is the optional token/cost accounting collaborator (spec
// §1, Open Question decision #2). Nil-safe. Aliased from
// internal/contextbudget.
type BudgetAccountant = contextbudget.BudgetAccountant

// Config controls one Coordinator's behaviour.
type Config struct {
	MaxRetriesPerTask    int
	DefaultMaxSubTaskDepth int // 0 < n <= MaxSubTaskDepthCap
	ReviewConsensusCount int
	ConsensusStrategy    consensus.Strategy
	OrchestratorMode     bool
}

// MaxSubTaskDepthCap is the hard ceiling on DefaultMaxSubTaskDepth and any
// operator override via set_subtask_depth (spec §4.8).
const MaxSubTaskDepthCap = 10

// Dependencies bundles every external collaborator a Coordinator needs.
// AdapterAvailable reports whether at least one adapter's circuit is closed;
// a nil func is treated as always-true. AlternativeAdapter resolves a
// replacement for a Supervisor-specified SkipAdapter on RetryRole; a nil
// func means a retry simply re-submits without a preferred adapter.
type Dependencies struct {
	Bus              Publisher
	Blackboard       *blackboard.Blackboard
	Registry         Registry
	Planner          RoleDispatcher
	Builder          RoleDispatcher
	Reviewer         RoleDispatcher
	Orchestrator     RoleDispatcher // optional, nil disables orchestrator mode regardless of Config
	Consensus        *consensus.Collector
	Catalogue        []types.GoapAction
	CostOverrides    goap.CostOverrides
	Spawner          SubTaskSpawner
	ContextRetriever ContextRetriever
	BudgetAccountant BudgetAccountant
	AdapterAvailable func() bool
	AlternativeAdapter func(current string) string
	Config           Config
}

// Coordinator drives one task from submission to a terminal status.
type Coordinator struct {
	task  *types.Task
	depth int
	state types.WorldState
	deps  Dependencies

	inbox chan any
	done  chan struct{}

	maxSubTaskDepth int
	retryCount      int
	pendingChildren map[string]struct{}
	pendingConsensusCh <-chan consensus.Result
	pendingOrchestrator types.ActionName
	terminal bool
}

var subtaskLineRe = regexp.MustCompile(`(?m)^SUBTASK:\s*(.+?)\s*\|\s*(.+)\s*$`)

// New creates a Coordinator for task at the given spawn depth (0 for
// top-level tasks). The caller must call Start to begin processing.
func New(task *types.Task, depth int, deps Dependencies) *Coordinator {
	maxDepth := deps.Config.DefaultMaxSubTaskDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if maxDepth > MaxSubTaskDepthCap {
		maxDepth = MaxSubTaskDepthCap
	}

	c := &Coordinator{
		task:            task,
		depth:           depth,
		deps:            deps,
		inbox:           make(chan any, 64),
		done:            make(chan struct{}),
		maxSubTaskDepth: maxDepth,
		pendingChildren: make(map[string]struct{}),
	}
	c.state = types.NewWorldState(types.Partial{
		types.KeyTaskExists:        true,
		types.KeyAdapterAvailable:  c.adapterAvailable(),
		types.KeySubTasksCompleted: true, // vacuously true until the Planner spawns children
	})
	return c
}

// Done returns a channel closed when the Coordinator reaches a terminal
// status and has stopped processing.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Task returns a snapshot copy of the current task state.
func (c *Coordinator) Task() *types.Task { return c.task.Clone() }

// Start launches the Coordinator's actor goroutine and kicks off the first
// planning decision. It publishes ui.surface before anything else so that
// invariant holds for every later ui.patch on this task id (spec §8
// invariant #3, §5 "ui.surface for a task always precedes its first
// ui.patch").
func (c *Coordinator) Start(ctx context.Context) {
	c.publishSurface()
	go c.run(ctx)
	c.inbox <- startSignal{}
}

// publishSurface emits the one ui.surface event opening this task's UI
// surface. The payload is an opaque blob per spec §1; consumers key off
// surfaceId, not its shape.
func (c *Coordinator) publishSurface() {
	c.deps.Bus.Publish(types.EventUISurface, c.task.ID, map[string]any{
		"surfaceId": c.task.ID,
		"title":     c.task.Title,
		"status":    c.task.Status,
	})
}

// publishPatch emits a ui.patch against this task's surface. Called
// alongside every task.transition so the UI stream tracks status changes
// (spec §4.8 "publishing ui.patch/task.transition events").
func (c *Coordinator) publishPatch(fields map[string]any) {
	patch := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		patch[k] = v
	}
	patch["surfaceId"] = c.task.ID
	c.deps.Bus.Publish(types.EventUIPatch, c.task.ID, patch)
}

type startSignal struct{}

// Deliver routes a role outcome or sub-task outcome into the Coordinator's
// inbox. Called by the Supervisor/Dispatcher, never by the Coordinator
// itself.
func (c *Coordinator) Deliver(msg any) {
	select {
	case c.inbox <- msg:
	case <-c.done:
	}
}

// RequestIntervention delivers a human-intervention command synchronously
// (spec §4.8); it blocks until the Coordinator processes it or ctx expires.
func (c *Coordinator) RequestIntervention(ctx context.Context, cmd InterventionCommand) InterventionResult {
	reply := make(chan InterventionResult, 1)
	req := interventionRequest{Command: cmd, Reply: reply}

	select {
	case c.inbox <- req:
	case <-c.done:
		return InterventionResult{Accepted: false, ReasonCode: "invalid_state", Message: "task already terminal"}
	case <-ctx.Done():
		return InterventionResult{Accepted: false, ReasonCode: "invalid_state", Message: ctx.Err().Error()}
	}

	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return InterventionResult{Accepted: false, ReasonCode: "invalid_state", Message: ctx.Err().Error()}
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.inbox:
			c.handle(ctx, msg)
			if c.terminal {
				return
			}
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case startSignal:
		c.step(ctx)
	case roleOutcome:
		c.handleRoleOutcome(ctx, m)
	case orchestratorDecision:
		c.handleOrchestratorDecision(ctx, m)
	case subTaskOutcome:
		c.handleSubTaskOutcome(ctx, m)
	case retryCommand:
		c.handleRetryCommand(ctx, m)
	case interventionRequest:
		m.Reply <- c.handleIntervention(ctx, m.Command)
		close(m.Reply)
	}
}

func (c *Coordinator) adapterAvailable() bool {
	if c.deps.AdapterAvailable == nil {
		return true
	}
	return c.deps.AdapterAvailable()
}

// step runs the planner and dispatches the next action, unless the task is
// paused, in which case it returns without planning; resume calls step
// again, which plans from the current world state.
func (c *Coordinator) step(ctx context.Context) {
	if c.task.Paused {
		return
	}

	c.state = c.state.With(types.KeyAdapterAvailable, c.adapterAvailable())
	c.state = c.state.With(types.KeySubTasksCompleted, len(c.pendingChildren) == 0 || !c.state.Get(types.KeySubTasksSpawned))

	plan := goap.Search(c.state, types.GoalDone(), c.deps.Catalogue, c.deps.CostOverrides)

	var next types.ActionName
	switch {
	case plan.DeadEnd:
		next = types.ActionEscalate
	case len(plan.RecommendedPlan) == 0:
		next = types.ActionFinalize
	default:
		next = plan.RecommendedPlan[0]
	}

	if next == types.ActionWaitForSubTask {
		// Nothing to dispatch; a later SubTaskCompleted/Failed re-triggers step.
		c.task.PendingAction = string(next)
		c.deps.Registry.Update(c.task.Clone())
		return
	}

	if c.deps.Config.OrchestratorMode && c.deps.Orchestrator != nil {
		c.pendingOrchestrator = next
		prompt := c.orchestratorPrompt(next)
		_ = c.deps.Orchestrator.Submit(types.ExecuteRole{
			TaskID: c.task.ID,
			Role:   orchestratorRole,
			Title:  c.task.Title,
			Prompt: prompt,
		})
		return
	}

	c.dispatch(ctx, next)
}

func (c *Coordinator) orchestratorPrompt(recommended types.ActionName) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GOAP recommends: %s\nRespond with a single line \"ACTION: <name>\" selecting the next action, or confirm the recommendation.\n", recommended)
	for k, v := range c.deps.Blackboard.GetTask(c.task.ID) {
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	return b.String()
}

var orchestratorActionRe = regexp.MustCompile(`(?im)^ACTION:\s*(\w+)\s*$`)

func (c *Coordinator) handleOrchestratorDecision(ctx context.Context, d orchestratorDecision) {
	fallback := c.pendingOrchestrator
	c.pendingOrchestrator = ""

	if d.Failed != nil {
		c.dispatch(ctx, fallback)
		return
	}

	match := orchestratorActionRe.FindStringSubmatch(d.Succeeded.Output)
	if match == nil {
		c.dispatch(ctx, fallback)
		return
	}

	chosen := types.ActionName(match[1])
	if !c.actionKnown(chosen) {
		c.dispatch(ctx, fallback)
		return
	}
	c.dispatch(ctx, chosen)
}

func (c *Coordinator) actionKnown(name types.ActionName) bool {
	for _, a := range c.deps.Catalogue {
		if a.Name == name {
			return true
		}
	}
	return false
}

// dispatch sends the chosen action's work and updates task status.
func (c *Coordinator) dispatch(ctx context.Context, action types.ActionName) {
	c.task.PendingAction = ""

	switch action {
	case types.ActionPlan:
		c.transition(types.StatusPlanning)
		c.publishDispatch(types.RolePlanner)
		_ = c.deps.Planner.Submit(types.ExecuteRole{
			TaskID: c.task.ID, Role: types.RolePlanner,
			Title: c.task.Title, Description: c.planningDescription(ctx),
		})

	case types.ActionBuild:
		c.transition(types.StatusBuilding)
		c.publishDispatch(types.RoleBuilder)
		_ = c.deps.Builder.Submit(types.ExecuteRole{
			TaskID: c.task.ID, Role: types.RoleBuilder,
			Title: c.task.Title, Description: c.task.Description, PlanOutput: c.task.PlanningOutput,
		})

	case types.ActionRework:
		c.transition(types.StatusBuilding)
		feedback := c.deps.Blackboard.GetTask(c.task.ID)["rework_feedback"]
		c.publishDispatch(types.RoleBuilder)
		_ = c.deps.Builder.Submit(types.ExecuteRole{
			TaskID: c.task.ID, Role: types.RoleBuilder,
			Title: c.task.Title, Description: c.task.Description,
			PlanOutput: c.task.PlanningOutput, BuildOutput: c.task.BuildOutput,
			ReworkFeedback: feedback,
		})

	case types.ActionReview:
		c.transition(types.StatusReviewing)
		c.dispatchReview(c.effectiveConsensusCount())

	case types.ActionSecondOpinion:
		c.transition(types.StatusReviewing)
		c.dispatchReview(c.effectiveConsensusCount() + 1)

	case types.ActionWaitForSubTask:
		c.task.PendingAction = string(action)

	case types.ActionFinalize:
		c.finalize()

	case types.ActionEscalate:
		c.escalate()
	}

	c.deps.Registry.Update(c.task.Clone())
}

// planningDescription appends any retrieved code context to the task
// description before it is handed to the Planner (spec §1, Open Question
// decision #2). A nil ContextRetriever or a retrieval error leaves the
// description unchanged.
func (c *Coordinator) planningDescription(ctx context.Context) string {
	if c.deps.ContextRetriever == nil {
		return c.task.Description
	}
	extra, err := c.deps.ContextRetriever.Retrieve(ctx, c.task.ID, c.task.Title)
	if err != nil || extra == "" {
		return c.task.Description
	}
	return c.task.Description + "\n\nRelevant context:\n" + extra
}

func (c *Coordinator) effectiveConsensusCount() int {
	if c.deps.Config.ReviewConsensusCount < 1 {
		return 1
	}
	return c.deps.Config.ReviewConsensusCount
}

func (c *Coordinator) dispatchReview(requiredVotes int) {
	if requiredVotes <= 1 {
		c.publishDispatch(types.RoleReviewer)
		_ = c.deps.Reviewer.Submit(types.ExecuteRole{
			TaskID: c.task.ID, Role: types.RoleReviewer,
			Title: c.task.Title, Description: c.task.Description,
			PlanOutput: c.task.PlanningOutput, BuildOutput: c.task.BuildOutput,
		})
		return
	}

	strategy := c.deps.Config.ConsensusStrategy
	if strategy == "" {
		strategy = consensus.StrategyMajority
	}
	c.pendingConsensusCh = c.deps.Consensus.Open(c.task.ID, requiredVotes, strategy)
	for i := 0; i < requiredVotes; i++ {
		c.publishDispatch(types.RoleReviewer)
		_ = c.deps.Reviewer.Submit(types.ExecuteRole{
			TaskID: c.task.ID, Role: types.RoleReviewer,
			Title: c.task.Title, Description: c.task.Description,
			PlanOutput: c.task.PlanningOutput, BuildOutput: c.task.BuildOutput,
			AttemptID: fmt.Sprintf("%s-vote-%d", c.task.ID, i),
		})
	}
}

func (c *Coordinator) handleRoleOutcome(ctx context.Context, outcome roleOutcome) {
	if outcome.Failed != nil && outcome.Failed.Role == orchestratorRole {
		c.handleOrchestratorDecision(ctx, orchestratorDecision{Failed: outcome.Failed})
		return
	}
	if outcome.Succeeded != nil && outcome.Succeeded.Role == orchestratorRole {
		c.handleOrchestratorDecision(ctx, orchestratorDecision{Succeeded: outcome.Succeeded})
		return
	}

	if outcome.Succeeded != nil && outcome.Succeeded.Role == types.RoleReviewer && c.pendingConsensusCh != nil {
		voterID := outcome.Succeeded.AttemptID
		if voterID == "" {
			voterID = outcome.Succeeded.AdapterID + "-" + outcome.Succeeded.CompletedAt.String()
		}
		c.deps.Consensus.Vote(c.task.ID, consensus.Vote{
			VoterID:    voterID,
			Approved:   !roles.ParseReviewDecision(outcome.Succeeded.Output),
			Confidence: outcome.Succeeded.Confidence,
			Feedback:   outcome.Succeeded.Output,
		})
		select {
		case result := <-c.pendingConsensusCh:
			c.pendingConsensusCh = nil
			c.applyConsensusResult(result)
			c.deps.Registry.Update(c.task.Clone())
			c.step(ctx)
		default:
		}
		return
	}

	if outcome.Failed != nil {
		c.handleRoleFailed(ctx, *outcome.Failed)
		return
	}

	c.handleRoleSucceeded(ctx, *outcome.Succeeded)
}

func (c *Coordinator) applyConsensusResult(result consensus.Result) {
	if result.Approved {
		c.state = c.state.With(types.KeyConsensusReached, true).With(types.KeyConsensusDisputed, false)
		c.state = c.state.With(types.KeyReviewPassed, true).With(types.KeyReviewRejected, false)
	} else {
		c.state = c.state.With(types.KeyConsensusDisputed, true).With(types.KeyConsensusReached, false)
		c.state = c.state.With(types.KeyReviewRejected, true).With(types.KeyReviewPassed, false)
	}
	c.task.ReviewOutput = summarizeVotes(result)
}

func summarizeVotes(r consensus.Result) string {
	var b strings.Builder
	for _, v := range r.Votes {
		fmt.Fprintf(&b, "%s: approved=%v confidence=%.2f\n", v.VoterID, v.Approved, v.Confidence)
	}
	return b.String()
}

func (c *Coordinator) handleRoleSucceeded(ctx context.Context, succ types.RoleSucceeded) {
	switch succ.Role {
	case types.RolePlanner:
		c.task.PlanningOutput = succ.Output
		c.state = c.state.With(types.KeyPlanExists, true)
		c.spawnSubTasks(succ.Output)

	case types.RoleBuilder:
		c.task.BuildOutput = succ.Output
		c.state = c.state.With(types.KeyBuildExists, true)

	case types.RoleReviewer:
		c.task.ReviewOutput = succ.Output
		if roles.ParseReviewDecision(succ.Output) {
			c.state = c.state.With(types.KeyReviewRejected, true).With(types.KeyReviewPassed, false)
			c.deps.Blackboard.PutTask(c.task.ID, "rework_feedback", succ.Output)
		} else {
			c.state = c.state.With(types.KeyReviewPassed, true).With(types.KeyReviewRejected, false)
		}
	}

	if c.deps.BudgetAccountant != nil {
		c.deps.BudgetAccountant.Record(c.task.ID, len(succ.Output)/4)
	}

	c.retryCount = 0
	c.deps.Registry.Update(c.task.Clone())
	c.step(ctx)
}

func (c *Coordinator) handleRoleFailed(ctx context.Context, failed types.RoleFailed) {
	c.task.Error = failed.Error
	c.retryCount++

	if !failed.Retriable || c.retryCount > c.deps.Config.maxRetries() {
		c.state = c.state.With(types.KeyRetryLimitReached, true)
		c.deps.Registry.Update(c.task.Clone())
		c.step(ctx)
		return
	}

	// Retriable and within cap: remain suspended until the Supervisor sends
	// a retryCommand or the cap is exceeded on a subsequent failure.
	c.deps.Registry.Update(c.task.Clone())
}

func (cfg Config) maxRetries() int {
	if cfg.MaxRetriesPerTask <= 0 {
		return 3
	}
	return cfg.MaxRetriesPerTask
}

func (c *Coordinator) handleRetryCommand(ctx context.Context, cmd retryCommand) {
	preferred := ""
	if cmd.SkipAdapter != "" && c.deps.AlternativeAdapter != nil {
		preferred = c.deps.AlternativeAdapter(cmd.SkipAdapter)
	}

	switch cmd.Role {
	case types.RolePlanner:
		c.publishDispatch(types.RolePlanner)
		_ = c.deps.Planner.Submit(types.ExecuteRole{
			TaskID: c.task.ID, Role: types.RolePlanner,
			Title: c.task.Title, Description: c.task.Description, PreferredAdapter: preferred,
		})
	case types.RoleBuilder:
		c.publishDispatch(types.RoleBuilder)
		_ = c.deps.Builder.Submit(types.ExecuteRole{
			TaskID: c.task.ID, Role: types.RoleBuilder,
			Title: c.task.Title, Description: c.task.Description, PlanOutput: c.task.PlanningOutput,
			PreferredAdapter: preferred,
		})
	case types.RoleReviewer:
		c.publishDispatch(types.RoleReviewer)
		_ = c.deps.Reviewer.Submit(types.ExecuteRole{
			TaskID: c.task.ID, Role: types.RoleReviewer,
			Title: c.task.Title, Description: c.task.Description,
			PlanOutput: c.task.PlanningOutput, BuildOutput: c.task.BuildOutput, PreferredAdapter: preferred,
		})
	}
	_ = ctx
}

// spawnSubTasks scans planner output for SUBTASK lines (spec §4.8) and asks
// the Spawner to create children, rejecting spawns beyond the depth cap.
func (c *Coordinator) spawnSubTasks(plannerOutput string) {
	matches := subtaskLineRe.FindAllStringSubmatch(plannerOutput, -1)
	if len(matches) == 0 || c.deps.Spawner == nil {
		return
	}
	if c.depth+1 > c.maxSubTaskDepth {
		return
	}

	spawned := false
	for _, m := range matches {
		title, desc := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		childID, err := c.deps.Spawner.Spawn(c.task.ID, c.depth+1, title, desc)
		if err != nil {
			continue
		}
		c.task.SubTaskIDs[childID] = struct{}{}
		c.pendingChildren[childID] = struct{}{}
		spawned = true
	}
	if spawned {
		c.state = c.state.With(types.KeySubTasksSpawned, true).With(types.KeySubTasksCompleted, false)
	}
}

func (c *Coordinator) handleSubTaskOutcome(ctx context.Context, outcome subTaskOutcome) {
	var childID string
	if outcome.Completed != nil {
		childID = outcome.Completed.ChildTaskID
		delete(c.pendingChildren, childID)
	} else if outcome.Failed != nil {
		childID = outcome.Failed.ChildTaskID
		delete(c.pendingChildren, childID)
		c.task.Error = fmt.Sprintf("sub-task %s failed: %s", childID, outcome.Failed.Error)
		c.deps.Registry.Update(c.task.Clone())
		c.escalate()
		return
	}

	if len(c.pendingChildren) == 0 {
		c.state = c.state.With(types.KeySubTasksCompleted, true)
	}
	c.deps.Registry.Update(c.task.Clone())
	c.step(ctx)
}

// handleIntervention dispatches cmd and, on acceptance, publishes
// task.intervention as the natural acknowledgement (spec §6 canonical event
// list; consumed by the CLI renderer's "awaiting operator review" line).
func (c *Coordinator) handleIntervention(ctx context.Context, cmd InterventionCommand) InterventionResult {
	result := c.dispatchIntervention(ctx, cmd)
	if result.Accepted {
		c.deps.Bus.Publish(types.EventTaskIntervention, c.task.ID, map[string]any{
			"action": cmd.Action, "reason": cmd.Reason, "feedback": cmd.Feedback,
		})
	}
	return result
}

func (c *Coordinator) dispatchIntervention(ctx context.Context, cmd InterventionCommand) InterventionResult {
	switch cmd.Action {
	case ActionApproveReview:
		if c.task.Status != types.StatusReviewing {
			return InterventionResult{Accepted: false, ReasonCode: "invalid_state"}
		}
		c.state = c.state.With(types.KeyReviewPassed, true).With(types.KeyReviewRejected, false)
		c.pendingConsensusCh = nil
		c.step(ctx)
		return InterventionResult{Accepted: true}

	case ActionRejectReview:
		if c.task.Status != types.StatusReviewing {
			return InterventionResult{Accepted: false, ReasonCode: "invalid_state"}
		}
		if cmd.Reason == "" {
			return InterventionResult{Accepted: false, ReasonCode: "payload_invalid", Message: "reason is required"}
		}
		c.task.Error = cmd.Reason
		c.escalate()
		return InterventionResult{Accepted: true}

	case ActionRequestRework:
		if c.task.Status != types.StatusBuilding && c.task.Status != types.StatusReviewing {
			return InterventionResult{Accepted: false, ReasonCode: "invalid_state"}
		}
		if cmd.Feedback == "" {
			return InterventionResult{Accepted: false, ReasonCode: "payload_invalid", Message: "feedback is required"}
		}
		c.deps.Blackboard.PutTask(c.task.ID, "rework_feedback", cmd.Feedback)
		c.state = c.state.With(types.KeyReviewRejected, true).With(types.KeyReviewPassed, false)
		c.step(ctx)
		return InterventionResult{Accepted: true}

	case ActionPauseTask:
		if c.terminal {
			return InterventionResult{Accepted: false, ReasonCode: "invalid_state"}
		}
		c.task.Paused = true
		c.publishTransition("Paused")
		c.deps.Registry.Update(c.task.Clone())
		return InterventionResult{Accepted: true}

	case ActionResumeTask:
		if !c.task.Paused {
			return InterventionResult{Accepted: false, ReasonCode: "invalid_state"}
		}
		c.task.Paused = false
		c.publishTransition("Resumed")
		c.deps.Registry.Update(c.task.Clone())
		c.step(ctx)
		return InterventionResult{Accepted: true}

	case ActionSetSubtaskDepth:
		if c.task.PlanningOutput != "" {
			return InterventionResult{Accepted: false, ReasonCode: "invalid_state", Message: "planner output already exists"}
		}
		if cmd.Depth < 0 || cmd.Depth > MaxSubTaskDepthCap {
			return InterventionResult{Accepted: false, ReasonCode: "payload_invalid"}
		}
		c.maxSubTaskDepth = cmd.Depth
		return InterventionResult{Accepted: true}

	default:
		return InterventionResult{Accepted: false, ReasonCode: "unsupported_action"}
	}
}

func (c *Coordinator) finalize() {
	c.task.Summary = buildSummary(c.task)
	c.transition(types.StatusDone)
	c.deps.Blackboard.PutGlobal("task_succeeded:"+c.task.ID, "true")
	c.deps.Bus.Publish(types.EventTaskDone, c.task.ID, c.task.Clone())
	c.terminal = true
}

func buildSummary(t *types.Task) string {
	if t.ReviewOutput != "" {
		return t.ReviewOutput
	}
	return t.BuildOutput
}

func (c *Coordinator) escalate() {
	c.deps.Bus.Publish(types.EventTaskEscalated, c.task.ID, map[string]any{"level": "fatal", "taskId": c.task.ID})
	c.deps.Blackboard.PutGlobal("task_blocked:"+c.task.ID, "true")
	c.transition(types.StatusBlocked)
	c.deps.Bus.Publish(types.EventTaskFailed, c.task.ID, c.task.Clone())
	c.terminal = true
}

func (c *Coordinator) transition(status types.TaskStatus) {
	from := c.task.Status
	c.task.Status = status
	c.task.UpdatedAt = time.Now()
	c.deps.Bus.Publish(types.EventTaskTransition, c.task.ID, map[string]any{
		"from": from, "to": status,
	})
	c.publishPatch(map[string]any{"status": status})
}

func (c *Coordinator) publishTransition(label string) {
	c.deps.Bus.Publish(types.EventTaskTransition, c.task.ID, map[string]any{"to": label})
	c.publishPatch(map[string]any{"status": label})
}

func (c *Coordinator) publishDispatch(role types.Role) {
	c.deps.Bus.Publish(types.EventRoleDispatched, c.task.ID, map[string]any{"role": role})
}
