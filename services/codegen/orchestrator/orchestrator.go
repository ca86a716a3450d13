// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives the create, edit and add-option workflows.
//
// # Description
//
// The Orchestrator builds each request, adds the commit it will fill,
// opens a stream.Session and applies the session's events to the
// commits.Store. When the session ends it reconciles the tree:
//
//	completed             ──► state CodeReady
//	cancelled (4333)      ──► success notice + rollback
//	server error (4332)   ──► rollback (the backend already reported it)
//	anything else         ──► error notice + rollback
//
// Rollback depends on what was being generated: a create resets the whole
// tree, an edit removes its commit and moves head back to the parent, and
// an extra option on an existing commit only marks that option cancelled.
//
// # Thread Safety
//
// All methods are safe for concurrent use. At most one generation is live.
// Store mutations made on behalf of a session happen while the
// Orchestrator holds its lock, so Store listeners must not call back into
// the Orchestrator synchronously. Reading the Store from a listener is fine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianCodegen/services/codegen/commits"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/console"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/protocol"
	"github.com/AleutianAI/AleutianCodegen/services/codegen/stream"
)

var tracer = otel.Tracer("aleutian.codegen")

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrEmptyInstruction is returned by Edit when the instruction is blank.
	ErrEmptyInstruction = errors.New("edit instruction is empty")

	// ErrNoHead is returned when an operation needs a checked-out commit.
	ErrNoHead = errors.New("no commit is checked out")

	// ErrMaxOptions is returned by AddVariant when the head commit already
	// holds the maximum number of options.
	ErrMaxOptions = errors.New("max options reached")

	// ErrMissingRequestContext is returned when the request that produced a
	// commit is unknown (imported commits, restored projects without it).
	ErrMissingRequestContext = errors.New("missing generation context")

	// ErrGenerationInProgress is returned when an operation cannot run
	// while a generation is live.
	ErrGenerationInProgress = errors.New("a generation is already in progress")

	// ErrNoReferenceImage is returned by Create without any image.
	ErrNoReferenceImage = errors.New("no reference image")

	// ErrEmptyCode is returned by Import without code.
	ErrEmptyCode = errors.New("imported code is empty")

	// ErrNoGeneration is returned by Wait before any generation started.
	ErrNoGeneration = errors.New("no generation has been started")
)

// =============================================================================
// State / Notifier / Opener
// =============================================================================

// State is the orchestrator's application state.
type State string

const (
	StateInitial   State = "initial"
	StateCoding    State = "coding"
	StateCodeReady State = "code_ready"
)

// Notifier surfaces user-visible notices.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

func (n LogNotifier) Success(message string) { n.logger().Info(message) }
func (n LogNotifier) Error(message string)   { n.logger().Error(message) }

// Opener opens generation sessions. *stream.Dialer implements it.
type Opener interface {
	Open(ctx context.Context, req protocol.Request, cb stream.Callbacks) (*stream.Session, error)
}

// =============================================================================
// Configuration
// =============================================================================

// DefaultMaxOptions bounds how many options a commit may hold.
const DefaultMaxOptions = 4

// elementInstruction joins an edit instruction and the selected element.
const elementInstruction = " referring to this element specifically: "

// Config controls generation defaults.
type Config struct {
	// Settings are merged into every request.
	Settings protocol.Settings

	// NumVariants is the number of variants a new commit starts with.
	NumVariants int

	// MaxOptions bounds AddVariant.
	MaxOptions int

	// ConsoleCapacity is the number of status lines kept per variant.
	ConsoleCapacity int
}

// DefaultConfig returns a config using protocol.DefaultSettings.
func DefaultConfig() Config {
	return Config{
		Settings:        protocol.DefaultSettings(),
		NumVariants:     1,
		MaxOptions:      DefaultMaxOptions,
		ConsoleCapacity: console.DefaultCapacity,
	}
}

// Inputs are the assets a project was created from.
type Inputs struct {
	Mode             protocol.InputMode `json:"mode"`
	ReferenceImages  []string           `json:"referenceImages,omitempty"`
	InitialPrompt    string             `json:"initialPrompt,omitempty"`
	ImportedFromCode bool               `json:"importedFromCode"`
}

func (in Inputs) clone() Inputs {
	out := in
	out.ReferenceImages = cloneStrings(in.ReferenceImages)
	return out
}

// EditParams describes one edit instruction.
type EditParams struct {
	Instruction string

	// Images are extra reference images for this instruction only.
	Images []string

	// SelectedElement is the HTML of the element the instruction targets.
	SelectedElement string
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator owns the generation workflows over one commits.Store.
type Orchestrator struct {
	store    *commits.Store
	opener   Opener
	notifier Notifier
	logger   *slog.Logger
	console  *console.Console

	numVariants int
	maxOptions  int

	mu       sync.Mutex
	settings protocol.Settings
	state    State
	inputs   Inputs
	requests map[commits.Hash]protocol.Request
	live     *generation
	last     *generation
}

// New creates an Orchestrator. notifier and logger may be nil.
func New(cfg Config, store *commits.Store, opener Opener, notifier Notifier, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	if cfg.NumVariants < 1 {
		cfg.NumVariants = 1
	}
	if cfg.MaxOptions < 1 {
		cfg.MaxOptions = DefaultMaxOptions
	}
	return &Orchestrator{
		store:       store,
		opener:      opener,
		notifier:    notifier,
		logger:      logger.With("component", "orchestrator"),
		console:     console.New(cfg.ConsoleCapacity),
		numVariants: cfg.NumVariants,
		maxOptions:  cfg.MaxOptions,
		settings:    cfg.Settings,
		state:       StateInitial,
		inputs:      Inputs{Mode: protocol.InputImage},
		requests:    make(map[commits.Hash]protocol.Request),
	}
}

// Store returns the commit store the orchestrator mutates.
func (o *Orchestrator) Store() *commits.Store {
	return o.store
}

// State returns the application state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Inputs returns the project's creation inputs.
func (o *Orchestrator) Inputs() Inputs {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inputs.clone()
}

// Settings returns the settings merged into new requests.
func (o *Orchestrator) Settings() protocol.Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings
}

// SetSettings replaces the settings for later requests.
func (o *Orchestrator) SetSettings(s protocol.Settings) {
	o.mu.Lock()
	o.settings = s
	o.mu.Unlock()
}

// Console returns the status log of a variant of the current generation.
func (o *Orchestrator) Console(variantIndex int) []string {
	return o.console.Lines(variantIndex)
}

// Request returns the request that produced a commit.
func (o *Orchestrator) Request(h commits.Hash) (protocol.Request, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	req, ok := o.requests[h]
	if !ok {
		return protocol.Request{}, false
	}
	return req.Clone(), true
}

// Wait blocks until the most recent generation ends.
func (o *Orchestrator) Wait(ctx context.Context) (stream.Result, error) {
	o.mu.Lock()
	g := o.last
	o.mu.Unlock()
	if g == nil {
		return stream.Result{}, ErrNoGeneration
	}
	select {
	case <-g.done:
		return g.result, nil
	case <-ctx.Done():
		return stream.Result{}, ctx.Err()
	}
}

// =============================================================================
// Create
// =============================================================================

// Create starts a new project from reference images or video frames.
//
// # Description
//
// Any live generation is superseded and the tree is reset. Only the first
// image is sent; the rest are kept as reference inputs. Create returns once
// the session is open; use Wait for the outcome.
//
// # Inputs
//
//   - ctx: Governs the whole session. Cancelling it cancels the generation.
//   - images: Data URLs or remote URLs. At least one is required.
//   - mode: protocol.InputImage or protocol.InputVideo.
//
// # Outputs
//
//   - error: ErrNoReferenceImage, protocol.ErrInvalidRequest, or the
//     opener's error (the tree is already rolled back in that case).
func (o *Orchestrator) Create(ctx context.Context, images []string, mode protocol.InputMode) error {
	if len(images) == 0 {
		return ErrNoReferenceImage
	}
	return o.create(ctx, Inputs{Mode: mode, ReferenceImages: cloneStrings(images)})
}

// CreateFromText starts a new project from a text prompt.
func (o *Orchestrator) CreateFromText(ctx context.Context, text string) error {
	return o.create(ctx, Inputs{Mode: protocol.InputText, InitialPrompt: text})
}

// Regenerate reruns the create flow from the project's saved inputs.
func (o *Orchestrator) Regenerate(ctx context.Context) error {
	in := o.Inputs()
	switch {
	case in.Mode == protocol.InputText && strings.TrimSpace(in.InitialPrompt) != "":
		return o.CreateFromText(ctx, in.InitialPrompt)
	case in.Mode != protocol.InputText && len(in.ReferenceImages) > 0:
		return o.Create(ctx, in.ReferenceImages, in.Mode)
	default:
		return fmt.Errorf("%w: no saved inputs to regenerate from", ErrMissingRequestContext)
	}
}

func (o *Orchestrator) create(ctx context.Context, in Inputs) error {
	o.mu.Lock()
	old := o.takeLiveLocked()
	o.resetLocked()
	o.inputs = in

	prompt := commits.PromptContent{Text: in.InitialPrompt, Images: []string{}}
	if in.Mode != protocol.InputText {
		prompt = commits.PromptContent{Images: []string{in.ReferenceImages[0]}}
	}
	req := protocol.Request{
		Settings:       o.settings,
		GenerationType: protocol.GenerationCreate,
		InputMode:      in.Mode,
		Prompt:         prompt,
	}
	if err := req.Validate(); err != nil {
		o.mu.Unlock()
		old.abandon()
		return err
	}

	g, err := o.beginLocked(genCreate, req, commits.NewCommitParams{
		Type:         commits.TypeCreate,
		Inputs:       &prompt,
		VariantCount: o.numVariants,
	})
	o.mu.Unlock()
	old.abandon()
	if err != nil {
		return err
	}
	return o.open(ctx, g, req)
}

// =============================================================================
// Edit
// =============================================================================

// Edit generates a new commit on top of head from an instruction.
//
// # Description
//
// The request carries the linearized history of head plus the new
// instruction. When an element is selected, its HTML is appended to the
// instruction. The prompt is the initial text in text mode and the first
// reference image otherwise.
//
// # Outputs
//
//   - error: ErrEmptyInstruction, ErrNoHead, ErrGenerationInProgress,
//     commits.ErrBrokenAncestry, protocol.ErrInvalidRequest, or the
//     opener's error.
func (o *Orchestrator) Edit(ctx context.Context, p EditParams) error {
	if strings.TrimSpace(p.Instruction) == "" {
		return ErrEmptyInstruction
	}

	o.mu.Lock()
	if o.live != nil {
		o.mu.Unlock()
		return ErrGenerationInProgress
	}
	head, ok := o.store.Head()
	if !ok {
		o.mu.Unlock()
		return ErrNoHead
	}
	history, err := o.store.History()
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("linearizing history: %w", err)
	}

	instruction := p.Instruction
	if p.SelectedElement != "" {
		instruction += elementInstruction + p.SelectedElement
	}
	entry := commits.PromptContent{Text: instruction, Images: cloneStrings(p.Images)}
	history = append(history, entry)

	prompt := commits.PromptContent{Images: []string{}}
	switch {
	case o.inputs.Mode == protocol.InputText:
		prompt.Text = o.inputs.InitialPrompt
	case len(o.inputs.ReferenceImages) > 0:
		prompt.Images = []string{o.inputs.ReferenceImages[0]}
	}
	req := protocol.Request{
		Settings:           o.settings,
		GenerationType:     protocol.GenerationUpdate,
		InputMode:          o.inputs.Mode,
		Prompt:             prompt,
		History:            history,
		IsImportedFromCode: o.inputs.ImportedFromCode,
	}
	if err := req.Validate(); err != nil {
		o.mu.Unlock()
		return err
	}

	g, err := o.beginLocked(genEdit, req, commits.NewCommitParams{
		Type:         commits.TypeEdit,
		ParentHash:   head,
		Inputs:       &entry,
		VariantCount: o.numVariants,
	})
	o.mu.Unlock()
	if err != nil {
		return err
	}
	return o.open(ctx, g, req)
}

// =============================================================================
// Add variant
// =============================================================================

// AddVariant generates one more option for the head commit.
//
// # Description
//
// Reuses the request that produced head with the current settings, grows
// the commit by one pending variant and selects it. Every event of the
// session is applied to that variant, whatever index the backend uses, and
// variantCount events are ignored. Cancelling only cancels the new option.
//
// # Outputs
//
//   - error: ErrGenerationInProgress, ErrNoHead, ErrMissingRequestContext,
//     ErrMaxOptions, or the opener's error.
func (o *Orchestrator) AddVariant(ctx context.Context) error {
	o.mu.Lock()
	if o.live != nil {
		o.mu.Unlock()
		return ErrGenerationInProgress
	}
	head, ok := o.store.HeadCommit()
	if !ok {
		o.mu.Unlock()
		return ErrNoHead
	}
	base, ok := o.requests[head.Hash]
	if !ok {
		o.mu.Unlock()
		return ErrMissingRequestContext
	}
	if len(head.Variants) >= o.maxOptions {
		o.mu.Unlock()
		return fmt.Errorf("%w (%d)", ErrMaxOptions, o.maxOptions)
	}

	req := base.Clone()
	req.Settings = o.settings
	if err := req.Validate(); err != nil {
		o.mu.Unlock()
		return err
	}

	target := len(head.Variants)
	if err := o.store.ResizeVariants(head.Hash, target+1); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("adding option: %w", err)
	}
	if err := o.store.UpdateSelectedVariantIndex(head.Hash, target); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("selecting option: %w", err)
	}

	g := o.newGenerationLocked(genAddVariant, head.Hash, head.ParentHash)
	g.target = target
	o.logger.Info("generating another option",
		"commit", head.Hash.Short(), "variant", target)
	o.mu.Unlock()
	return o.open(ctx, g, req)
}

// =============================================================================
// Cancel / Import / Reset / Navigation
// =============================================================================

// Cancel cancels the live generation, if any.
//
// # Description
//
// The rollback is applied immediately without waiting for the backend.
// When the session is still being opened, the rollback happens now and the
// session is closed as soon as it opens.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	g := o.live
	if g == nil {
		o.mu.Unlock()
		return
	}
	if g.session != nil {
		sess := g.session
		o.mu.Unlock()
		sess.Cancel()
		return
	}
	o.live = nil
	o.rollbackLocked(g)
	o.mu.Unlock()

	o.notifier.Success(protocol.CancelMessage)
	g.finish(cancelledResult())
}

// Import resets the project to a single import commit holding code.
func (o *Orchestrator) Import(code, stack string) error {
	if code == "" {
		return ErrEmptyCode
	}
	c, err := commits.NewCommit(commits.NewCommitParams{
		Type:  commits.TypeImport,
		Codes: []string{code},
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	old := o.takeLiveLocked()
	o.resetLocked()
	o.inputs.ImportedFromCode = true
	if stack != "" {
		o.settings.GeneratedCodeConfig = stack
	}
	if err := o.store.AddCommit(c); err != nil {
		o.mu.Unlock()
		old.abandon()
		return err
	}
	if err := o.store.SetHead(c.Hash); err != nil {
		o.mu.Unlock()
		old.abandon()
		return err
	}
	o.state = StateCodeReady
	o.mu.Unlock()
	old.abandon()

	o.logger.Info("imported code", "commit", c.Hash.Short(), "stack", stack, "bytes", len(code))
	return nil
}

// Reset supersedes any live generation and clears the project.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	old := o.takeLiveLocked()
	o.resetLocked()
	o.mu.Unlock()
	old.abandon()
}

// Checkout moves head to an existing commit.
func (o *Orchestrator) Checkout(h commits.Hash) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.live != nil {
		return ErrGenerationInProgress
	}
	if err := o.store.SetHead(h); err != nil {
		return err
	}
	if h == commits.NoHash {
		o.state = StateInitial
	} else {
		o.state = StateCodeReady
	}
	return nil
}

// SelectVariant selects an option of the head commit.
func (o *Orchestrator) SelectVariant(index int) error {
	head, ok := o.store.Head()
	if !ok {
		return ErrNoHead
	}
	return o.store.UpdateSelectedVariantIndex(head, index)
}

// =============================================================================
// Internal
// =============================================================================

// resetLocked clears the tree and the project inputs. Caller holds o.mu.
func (o *Orchestrator) resetLocked() {
	o.store.Reset()
	o.console.Reset()
	o.requests = make(map[commits.Hash]protocol.Request)
	o.inputs = Inputs{Mode: protocol.InputImage}
	o.state = StateInitial
}

// takeLiveLocked detaches the live generation from the orchestrator so its
// callbacks stop applying. The caller abandons it after releasing o.mu.
func (o *Orchestrator) takeLiveLocked() *generation {
	g := o.live
	o.live = nil
	if g != nil {
		o.logger.Info("superseding live generation", "commit", g.commit.Short())
	}
	return g
}

// beginLocked adds the commit to generate into and makes it head.
func (o *Orchestrator) beginLocked(kind generationKind, req protocol.Request, p commits.NewCommitParams) (*generation, error) {
	c, err := commits.NewCommit(p)
	if err != nil {
		return nil, err
	}
	if err := o.store.AddCommit(c); err != nil {
		return nil, err
	}
	if err := o.store.SetHead(c.Hash); err != nil {
		return nil, err
	}
	o.requests[c.Hash] = req.Clone()
	o.console.Reset()
	return o.newGenerationLocked(kind, c.Hash, c.ParentHash), nil
}

func (o *Orchestrator) newGenerationLocked(kind generationKind, commit, parent commits.Hash) *generation {
	g := &generation{
		o:      o,
		kind:   kind,
		commit: commit,
		parent: parent,
		done:   make(chan struct{}),
	}
	o.live = g
	o.last = g
	o.state = StateCoding
	return g
}

// open dials the session for g. o.mu must not be held.
func (o *Orchestrator) open(ctx context.Context, g *generation, req protocol.Request) error {
	ctx = g.startSpan(ctx, req)
	sess, err := o.opener.Open(ctx, req, g)
	if err != nil {
		o.mu.Lock()
		current := o.live == g
		if current {
			o.live = nil
			o.rollbackLocked(g)
		}
		o.mu.Unlock()
		if current {
			o.notifier.Error(protocol.ErrorMessage)
		}
		o.logger.Error("failed to open generation session", "commit", g.commit.Short(), "error", err)
		g.finish(stream.Result{
			Termination: protocol.TerminationAbnormal,
			Code:        protocol.CloseAbnormal,
			Local:       true,
			Cause:       err,
		})
		return err
	}

	o.mu.Lock()
	if o.live != g {
		// Cancelled, superseded or already finished while dialing.
		o.mu.Unlock()
		sess.Detach()
		sess.Cancel()
		return nil
	}
	g.session = sess
	o.mu.Unlock()
	return nil
}

// rollbackLocked applies the cancellation policy for g. Caller holds o.mu.
func (o *Orchestrator) rollbackLocked(g *generation) {
	switch g.kind {
	case genCreate:
		o.resetLocked()
		o.logger.Info("rolled back create", "commit", g.commit.Short())

	case genEdit:
		if err := o.store.RemoveCommit(g.commit); err != nil {
			o.logger.Warn("failed to remove cancelled edit", "commit", g.commit.Short(), "error", err)
		}
		delete(o.requests, g.commit)
		if err := o.store.SetHead(g.parent); err != nil {
			o.logger.Warn("failed to restore head", "commit", g.parent.Short(), "error", err)
		}
		o.state = StateCodeReady
		o.logger.Info("rolled back edit", "commit", g.commit.Short(), "head", g.parent.Short())

	case genAddVariant:
		err := o.store.UpdateVariantStatus(g.commit, g.target, commits.StatusCancelled, "")
		if err != nil && !errors.Is(err, commits.ErrIllegalTransition) {
			o.logger.Warn("failed to cancel option", "commit", g.commit.Short(), "variant", g.target, "error", err)
		}
		o.state = StateCodeReady
	}
}

func cancelledResult() stream.Result {
	return stream.Result{
		Termination: protocol.TerminationCancelled,
		Code:        protocol.CloseUserCancel,
		Local:       true,
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
