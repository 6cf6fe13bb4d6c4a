// Package kernel owns the running hermitcrab: the boot sequence, the live
// interface and the capabilities handed to it.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hermitcrab/agent"
	"hermitcrab/config"
	"hermitcrab/memfs"
	"hermitcrab/provider"
	"hermitcrab/pscale"
	"hermitcrab/storage"
	"hermitcrab/synth"
	"hermitcrab/tools"
)

// Version is reported to the interface as capabilities.version.
const Version = "hermitcrab-0.2-g1"

const (
	BootPrompt         = "BOOT"
	bootMaxTokens      = 16000
	bootThinkingBudget = 10000
)

// ErrNoText is returned when the boot reply carries no text at all.
var ErrNoText = errors.New("no text in response")

// ErrRecompileInput is returned for an empty recompile source.
var ErrRecompileInput = errors.New("recompile() requires a JSX string")

// ProbeFunc resolves the model used for every call.
type ProbeFunc func(ctx context.Context, onStatus func(string)) string

// Deps are the collaborators a kernel runs on. Memories, Changelog,
// Fetcher and History may be nil.
type Deps struct {
	Config    *config.Config
	KV        storage.KV
	Completer provider.Completer
	Memories  *pscale.Log
	Changelog *pscale.Log
	Fetcher   *tools.Fetcher
	History   *storage.History
	Probe     ProbeFunc
	Clock     func() time.Time
}

// Kernel is the orchestrating object. Its exported methods are safe for
// concurrent use; the live component serializes its own runtime.
type Kernel struct {
	cfg       *config.Config
	kv        storage.KV
	pscale    *pscale.Store
	memory    *memfs.Store
	completer provider.Completer
	executor  *tools.Executor
	llm       *agent.LLM
	pipeline  *synth.Pipeline
	chat      *agent.Chat
	probe     ProbeFunc
	clock     func() time.Time
	statuses  *statusLog

	mu           sync.RWMutex
	ctx          context.Context
	model        string
	constitution string
	source       string
	component    *synth.Component
	bootText     string
	listener     func(Status)
}

// New wires a kernel over deps. Nothing is read or written until Boot.
func New(deps Deps) (*Kernel, error) {
	if deps.Config == nil || deps.KV == nil || deps.Completer == nil {
		return nil, errors.New("kernel requires config, kv and completer")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	k := &Kernel{
		cfg:       deps.Config,
		kv:        deps.KV,
		pscale:    pscale.New(deps.KV),
		memory:    memfs.New(deps.KV),
		completer: deps.Completer,
		probe:     deps.Probe,
		clock:     clock,
		statuses:  newStatusLog(deps.Config.UI.StatusLines),
		ctx:       context.Background(),
		model:     deps.Config.BootModel(),
	}

	k.executor = tools.NewDefaultExecutor(tools.Deps{
		Memory:     k.memory,
		Pscale:     k.pscale,
		Memories:   deps.Memories,
		Changelog:  deps.Changelog,
		Fetcher:    deps.Fetcher,
		Recompiler: k,
		Clock:      clock,
	})
	k.llm = agent.NewLLM(agent.NewLoop(deps.Completer, k.executor), agent.Defaults{
		Model:        k.Model,
		Constitution: k.Constitution,
		Tools:        k.DefaultTools,
	})
	k.pipeline = synth.NewPipeline(deps.Completer, k.Model, deps.Config.Budgets.FixAttempts)

	if deps.History != nil {
		var crystallizer *agent.Crystallizer
		if deps.Memories != nil {
			summarizer := agent.NewSummarizer(deps.Completer, deps.Config.Model.Summarizer)
			crystallizer = agent.NewCrystallizer(summarizer, deps.Memories)
		}
		k.chat = agent.NewChat(k.llm, deps.History, crystallizer, agent.LLMOptions{
			MaxLoops: deps.Config.Budgets.MaxLoops,
			Tools:    k.executor.PscaleDefinitions(),
		})
	}
	return k, nil
}

// Model is the model every call defaults to.
func (k *Kernel) Model() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.model
}

// Constitution is the system prompt loaded from S:0.12.
func (k *Kernel) Constitution() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.constitution
}

// DefaultTools is the DEFAULT_TOOLS list.
func (k *Kernel) DefaultTools() []any {
	return k.executor.Definitions()
}

// Executor returns the client tool executor.
func (k *Kernel) Executor() *tools.Executor {
	return k.executor
}

// Pscale returns the coordinate store.
func (k *Kernel) Pscale() *pscale.Store {
	return k.pscale
}

// Chat returns the conversation surface, nil without a history.
func (k *Kernel) Chat() *agent.Chat {
	return k.chat
}

// Source returns the live interface source, "" before a successful boot.
func (k *Kernel) Source() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.source
}

// Component returns the live interface, nil when there is none.
func (k *Kernel) Component() *synth.Component {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.component
}

// BootText is the raw boot reply kept as the fallback view.
func (k *Kernel) BootText() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.bootText
}

// Statuses returns the retained status lines, oldest first.
func (k *Kernel) Statuses() []Status {
	return k.statuses.snapshot()
}

// SetListener registers fn to receive every status line.
func (k *Kernel) SetListener(fn func(Status)) {
	k.mu.Lock()
	k.listener = fn
	k.mu.Unlock()
}

// Status records a line and forwards it to the listener.
func (k *Kernel) Status(msg string, kind Kind) {
	s := Status{Time: k.clock(), Message: msg, Kind: kind}
	k.statuses.add(s)
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Kernel] %s: %s", kind, msg)
	}
	k.mu.RLock()
	fn := k.listener
	k.mu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

func (k *Kernel) baseContext() context.Context {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.ctx
}

// BootMode says how Boot ended.
type BootMode string

const (
	BootRestored BootMode = "restored"
	BootFresh    BootMode = "fresh"
	BootFallback BootMode = "fallback"
	BootFailed   BootMode = "failed"
)

// BootResult describes the outcome of Boot. Text is the model's boot
// reply when one was received.
type BootResult struct {
	Mode  BootMode
	Model string
	Text  string
}

// Boot seeds or loads the coordinates, probes the model, restores the
// saved interface or generates a new one. onStatus, when non-nil, becomes
// the status listener. ctx also bounds calls the interface makes later.
func (k *Kernel) Boot(ctx context.Context, onStatus func(Status)) (*BootResult, error) {
	k.mu.Lock()
	k.ctx = ctx
	if onStatus != nil {
		k.listener = onStatus
	}
	k.mu.Unlock()

	if err := k.loadCoordinates(); err != nil {
		k.Status(fmt.Sprintf("boot failed: %v", err), KindError)
		return &BootResult{Mode: BootFailed}, err
	}

	k.Status("probing best available model...", KindInfo)
	if k.probe != nil {
		model := k.probe(ctx, func(msg string) {
			kind := KindInfo
			if strings.HasPrefix(msg, "using ") {
				kind = KindSuccess
			}
			k.Status(msg, kind)
		})
		if model != "" {
			k.mu.Lock()
			k.model = model
			k.mu.Unlock()
		}
	}

	if restored := k.restore(); restored {
		return &BootResult{Mode: BootRestored, Model: k.Model()}, nil
	}
	return k.bootFresh(ctx)
}

func (k *Kernel) loadCoordinates() error {
	k.Status("checking pscale coordinates...", KindInfo)
	seeded, err := k.pscale.Seeded()
	if err != nil {
		return err
	}
	if !seeded {
		k.Status("first boot — seeding coordinates...", KindInfo)
		if err := k.pscale.Seed("", ""); err != nil {
			return err
		}
		k.Status("coordinates seeded", KindSuccess)
	} else {
		k.Status("existing coordinates found — loading from pscale", KindInfo)
	}

	constitution, restored, err := k.pscale.Constitution()
	if err != nil {
		return fmt.Errorf("failed to load constitution: %w", err)
	}
	if restored && seeded {
		k.Status("S:0.12 missing — restored default constitution", KindError)
	}
	k.mu.Lock()
	k.constitution = constitution
	k.mu.Unlock()
	k.Status(fmt.Sprintf("constitution loaded from S:0.12 (%d chars)", len(constitution)), KindSuccess)
	return nil
}

// restore builds the saved interface. A saved source that no longer
// builds is deleted so the next boot starts fresh.
func (k *Kernel) restore() bool {
	saved, ok, err := k.pscale.Read(pscale.CoordInterface)
	if err != nil || !ok || strings.TrimSpace(saved) == "" {
		return false
	}

	k.Status("restoring interface from S:0.2...", KindInfo)
	comp, err := synth.Build(saved, k)
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Kernel] restore failed: %v", err)
		}
		if _, err := k.pscale.Delete(pscale.CoordInterface); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Kernel] failed to delete S:0.2: %v", err)
		}
		k.Status("restore failed — booting fresh", KindError)
		return false
	}

	k.swap(comp, saved)
	k.Status("restored from coordinates", KindSuccess)
	return true
}

func (k *Kernel) bootFresh(ctx context.Context) (*BootResult, error) {
	model := k.Model()
	k.Status(fmt.Sprintf("calling %s with thinking + tools...", model), KindInfo)

	req := &provider.Request{
		Model:     model,
		MaxTokens: bootMaxTokens,
		System:    k.Constitution(),
		Messages:  []provider.Message{provider.TextMessage("user", BootPrompt)},
		Tools:     k.DefaultTools(),
		Thinking:  provider.EnabledThinking(bootThinkingBudget),
	}
	res, err := k.llm.Loop().Run(ctx, req, agent.RunOptions{
		MaxLoops: k.cfg.Budgets.BootMaxLoops,
		OnStatus: func(msg string) { k.Status("◇ "+msg, KindInfo) },
	})
	if err != nil {
		k.Status(fmt.Sprintf("boot failed: %v", err), KindError)
		return &BootResult{Mode: BootFailed, Model: model}, err
	}

	resp := res.Response
	k.Status(fmt.Sprintf("response received (stop: %s)", resp.StopReason), KindSuccess)

	text := resp.Text()
	k.mu.Lock()
	k.bootText = text
	k.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		k.Status("no text in response", KindError)
		return &BootResult{Mode: BootFallback, Model: model}, ErrNoText
	}
	return k.synthesize(ctx, text)
}

func (k *Kernel) synthesize(ctx context.Context, text string) (*BootResult, error) {
	model := k.Model()
	result, err := k.pipeline.Synthesize(ctx, text, k, func(msg string, isError bool) {
		kind := KindInfo
		if isError {
			kind = KindError
		}
		k.Status(msg, kind)
	})
	if err != nil {
		var failure *synth.Failure
		if !errors.As(err, &failure) {
			k.Status(fmt.Sprintf("boot failed: %v", err), KindError)
		}
		return &BootResult{Mode: BootFallback, Model: model, Text: text}, err
	}

	if err := k.writeCoord(pscale.CoordInterface, result.Source); err != nil {
		return &BootResult{Mode: BootFallback, Model: model, Text: text}, err
	}
	if err := k.writeCoord(pscale.CoordInterface+"1", result.Source); err != nil {
		return &BootResult{Mode: BootFallback, Model: model, Text: text}, err
	}
	k.swap(result.Component, result.Source)
	k.Status("rendering + persisted to S:0.2", KindSuccess)
	return &BootResult{Mode: BootFresh, Model: model, Text: text}, nil
}

// Retry runs synthesis again on the last boot reply, or a full boot when
// there is none.
func (k *Kernel) Retry(ctx context.Context) (*BootResult, error) {
	text := k.BootText()
	if strings.TrimSpace(text) == "" {
		return k.Boot(ctx, nil)
	}
	k.Status("retrying synthesis...", KindInfo)
	return k.synthesize(ctx, text)
}

// Reboot discards the persisted interface and boots fresh.
func (k *Kernel) Reboot(ctx context.Context) (*BootResult, error) {
	if _, err := k.pscale.Delete(pscale.CoordInterface); err != nil {
		return nil, fmt.Errorf("failed to clear S:0.2: %w", err)
	}
	k.mu.Lock()
	k.component = nil
	k.source = ""
	k.bootText = ""
	k.mu.Unlock()
	k.Status("S:0.2 cleared — rebooting", KindInfo)
	return k.Boot(ctx, nil)
}

// Recompile builds source against the live capabilities and, when it
// works, swaps it in and records a new S:0.2N version. The running
// interface is untouched on failure.
func (k *Kernel) Recompile(source string) (string, error) {
	if strings.TrimSpace(source) == "" {
		return "", ErrRecompileInput
	}
	comp, err := synth.Build(source, k)
	if err != nil {
		return "", err
	}

	versions, err := k.pscale.Versions()
	if err != nil {
		return "", err
	}
	version := fmt.Sprintf("%s%d", pscale.CoordInterface, len(versions)+1)
	if err := k.writeCoord(version, source); err != nil {
		return "", err
	}
	// S:0.2 never holds a source that is not live
	if err := k.writeCoord(pscale.CoordInterface, source); err != nil {
		return "", err
	}

	k.swap(comp, source)
	k.Status("recompile succeeded → "+version, KindSuccess)
	return version, nil
}

// Dispatch forwards an event to the live interface.
func (k *Kernel) Dispatch(id int, ev synth.Event) (*synth.Node, error) {
	comp := k.Component()
	if comp == nil {
		return nil, errors.New("no interface is running")
	}
	return comp.Dispatch(id, ev)
}

func (k *Kernel) swap(comp *synth.Component, source string) {
	k.mu.Lock()
	k.component = comp
	k.source = source
	k.mu.Unlock()
}

func (k *Kernel) writeCoord(coord, content string) error {
	if _, err := k.pscale.Write(coord, content); err != nil {
		return fmt.Errorf("failed to persist %s: %w", coord, err)
	}
	return nil
}
