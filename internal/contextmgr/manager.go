package contextmgr

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/models"
	"github.com/mhismail3/tron-sub010/internal/sanitize"
	"github.com/mhismail3/tron-sub010/internal/summarizer"
	"github.com/mhismail3/tron-sub010/internal/tokens"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithEstimator replaces the default character estimator.
func WithEstimator(e tokens.Estimator) Option {
	return func(m *Manager) { m.estimator = e }
}

// WithRegistry sets the model registry.
func WithRegistry(r *models.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithSummarizer sets the default summarizer for compaction.
func WithSummarizer(s summarizer.Summarizer) Option {
	return func(m *Manager) { m.summarizer = s }
}

// WithMetrics sets the metrics recorder. A recorder that also implements
// sanitize.FixRecorder receives sanitizer fixes.
func WithMetrics(r MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithSessionID sets the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(m *Manager) { m.sessionID = id }
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager tracks one session's messages against its model's context window.
type Manager struct {
	mu sync.Mutex

	sessionID  string
	cfg        Config
	model      models.Info
	registry   *models.Registry
	estimator  tokens.Estimator
	summarizer summarizer.Summarizer
	metrics    MetricsRecorder
	logger     zerolog.Logger

	messages []message.Message

	// cachedTokens memoizes the estimate; -1 means stale.
	cachedTokens int
	// apiTokens is the provider-reported count, 0 when unset.
	apiTokens int

	callbacks []func(Snapshot)
}

// New returns a Manager for cfg. Configuration errors wrap ErrInvalidConfig.
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:          cfg,
		logger:       zerolog.Nop(),
		estimator:    tokens.NewCharEstimator(),
		summarizer:   summarizer.NewKeywordSummarizer(),
		metrics:      nopMetrics{},
		cachedTokens: -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sessionID == "" {
		m.sessionID = uuid.NewString()
	}
	m.logger = m.logger.With().Str("session_id", m.sessionID).Logger()
	if m.registry == nil {
		m.registry = models.NewRegistry(m.logger)
	}
	m.model = m.registry.Lookup(cfg.Model)
	return m, nil
}

// SessionID returns the session id.
func (m *Manager) SessionID() string { return m.sessionID }

// Model returns the current model entry.
func (m *Manager) Model() models.Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// OnCompactionNeeded registers cb. It runs, outside the Manager's lock, each
// time usage escalates into a more severe level at or above alert.
func (m *Manager) OnCompactionNeeded(cb func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// =============================================================================
// BUFFER
// =============================================================================

// AddMessage appends a copy of msg. The buffer is not sanitized here so a
// tool call awaiting its result is not closed early; see ProviderMessages.
func (m *Manager) AddMessage(msg message.Message) {
	m.mutate(func() {
		m.messages = append(m.messages, msg.Clone())
	})
}

// SetMessages replaces the buffer with a sanitized copy of msgs.
func (m *Manager) SetMessages(msgs []message.Message) {
	m.mutate(func() {
		m.messages = m.sanitize(msgs, true)
	})
}

// SetSystemPrompt replaces the system prompt counted in the baseline.
func (m *Manager) SetSystemPrompt(prompt string) {
	m.mutate(func() { m.cfg.SystemPrompt = prompt })
}

// SetTools replaces the tool definitions counted in the baseline.
func (m *Manager) SetTools(tools []message.ToolDefinition) {
	m.mutate(func() { m.cfg.Tools = append([]message.ToolDefinition(nil), tools...) })
}

// Messages returns a deep copy of the buffer.
func (m *Manager) Messages() []message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return message.CloneAll(m.messages)
}

// SystemPrompt returns the system prompt.
func (m *Manager) SystemPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.SystemPrompt
}

// ProviderMessages returns the buffer sanitized for submission to a provider.
// The buffer itself is not changed; fixes applied here are logged but not
// recorded.
func (m *Manager) ProviderMessages() []message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sanitize(m.messages, false)
}

// sanitize repairs msgs. Fixes reach the metrics recorder only when record
// is set.
func (m *Manager) sanitize(msgs []message.Message, record bool) []message.Message {
	opts := []sanitize.Option{sanitize.WithLogger(m.logger)}
	if fr, ok := m.metrics.(sanitize.FixRecorder); ok && record {
		opts = append(opts, sanitize.WithRecorder(fr))
	}
	return sanitize.Sanitize(msgs, opts...).Messages
}

// mutate runs fn under the lock, invalidates cached counts and fires
// callbacks if the threshold level escalated.
func (m *Manager) mutate(fn func()) {
	m.escalate(func() {
		fn()
		m.invalidateLocked()
	})
}

// escalate runs fn under the lock and fires callbacks if the threshold level
// escalated. Callbacks run after the lock is released.
func (m *Manager) escalate(fn func()) {
	m.mu.Lock()
	before := m.levelLocked()
	fn()
	snap := m.snapshotLocked()
	var fire []func(Snapshot)
	if snap.ThresholdLevel.escalated(before) {
		fire = append(fire, m.callbacks...)
	}
	m.mu.Unlock()

	for _, cb := range fire {
		cb(snap)
	}
}

func (m *Manager) invalidateLocked() {
	m.cachedTokens = -1
	m.apiTokens = 0
	m.logger.Debug().Int("messages", len(m.messages)).Msg("context: token cache invalidated")
}

// =============================================================================
// TOKENS
// =============================================================================

// CurrentTokens returns the tokens the next request would carry: the
// provider-reported count when one was set since the last mutation,
// otherwise the memoized estimate.
func (m *Manager) CurrentTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTokensLocked()
}

// SetAPIContextTokens records the input token count a provider reported for
// the current buffer. It is used instead of the estimate until the buffer,
// system prompt or tools change. A model switch keeps it.
func (m *Manager) SetAPIContextTokens(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 {
		n = 0
	}
	m.apiTokens = n
}

func (m *Manager) currentTokensLocked() int {
	if m.apiTokens > 0 {
		return m.apiTokens
	}
	return m.estimatedTokensLocked()
}

func (m *Manager) estimatedTokensLocked() int {
	if m.cachedTokens < 0 {
		b := m.breakdownLocked()
		m.cachedTokens = b.SystemPrompt + b.Tools + b.Messages
	}
	return m.cachedTokens
}

func (m *Manager) breakdownLocked() Breakdown {
	return Breakdown{
		SystemPrompt: m.estimator.EstimateText(m.cfg.SystemPrompt),
		Tools:        tokens.EstimateTools(m.estimator, m.cfg.Tools),
		Messages:     tokens.EstimateMessages(m.estimator, m.messages),
	}
}

func (m *Manager) usageLocked() float64 {
	if m.model.ContextWindow <= 0 {
		return 0
	}
	return float64(m.currentTokensLocked()) / float64(m.model.ContextWindow)
}

func (m *Manager) levelLocked() ThresholdLevel {
	return ThresholdLevelFor(m.usageLocked())
}

// Snapshot reports the current budget.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	usage := m.usageLocked()
	snap := Snapshot{
		SessionID:      m.sessionID,
		Model:          m.model.ID,
		MessageCount:   len(m.messages),
		CurrentTokens:  m.currentTokensLocked(),
		ContextLimit:   m.model.ContextWindow,
		UsagePercent:   usage,
		ThresholdLevel: ThresholdLevelFor(usage),
		Breakdown:      m.breakdownLocked(),
	}
	m.metrics.RecordThreshold(string(snap.ThresholdLevel), usage)
	return snap
}

// =============================================================================
// ADMISSION
// =============================================================================

// CanAcceptTurn reports whether a turn expected to add
// estimatedResponseTokens may start. Turns are refused from critical on.
func (m *Manager) CanAcceptTurn(estimatedResponseTokens int) TurnCheck {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.currentTokensLocked()
	after := current + estimatedResponseTokens
	level := m.levelLocked()
	return TurnCheck{
		CanProceed:         !level.BlocksTurns(),
		NeedsCompaction:    level.NeedsCompaction(),
		WouldExceedLimit:   after > m.model.ContextWindow,
		CurrentTokens:      current,
		EstimatedAfterTurn: after,
		ContextLimit:       m.model.ContextWindow,
	}
}

// ShouldCompact reports whether usage reached the configured compaction
// threshold.
func (m *Manager) ShouldCompact() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usageLocked() >= m.cfg.CompactionThreshold
}

// =============================================================================
// MODEL SWITCH
// =============================================================================

// SwitchModel moves the session to modelID. Messages and token counts are
// kept as they are; the threshold level is re-evaluated against the new
// context window.
func (m *Manager) SwitchModel(modelID string) {
	m.escalate(func() {
		prev := m.model.ID
		m.model = m.registry.Lookup(modelID)
		m.logger.Info().
			Str("from", prev).
			Str("to", m.model.ID).
			Int("context_limit", m.model.ContextWindow).
			Msg("context: model switched")
	})
}
