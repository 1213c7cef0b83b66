// Package engine drives the onboarding conversation. It owns every session
// mutation: one counterpart turn at a time per session, each turn running to
// completion under that session's lock before the state is written back.
//
// A turn feeds the answer through the assessor, advances to the next field
// via the resolver, and once nothing is left to collect runs the holistic
// risk pass that routes the session to completion or manual verification.
// External failures never abort a turn; every collaborator has a documented
// fallback. The only way a session becomes failed is an unexpected internal
// fault, and even then the record stays readable and exportable.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/assessor"
	"github.com/mandi-labs/onboard-cli/internal/compliance"
	"github.com/mandi-labs/onboard-cli/internal/escalation"
	"github.com/mandi-labs/onboard-cli/internal/model"
	"github.com/mandi-labs/onboard-cli/internal/oracle"
	"github.com/mandi-labs/onboard-cli/internal/resolver"
	"github.com/mandi-labs/onboard-cli/internal/risk"
	"github.com/mandi-labs/onboard-cli/internal/store"
)

var (
	// ErrSessionNotFound reports an unknown session id.
	ErrSessionNotFound = eris.New("engine: session not found")
	// ErrSessionTerminal reports an attempt to mutate a session that accepts
	// no further state changes.
	ErrSessionTerminal = eris.New("engine: session is terminal")
)

// startGreeting is the opener returned when no prompt could be drafted.
const startGreeting = "Welcome! Let's get started with your onboarding."

// Engine is the session state machine.
type Engine struct {
	store    store.Store
	resolver *resolver.Resolver
	assessor *assessor.Assessor
	scorer   *risk.Scorer
	router   *escalation.Router
	judge    oracle.Judge

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Engine with all collaborators.
func New(
	st store.Store,
	res *resolver.Resolver,
	asr *assessor.Assessor,
	scorer *risk.Scorer,
	router *escalation.Router,
	judge oracle.Judge,
) *Engine {
	return &Engine{
		store:    st,
		resolver: res,
		assessor: asr,
		scorer:   scorer,
		router:   router,
		judge:    judge,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockSession returns the per-session mutex, creating it on first use.
func (e *Engine) lockSession(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// forgetLock drops the mutex for an ended session. A turn still holding the
// old mutex is fenced by the store's row-existence check at write-back.
func (e *Engine) forgetLock(id string) {
	e.mu.Lock()
	delete(e.locks, id)
	e.mu.Unlock()
}

// Start creates a session, seeds any initial data, and asks the first
// question. An empty producer id gets a generated one. Seeded values for
// recognized fields get deterministic verdicts immediately; a fully seeded
// session goes straight to the holistic risk pass.
func (e *Engine) Start(ctx context.Context, producerID string, initial map[string]string) (*model.Snapshot, error) {
	if producerID == "" {
		producerID = uuid.New().String()
	}
	now := time.Now().UTC()
	sess := model.NewSession(uuid.New().String(), producerID, now)

	for field, value := range initial {
		if value == "" {
			continue
		}
		sess.Collected[field] = value
		if compliance.Recognized(field) {
			sess.Verdicts[field] = compliance.Validate(field, value)
		}
	}

	log := zap.L().With(zap.String("session_id", sess.ID))

	if next := e.resolver.Next(ctx, sess.Collected); next != "" {
		sess.CurrentField = next
		sess.Append(model.RoleAssistant, e.prompt(ctx, sess, next), now)
	} else {
		// Everything arrived as initial data.
		e.finishCollection(ctx, log, sess, now)
	}
	if sess.LastAssistantMessage() == "" {
		sess.Append(model.RoleAssistant, startGreeting, now)
	}

	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "engine: create session")
	}

	log.Info("engine: session started",
		zap.String("producer_id", sess.ProducerID),
		zap.Int("seeded_fields", len(sess.Collected)),
		zap.String("current_field", sess.CurrentField),
		zap.String("status", string(sess.Status)),
	)
	snap := sess.Snapshot()
	return &snap, nil
}

// Turn feeds one counterpart answer through the state machine and returns
// the resulting snapshot. Exactly one turn runs at a time per session. A
// turn against a terminal session is a no-op reporting the terminal status,
// and a turn whose session was ended while it was in flight discards its
// result at write-back.
func (e *Engine) Turn(ctx context.Context, sessionID, message string) (*model.Snapshot, error) {
	lock := e.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		snap := sess.Snapshot()
		return &snap, nil
	}

	log := zap.L().With(zap.String("session_id", sessionID))
	now := time.Now().UTC()

	sess.Append(model.RoleUser, message, now)
	sess.Attempts++
	if sess.Status == model.StatusStarted {
		sess.Status = model.StatusInProgress
	}

	if err := e.runTurn(ctx, log, sess, message, now); err != nil {
		// Unexpected internal fault: the session is marked failed but must
		// stay readable and exportable.
		log.Error("engine: turn failed", zap.Error(err))
		sess.Status = model.StatusFailed
		sess.CurrentField = ""
		if saveErr := e.store.UpdateSession(ctx, sess); saveErr != nil {
			log.Error("engine: could not persist failed status", zap.Error(saveErr))
		}
		return nil, eris.Wrap(err, "engine: turn")
	}

	if err := e.store.UpdateSession(ctx, sess); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			// The session was ended while this turn was in flight.
			log.Info("engine: session ended mid-turn, discarding result")
			return nil, eris.Wrapf(ErrSessionNotFound, "session %s", sessionID)
		}
		return nil, eris.Wrap(err, "engine: save session")
	}

	snap := sess.Snapshot()
	return &snap, nil
}

// runTurn applies one answer to the session. Every collaborator failure is
// consumed by its documented fallback, so the returned error only carries
// genuine internal faults; a panic is converted so the caller can mark the
// session failed.
func (e *Engine) runTurn(ctx context.Context, log *zap.Logger, sess *model.Session, answer string, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("engine: turn panicked: %v", r)
		}
	}()

	if sess.CurrentField != "" {
		decision := e.assessor.Assess(ctx, sess.CurrentField, answer, sess.Collected, sess.FailureCount)
		if decision.Verdict != nil {
			sess.Verdicts[decision.Field] = decision.Verdict
		}

		switch decision.Kind {
		case assessor.Accepted:
			sess.SetField(decision.Field, decision.Value)
			sess.Append(model.RoleAssistant,
				fmt.Sprintf("Great! I've recorded your %s.", e.resolver.Label(decision.Field)), now)
			log.Debug("engine: field accepted",
				zap.String("field", decision.Field),
				zap.Float64("confidence", decision.Confidence),
				zap.Bool("degraded", decision.Degraded),
			)

		case assessor.RejectedRetry:
			sess.FailureCount++
			sess.Append(model.RoleAssistant, decision.Feedback, now)
			if decision.Clarification != "" {
				sess.Append(model.RoleAssistant, decision.Clarification, now)
			}
			log.Debug("engine: answer rejected, awaiting retry",
				zap.String("field", decision.Field),
				zap.Int("failure_count", sess.FailureCount),
			)
			// Stay on this field.
			return nil

		case assessor.RejectedEscalate:
			sess.ParkPending(decision.Field, decision.PendingValue)
			sess.Append(model.RoleAssistant,
				fmt.Sprintf("I'm having trouble understanding your %s. Let's move on for now and our team will help you with this later.",
					e.resolver.Label(decision.Field)), now)
			log.Info("engine: field parked for review", zap.String("field", decision.Field))
		}
	}

	if next := e.resolver.Next(ctx, sess.Collected); next != "" {
		// Target change resets the consecutive-failure counter.
		sess.CurrentField = next
		sess.FailureCount = 0
		sess.Append(model.RoleAssistant, e.prompt(ctx, sess, next), now)
		return nil
	}

	e.finishCollection(ctx, log, sess, now)
	return nil
}

// finishCollection runs the holistic risk pass and routes the session to
// completion, manual verification, or back to collection. Fresh verdicts
// from revalidation replace the per-answer ones.
func (e *Engine) finishCollection(ctx context.Context, log *zap.Logger, sess *model.Session, now time.Time) {
	result := e.scorer.Score(ctx, sess)
	for field, v := range result.Verdicts {
		sess.Verdicts[field] = v
	}
	sess.Assessment = result.Assessment

	outcome := result.Outcome
	if outcome == risk.OutcomeContinue {
		if next := e.resolver.Next(ctx, sess.Collected); next != "" {
			sess.CurrentField = next
			sess.FailureCount = 0
			sess.Append(model.RoleAssistant, e.prompt(ctx, sess, next), now)
			return
		}
		// The oracle wants more data but every applicable field is already
		// collected or parked. A human has to look at it.
		log.Info("engine: nothing left to collect, escalating")
		outcome = risk.OutcomeEscalate
	}

	sess.CurrentField = ""
	if outcome == risk.OutcomeComplete {
		sess.Status = model.StatusCompleted
		sess.Append(model.RoleAssistant, completionMessage(sess), now)
		log.Info("engine: onboarding completed",
			zap.Float64("risk_score", result.Assessment.RiskScore),
		)
		return
	}

	routed := e.router.Route(ctx, sess)
	sess.Status = model.StatusPendingVerification
	sess.Append(model.RoleAssistant, routed.Message, now)
	e.enqueueReview(ctx, log, sess, routed.Priority, now)
	log.Info("engine: routed to manual verification",
		zap.String("priority", string(routed.Priority)),
		zap.Bool("scheduled", routed.Scheduled),
		zap.Float64("risk_score", result.Assessment.RiskScore),
	)
}

// enqueueReview puts the escalated session on the manual-review queue.
// Enqueue failure is not fatal: the session row itself carries the
// pending_verification status, so the case is never lost.
func (e *Engine) enqueueReview(ctx context.Context, log *zap.Logger, sess *model.Session, priority model.Priority, now time.Time) {
	item := &model.ReviewItem{
		ID:         uuid.New().String(),
		SessionID:  sess.ID,
		ProducerID: sess.ProducerID,
		Priority:   priority,
		Snapshot:   make(map[string]string, len(sess.Collected)),
		CreatedAt:  now,
	}
	for k, v := range sess.Collected {
		item.Snapshot[k] = v
	}
	if sess.Assessment != nil {
		item.RiskScore = sess.Assessment.RiskScore
		item.Issues = sess.Assessment.Issues
	}
	if err := e.store.CreateReviewItem(ctx, item); err != nil {
		log.Warn("engine: review item not enqueued", zap.Error(err))
	}
}

// Status returns the current snapshot without advancing the session.
func (e *Engine) Status(ctx context.Context, sessionID string) (*model.Snapshot, error) {
	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot()
	return &snap, nil
}

// Export returns the full serializable record of the session. Terminal and
// failed sessions stay exportable.
func (e *Engine) Export(ctx context.Context, sessionID string) (*model.FullRecord, error) {
	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rec := sess.Export(time.Now().UTC())
	return &rec, nil
}

// Import recreates a session from an exported record, keeping its session
// id, collected data, and status. A non-terminal session resumes collection
// at the next missing field. Importing over a live session id is an error.
func (e *Engine) Import(ctx context.Context, rec *model.FullRecord) (*model.Snapshot, error) {
	if rec == nil || rec.SessionID == "" {
		return nil, eris.New("engine: record has no session id")
	}
	sess := rec.Restore(time.Now().UTC())
	if !sess.Status.Terminal() {
		sess.CurrentField = e.resolver.Next(ctx, sess.Collected)
	}

	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "engine: import session")
	}

	zap.L().Info("engine: session imported",
		zap.String("session_id", sess.ID),
		zap.String("producer_id", sess.ProducerID),
		zap.String("status", string(sess.Status)),
		zap.Int("collected_fields", len(sess.Collected)),
	)
	snap := sess.Snapshot()
	return &snap, nil
}

// Prompt drafts the question for the session's current target field without
// advancing the conversation. A session with no target field returns its
// latest message instead.
func (e *Engine) Prompt(ctx context.Context, sessionID string) (string, error) {
	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess.CurrentField == "" {
		return sess.LastAssistantMessage(), nil
	}
	return e.prompt(ctx, sess, sess.CurrentField), nil
}

// Rescore forces the holistic risk pass, records the fresh assessment and
// verdicts on the session, and returns the assessment. The conversation is
// not advanced and the status does not change. A terminal session's
// assessment is final.
func (e *Engine) Rescore(ctx context.Context, sessionID string) (*model.RiskAssessment, error) {
	lock := e.lockSession(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, eris.Wrapf(ErrSessionTerminal, "session %s is %s", sessionID, sess.Status)
	}

	result := e.scorer.Score(ctx, sess)
	for field, v := range result.Verdicts {
		sess.Verdicts[field] = v
	}
	sess.Assessment = result.Assessment

	if err := e.store.UpdateSession(ctx, sess); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrSessionNotFound, "session %s", sessionID)
		}
		return nil, eris.Wrap(err, "engine: save session")
	}
	zap.L().Info("engine: session rescored",
		zap.String("session_id", sessionID),
		zap.Float64("risk_score", result.Assessment.RiskScore),
	)
	return result.Assessment, nil
}

// End deletes the session and returns its final status. End deliberately
// does not wait for an in-flight turn: the deleted row fences the turn's
// write-back, so its late result is discarded.
func (e *Engine) End(ctx context.Context, sessionID string) (model.OnboardingStatus, error) {
	sess, err := e.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if err := e.store.DeleteSession(ctx, sessionID); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return "", eris.Wrapf(ErrSessionNotFound, "session %s", sessionID)
		}
		return "", eris.Wrap(err, "engine: end session")
	}
	e.forgetLock(sessionID)
	zap.L().Info("engine: session ended",
		zap.String("session_id", sessionID),
		zap.String("status", string(sess.Status)),
	)
	return sess.Status, nil
}

// load maps the store's not-found onto the client-facing taxonomy.
func (e *Engine) load(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrSessionNotFound, "session %s", sessionID)
		}
		return nil, eris.Wrap(err, "engine: load session")
	}
	return sess, nil
}

// prompt drafts the conversational question for field, falling back to a
// plain request when the oracle is unavailable.
func (e *Engine) prompt(ctx context.Context, sess *model.Session, field string) string {
	text, err := e.judge.FieldPrompt(ctx, oracle.PromptRequest{
		Field:     field,
		Collected: sess.Collected,
		Recent:    recentTranscript(sess, 3),
		Attempts:  sess.Attempts,
	})
	if err != nil {
		zap.L().Warn("engine: prompt generation unavailable, using plain request",
			zap.String("session_id", sess.ID),
			zap.String("field", field),
			zap.Error(err),
		)
		return fmt.Sprintf("Could you please provide your %s?", e.resolver.Label(field))
	}
	return text
}

// completionMessage is the closing message for an auto-accepted session.
func completionMessage(sess *model.Session) string {
	email := sess.Collected["email"]
	if email == "" {
		email = "your registered email"
	}
	score := 0.0
	if sess.Assessment != nil {
		score = sess.Assessment.RiskScore
	}
	return fmt.Sprintf(
		"Excellent! Your onboarding is complete.\n\n"+
			"Here's what happens next:\n"+
			"1. You'll receive a confirmation email at %s\n"+
			"2. Your account will be activated within the next hour\n"+
			"3. You can start listing your products once activated\n\n"+
			"Your risk assessment score: %.1f/100 (Low risk)\n\n"+
			"Thank you for choosing our platform! If you have any questions, please don't hesitate to ask.",
		email, score)
}

// recentTranscript returns the newest n transcript entries, oldest first.
func recentTranscript(sess *model.Session, n int) []model.TranscriptEntry {
	if len(sess.Transcript) <= n {
		return sess.Transcript
	}
	return sess.Transcript[len(sess.Transcript)-n:]
}
