package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/weberitsol/assessment-engine/internal/models"
)

const (
	defaultAutosaveInterval = 30 * time.Second
	defaultCountdownTick    = 1 * time.Second
)

// SessionCallbacks receive timer notifications on the session goroutine.
// They must not block.
type SessionCallbacks struct {
	OnTick       func(remainingSeconds int)
	OnWarning    func(remainingSeconds int)
	OnAutoSubmit func(summary *SubmissionSummary, err error)
}

// AttemptSession is the client-side runtime of one in-progress attempt: an
// in-memory response buffer, a 1s countdown and a periodic autosave. Both
// tickers run on one goroutine and stop together when the session context
// is cancelled.
type AttemptSession struct {
	attemptID   uint
	candidateID string

	service AttemptService
	logger  *slog.Logger

	deadline         time.Time
	warningThreshold int
	autosaveInterval time.Duration
	callbacks        SessionCallbacks

	mu              sync.Mutex
	buffer          map[uint]*bufferedResponse
	currentQuestion uint
	questionShownAt time.Time
	submitted       bool

	cancel context.CancelFunc
	done   chan struct{}
}

// bufferedResponse is the local working copy of one question's answer.
// version counts mutations so a sync ack can tell whether the answer
// changed while the request was in flight.
type bufferedResponse struct {
	selectedOptions  []string
	responseText     string
	flagged          bool
	timeSpentSeconds int
	dirty            bool
	version          uint64
}

func (b *bufferedResponse) touch() {
	b.dirty = true
	b.version++
}

// NewAttemptSession builds a session over an in-progress attempt. The
// deadline is derived from the attempt's start instant, never from a
// stored countdown.
func NewAttemptSession(attempt *models.TestAttempt, warningThresholdSeconds int, service AttemptService, logger *slog.Logger, callbacks SessionCallbacks) *AttemptSession {
	deadline := attempt.StartedAt.Add(time.Duration(attempt.DurationMinutes) * time.Minute)
	return &AttemptSession{
		attemptID:        attempt.ID,
		candidateID:      attempt.CandidateID,
		service:          service,
		logger:           logger,
		deadline:         deadline,
		warningThreshold: warningThresholdSeconds,
		autosaveInterval: defaultAutosaveInterval,
		callbacks:        callbacks,
		buffer:           make(map[uint]*bufferedResponse),
		done:             make(chan struct{}),
	}
}

// Start launches the countdown and autosave loop. The parent context owns
// the session; cancelling it stops both tickers.
func (s *AttemptSession) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)
}

// Stop cancels the session and waits for the loop to exit. A no-op when
// the session was never started.
func (s *AttemptSession) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *AttemptSession) run(ctx context.Context) {
	defer close(s.done)

	countdown := time.NewTicker(defaultCountdownTick)
	defer countdown.Stop()
	autosave := time.NewTicker(s.autosaveInterval)
	defer autosave.Stop()

	warned := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-countdown.C:
			remaining := int(time.Until(s.deadline).Seconds())
			if remaining < 0 {
				remaining = 0
			}

			if s.callbacks.OnTick != nil {
				s.callbacks.OnTick(remaining)
			}
			if !warned && remaining <= s.warningThreshold && remaining > 0 {
				warned = true
				if s.callbacks.OnWarning != nil {
					s.callbacks.OnWarning(remaining)
				}
			}
			if remaining == 0 {
				s.autoSubmit(ctx)
				return
			}

		case <-autosave.C:
			s.autosaveCurrent(ctx)
		}
	}
}

// ===== RESPONSE BUFFER =====

// GoToQuestion moves the cursor. Time spent on the question being left is
// added to its accumulated counter before the index changes. This is local
// bookkeeping only; the network sees the answer on the next autosave tick
// or at submission.
func (s *AttemptSession) GoToQuestion(testQuestionID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accountTimeLocked()
	s.currentQuestion = testQuestionID
	s.questionShownAt = time.Now()
}

// SelectOption records an option choice. Single-choice questions replace
// the selection, multi-choice questions toggle the option.
func (s *AttemptSession) SelectOption(testQuestionID uint, optionID string, multi bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.bufferForLocked(testQuestionID)
	if !multi {
		buf.selectedOptions = []string{optionID}
		buf.touch()
		return
	}

	for i, id := range buf.selectedOptions {
		if id == optionID {
			buf.selectedOptions = append(buf.selectedOptions[:i], buf.selectedOptions[i+1:]...)
			buf.touch()
			return
		}
	}
	buf.selectedOptions = append(buf.selectedOptions, optionID)
	buf.touch()
}

// SetText records a free-text or integer answer.
func (s *AttemptSession) SetText(testQuestionID uint, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.bufferForLocked(testQuestionID)
	buf.responseText = text
	buf.touch()
}

// ToggleFlag flips the review marker.
func (s *AttemptSession) ToggleFlag(testQuestionID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.bufferForLocked(testQuestionID)
	buf.flagged = !buf.flagged
	buf.touch()
}

// Submit flushes the complete buffered response set and finalizes the
// attempt, then stops the tickers.
func (s *AttemptSession) Submit(ctx context.Context) (*SubmissionSummary, error) {
	s.mu.Lock()
	s.accountTimeLocked()
	reqs := s.allRequestsLocked()
	s.submitted = true
	s.mu.Unlock()

	summary, err := s.service.Submit(ctx, &SubmitAttemptRequest{
		AttemptID: s.attemptID,
		Responses: reqs,
		EndReason: models.AttemptEndReasonManual,
	}, s.candidateID)

	if s.cancel != nil {
		s.cancel()
	}
	return summary, err
}

func (s *AttemptSession) autoSubmit(ctx context.Context) {
	s.mu.Lock()
	if s.submitted {
		s.mu.Unlock()
		return
	}
	s.accountTimeLocked()
	reqs := s.allRequestsLocked()
	s.submitted = true
	s.mu.Unlock()

	s.logger.Info("Auto-submitting attempt at deadline", "attempt_id", s.attemptID)

	summary, err := s.service.Submit(ctx, &SubmitAttemptRequest{
		AttemptID: s.attemptID,
		Responses: reqs,
		EndReason: models.AttemptEndReasonTimeout,
	}, s.candidateID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Auto-submit failed",
			"error", err,
			"attempt_id", s.attemptID)
	}
	if s.callbacks.OnAutoSubmit != nil {
		s.callbacks.OnAutoSubmit(summary, err)
	}
}

// autosaveCurrent syncs only the question the candidate is looking at, and
// only when it holds an answer. A failed sync never interrupts the attempt;
// the buffer stays dirty and the next tick retries.
func (s *AttemptSession) autosaveCurrent(ctx context.Context) {
	s.mu.Lock()
	req, version := s.flushRequestLocked(s.currentQuestion)
	s.mu.Unlock()

	if req == nil {
		return
	}
	s.save(ctx, *req, version)
}

func (s *AttemptSession) save(ctx context.Context, req SaveResponseRequest, version uint64) {
	if err := s.service.SaveResponse(ctx, s.attemptID, &req, s.candidateID); err != nil {
		s.logger.WarnContext(ctx, "Response sync failed, keeping local copy",
			"error", &SyncFailure{AttemptID: s.attemptID, Cause: err},
			"test_question_id", req.TestQuestionID)
		return
	}

	// Settle the buffer only for what actually reached the server. The
	// synced seconds drain from the counter; the dirty flag clears only if
	// the answer did not change while the request was in flight.
	s.mu.Lock()
	if buf := s.buffer[req.TestQuestionID]; buf != nil {
		if req.TimeSpentSeconds != nil {
			buf.timeSpentSeconds -= *req.TimeSpentSeconds
			if buf.timeSpentSeconds < 0 {
				buf.timeSpentSeconds = 0
			}
		}
		if buf.version == version {
			buf.dirty = false
		}
	}
	s.mu.Unlock()
}

// ===== INTERNAL (s.mu held) =====

func (s *AttemptSession) bufferForLocked(testQuestionID uint) *bufferedResponse {
	buf := s.buffer[testQuestionID]
	if buf == nil {
		buf = &bufferedResponse{}
		s.buffer[testQuestionID] = buf
	}
	return buf
}

func (s *AttemptSession) accountTimeLocked() {
	if s.currentQuestion == 0 || s.questionShownAt.IsZero() {
		return
	}
	spent := int(time.Since(s.questionShownAt).Seconds())
	if spent > 0 {
		buf := s.bufferForLocked(s.currentQuestion)
		buf.timeSpentSeconds += spent
		buf.touch()
	}
	s.questionShownAt = time.Now()
}

// flushRequestLocked builds a save request for one buffered response,
// leaving the buffer untouched until the save is acknowledged. Returns nil
// when the question is clean or holds no answer payload: a flag or a time
// counter alone is never transmitted, only an actual answer is.
func (s *AttemptSession) flushRequestLocked(testQuestionID uint) (*SaveResponseRequest, uint64) {
	buf := s.buffer[testQuestionID]
	if buf == nil || !buf.dirty {
		return nil, 0
	}
	if len(buf.selectedOptions) == 0 && buf.responseText == "" {
		return nil, 0
	}

	req := buf.toRequest(testQuestionID)
	return &req, buf.version
}

func (s *AttemptSession) allRequestsLocked() []SaveResponseRequest {
	ids := make([]uint, 0, len(s.buffer))
	for id := range s.buffer {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	reqs := make([]SaveResponseRequest, 0, len(ids))
	for _, id := range ids {
		buf := s.buffer[id]
		reqs = append(reqs, buf.toRequest(id))
		buf.timeSpentSeconds = 0
		buf.dirty = false
	}
	return reqs
}

func (b *bufferedResponse) toRequest(testQuestionID uint) SaveResponseRequest {
	text := b.responseText
	flagged := b.flagged
	spent := b.timeSpentSeconds
	return SaveResponseRequest{
		TestQuestionID:   testQuestionID,
		SelectedOptions:  append([]string(nil), b.selectedOptions...),
		ResponseText:     &text,
		FlaggedForReview: &flagged,
		TimeSpentSeconds: &spent,
	}
}
