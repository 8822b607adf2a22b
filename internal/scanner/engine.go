// Package scanner hosts the capture and scoring state machine. One Engine
// owns one scan session; it is constructed per session, driven by a single
// run loop, and disposed with the session. All mutable state lives inside
// the loop; frames, OCR results, and resets reach it through channels.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/id-verify/internal/consensus"
	"github.com/example/id-verify/internal/mrz"
	"github.com/example/id-verify/internal/ocr"
	"github.com/example/id-verify/internal/quality"
)

// Frame is one already-cropped document image delivered by the camera
// collaborator. Luma is the 8-bit luminance plane used for quality scoring;
// Image holds the encoded bytes handed to the OCR collaborator and returned
// in SideCaptured events. ID identifies the frame to the submitting client;
// the engine carries it into its per-frame logging but orders frames by its
// own sequence counter. Frames are consumed synchronously and never
// persisted.
type Frame struct {
	ID     string
	Side   Side
	Width  int
	Height int
	Luma   []byte
	Image  []byte
}

// ocrOutcome carries a collaborator result back into the loop, tagged with
// the frame sequence and session generation it belongs to so stale results
// can be discarded.
type ocrOutcome struct {
	seq   uint64
	gen   uint64
	lines []string
	err   error
}

type sideState struct {
	// window is nil for the front side; only the MRZ side runs consensus.
	window      *consensus.Window
	framesSeen  int
	bestQuality quality.Score
	bestImage   []byte
	prevLuma    []byte
	goodStreak  int
	baselineSeq uint64
	capturedAt  time.Time
}

// Engine is the capture and scoring state machine for one scan session.
type Engine struct {
	cfg    Config
	ocr    ocr.Client
	logger *zap.Logger

	frames  chan Frame
	results chan ocrOutcome
	resets  chan struct{}
	events  chan Event
	done    chan struct{}

	// Loop-owned state. Never touched outside the run loop after Start.
	generation  uint64
	frameSeq    uint64
	front       sideState
	back        sideState
	scanErrors  []ScanError
	startedAt   time.Time
	ocrInFlight bool

	// Snapshot shared with callers.
	mu       sync.Mutex
	phase    Phase
	progress float64
	result   *ScanResult
}

// New constructs an engine for one session. Call Start to begin consuming
// frames.
func New(cfg Config, client ocr.Client, logger *zap.Logger) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:     cfg,
		ocr:     client,
		logger:  logger.Named("scanner"),
		frames:  make(chan Frame),
		results: make(chan ocrOutcome),
		resets:  make(chan struct{}, 1),
		events:  make(chan Event, cfg.EventBuffer),
		done:    make(chan struct{}),
		phase:   PhaseIdle,
	}
	e.resetSides()
	return e
}

// Start launches the run loop. The engine stops when ctx is canceled.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

// SubmitFrame offers a frame to the engine. It reports false when the frame
// was dropped because a prior frame is still being processed; frames are
// never queued, which bounds latency under slow OCR.
func (e *Engine) SubmitFrame(f Frame) bool {
	select {
	case e.frames <- f:
		return true
	case <-e.done:
		return false
	default:
		return false
	}
}

// Reset asks the loop to return to IDLE from any state, clearing all
// accumulated consensus state and scores. Safe to call at any time; an
// in-flight OCR result from before the reset is discarded by its generation
// tag.
func (e *Engine) Reset() {
	select {
	case e.resets <- struct{}{}:
	default:
		// A reset is already pending.
	}
}

// Events returns the engine's notification stream.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Snapshot returns the current phase and progress.
func (e *Engine) Snapshot() (Phase, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase, e.progress
}

// Result returns the terminal scan result once the session completed.
func (e *Engine) Result() (*ScanResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.result != nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	e.transition(PhaseDetectingFront, "hold the front of the document steady")
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.resets:
			e.handleReset()
		case f := <-e.frames:
			e.handleFrame(ctx, f)
		case r := <-e.results:
			e.handleOCRResult(r)
		}
	}
}

func (e *Engine) handleReset() {
	e.generation++
	e.scanErrors = nil
	e.ocrInFlight = false
	e.resetSides()

	e.mu.Lock()
	e.result = nil
	e.mu.Unlock()

	e.transition(PhaseIdle, "session reset")
}

func (e *Engine) resetSides() {
	// Stability always demands at least one passing check digit; the
	// configurable MinChecksumPasses threshold only decides the final
	// checksumValid verdict.
	e.front = sideState{}
	e.back = sideState{window: consensus.NewWindow(e.cfg.WindowSize, e.cfg.StabilityFrames, 1)}
	e.startedAt = time.Time{}
}

func (e *Engine) handleFrame(ctx context.Context, f Frame) {
	phase, _ := e.Snapshot()
	if phase == PhaseIdle {
		// A frame after reset restarts detection.
		e.transition(PhaseDetectingFront, "hold the front of the document steady")
		phase = PhaseDetectingFront
	}

	var side *sideState
	switch {
	case phase == PhaseDetectingFront && f.Side == SideFront:
		side = &e.front
	case phase == PhaseDetectingBack && f.Side == SideBack:
		side = &e.back
	default:
		// Wrong side or terminal phase: ignore silently.
		return
	}

	if e.startedAt.IsZero() {
		e.startedAt = time.Now()
	}
	e.frameSeq++
	side.framesSeen++
	if side.framesSeen > e.cfg.SideFrameBudget {
		e.fail(ErrTimeout, fmt.Sprintf("no stable %s capture within %d frames", f.Side, e.cfg.SideFrameBudget))
		return
	}

	score := quality.Evaluate(f.Luma, f.Width, f.Height, e.cfg.Quality)
	if score.Min() > side.bestQuality.Min() {
		side.bestQuality = score
		side.bestImage = f.Image
	}

	stability := 1.0
	if side.prevLuma != nil {
		stability = quality.Stability(f.Luma, side.prevLuma)
	}
	side.prevLuma = f.Luma

	if !score.Passes(e.cfg.Quality.MinAcceptable) {
		side.goodStreak = 0
		e.logger.Debug("frame rejected by quality gate",
			zap.String("frame_id", f.ID),
			zap.String("side", string(f.Side)),
			zap.Float64("score", score.Min()))
		// Recoverable: surface a hint every so often instead of per
		// frame, and let the frame budget end a hopeless session.
		if side.framesSeen%qualityHintEvery == 0 {
			e.emit(Event{
				Type:    EventError,
				Code:    ErrQuality,
				Side:    f.Side,
				Message: qualityHint(score),
			})
		}
		return
	}

	if f.Side == SideFront {
		if stability >= e.cfg.FrontMinStability {
			side.goodStreak++
		} else {
			side.goodStreak = 1
		}
		if side.goodStreak >= e.cfg.FrontStableFrames {
			e.captureFront()
		}
		return
	}

	// Back side: hand the frame to the OCR collaborator unless one is
	// already in flight, in which case the frame is dropped to avoid
	// backlog.
	if e.ocrInFlight {
		return
	}
	e.ocrInFlight = true
	e.dispatchOCR(ctx, f, e.frameSeq, e.generation)
}

// qualityHintEvery throttles recoverable quality feedback to once per this
// many rejected frames.
const qualityHintEvery = 15

func qualityHint(s quality.Score) string {
	switch s.Min() {
	case s.Glare:
		return "too much glare, tilt the document away from the light"
	case s.Sharpness:
		return "image is blurry, hold the camera steady"
	default:
		return "move the document to fill the frame"
	}
}

func (e *Engine) dispatchOCR(ctx context.Context, f Frame, seq, gen uint64) {
	go func() {
		outcome := ocrOutcome{seq: seq, gen: gen}
		result, err := e.ocr.Recognize(ctx, f.Image)
		if err != nil {
			outcome.err = err
		} else {
			outcome.lines = result.Lines
		}
		select {
		case e.results <- outcome:
		case <-e.done:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) handleOCRResult(r ocrOutcome) {
	if r.gen != e.generation {
		// Result from before a reset; the session it belonged to no
		// longer exists.
		return
	}
	e.ocrInFlight = false

	phase, _ := e.Snapshot()
	if phase != PhaseDetectingBack {
		return
	}
	if r.seq <= e.back.baselineSeq {
		// Older than the accepted consensus baseline.
		return
	}

	if r.err != nil {
		e.fail(ErrInternal, fmt.Sprintf("ocr collaborator failed: %v", r.err))
		return
	}

	candidate := mrz.BuildCandidate(r.lines, e.cfg.Layout, e.cfg.Validator)
	for _, verr := range candidate.Errors {
		e.recordError(ScanError{Code: ErrStructural, Side: SideBack, Message: verr.Error()})
	}
	if !candidate.Valid {
		return
	}

	checksum := mrz.Checksum(candidate, e.cfg.Layout)
	for _, check := range checksum.Checks {
		if !check.Passed {
			e.recordError(ScanError{
				Code:    ErrChecksum,
				Side:    SideBack,
				Message: fmt.Sprintf("%s check digit failed", check.Name),
			})
		}
	}

	fields := mrz.Extract(checksum.Lines, e.cfg.Layout)
	e.back.window.Add(consensus.Entry{
		FrameSeq:  r.seq,
		Candidate: candidate,
		Checksum:  checksum,
		Fields:    fields,
		At:        time.Now(),
	})
	e.back.baselineSeq = r.seq

	if e.back.window.Stable() {
		e.captureBack()
	}
}

func (e *Engine) captureFront() {
	e.front.capturedAt = time.Now()
	e.emit(Event{
		Type:     EventSideCaptured,
		Side:     SideFront,
		Image:    e.front.bestImage,
		Quality:  &e.front.bestQuality,
		Progress: progressFor(PhaseFrontCaptured),
	})
	e.transition(PhaseFrontCaptured, "front side captured")
	e.transition(PhaseDetectingBack, "turn the document over")
}

func (e *Engine) captureBack() {
	e.back.capturedAt = time.Now()
	e.emit(Event{
		Type:     EventSideCaptured,
		Side:     SideBack,
		Image:    e.back.bestImage,
		Quality:  &e.back.bestQuality,
		Progress: progressFor(PhaseBackCaptured),
	})
	e.transition(PhaseBackCaptured, "back side captured")
	e.transition(PhaseProcessing, "validating document")
	e.finalize()
}

func (e *Engine) finalize() {
	majority, ok := e.back.window.Majority()
	if !ok {
		e.fail(ErrInternal, "no consensus result at processing time")
		return
	}

	structural := float64(majority.Candidate.StructuralScore) / float64(mrz.MaxStructuralScore)
	checksums := float64(majority.Checksum.Score) / float64(mrz.MaxChecksumScore)
	qualityScore := (e.front.bestQuality.Min() + e.back.bestQuality.Min()) / 2

	score := weightStructural*structural + weightChecksum*checksums + weightQuality*qualityScore
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	result := &ScanResult{
		MRZData: MRZData{
			DocumentType:    majority.Fields.DocumentType,
			IssuingCountry:  majority.Fields.IssuingCountry,
			DocumentNumber:  majority.Fields.DocumentNumber,
			BirthDate:       majority.Fields.BirthDate,
			Sex:             string(majority.Fields.Sex),
			ExpiryDate:      majority.Fields.ExpiryDate,
			Nationality:     majority.Fields.Nationality,
			NationalID:      majority.Fields.NationalID,
			NationalIDValid: majority.Fields.NationalIDValid,
			Surname:         majority.Fields.Surname,
			GivenNames:      majority.Fields.GivenNames,
			ChecksumValid:   majority.Checksum.Valid(e.cfg.MinChecksumPasses),
			RawMRZ:          majority.Checksum.Lines,
		},
		AuthenticityScore: score,
		StructuralScore:   majority.Candidate.StructuralScore,
		ChecksumScore:     majority.Checksum.Score,
		Metadata: Metadata{
			ScanDurationMs: time.Since(e.startedAt).Milliseconds(),
			FrontTimestamp: e.front.capturedAt.UnixMilli(),
			BackTimestamp:  e.back.capturedAt.UnixMilli(),
			BlurScore:      e.back.bestQuality.Sharpness,
			GlareScore:     e.back.bestQuality.Glare,
		},
		Errors: e.scanErrors,
	}

	e.mu.Lock()
	e.result = result
	e.mu.Unlock()

	e.emit(Event{Type: EventScanCompleted, Result: result, Progress: progressFor(PhaseCompleted)})
	e.transition(PhaseCompleted, "scan completed")
}

func (e *Engine) fail(code ErrorCode, message string) {
	e.recordError(ScanError{Code: code, Message: message})
	e.logger.Warn("scan failed", zap.String("code", string(code)), zap.String("message", message))
	e.emit(Event{Type: EventError, Code: code, Message: message})
	e.transition(PhaseError, message)
}

func (e *Engine) recordError(err ScanError) {
	e.scanErrors = append(e.scanErrors, err)
}

func (e *Engine) transition(phase Phase, message string) {
	progress := progressFor(phase)

	e.mu.Lock()
	e.phase = phase
	e.progress = progress
	e.mu.Unlock()

	e.emit(Event{Type: EventStatusChanged, Phase: phase, Progress: progress, Message: message})
}

// emit delivers an event without ever blocking the loop: when the consumer
// lags behind the buffer, the event is dropped.
func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("event buffer full, dropping event", zap.String("type", string(ev.Type)))
	}
}
