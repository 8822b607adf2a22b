package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/id-verify/internal/logging"
	"github.com/example/id-verify/internal/ocr"
	"github.com/example/id-verify/internal/repository"
	"github.com/example/id-verify/internal/scanner"
)

// ErrSessionNotFound is returned when a session id does not resolve to a
// live scan owned by the caller.
var ErrSessionNotFound = errors.New("scan session not found")

// ErrScanNotCompleted is returned when a result is requested from a session
// that is still capturing.
var ErrScanNotCompleted = errors.New("scan has not completed")

// ScanRepository defines the persistence operations needed by the use case.
type ScanRepository interface {
	Save(ctx context.Context, record *repository.ScanRecord) error
	FindBySessionAndUser(ctx context.Context, sessionID, userID string) (*repository.ScanRecord, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// ScanUseCase owns the live scan sessions and orchestrates the engine,
// caching, and persistence.
type ScanUseCase struct {
	repo           ScanRepository
	cache          Cache
	ocr            ocr.Client
	engineConfig   scanner.Config
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id        string
	userID    string
	engine    *scanner.Engine
	cancel    context.CancelFunc
	createdAt time.Time

	mu          sync.Mutex
	closed      bool
	nextSub     int
	subscribers map[int]chan scanner.Event
}

// cachedScan is the Redis representation of a completed scan.
type cachedScan struct {
	SessionID string              `json:"session_id"`
	UserID    string              `json:"user_id"`
	Result    *scanner.ScanResult `json:"result"`
	CreatedAt time.Time           `json:"created_at"`
}

// ScanOutcome is the resolved result of a session: the full engine result
// while it is still available, or the persisted summary once only the
// database remembers the scan.
type ScanOutcome struct {
	SessionID string
	Result    *scanner.ScanResult
	Record    *repository.ScanRecord
}

// NewScanUseCase constructs a new use case instance.
func NewScanUseCase(repo ScanRepository, cache Cache, ocrClient ocr.Client, cfg scanner.Config, logger *zap.Logger) *ScanUseCase {
	return &ScanUseCase{
		repo:           repo,
		cache:          cache,
		ocr:            ocrClient,
		engineConfig:   cfg,
		logger:         logger.Named("scan_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		sessions:       make(map[string]*session),
	}
}

// StartScan creates a scan session and its engine. The returned id addresses
// every subsequent call for this scan.
func (uc *ScanUseCase) StartScan(ctx context.Context, userID string) (string, error) {
	sessionID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.start_scan", sessionID)

	if err := uc.withRedisRetry(ctx, sessionID, "cache.set.processing", func() error {
		return uc.cache.Set(ctx, scanCacheKey(sessionID), "processing", 10*time.Minute)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return "", err
	}

	engineCtx, cancel := context.WithCancel(context.Background())
	engine := scanner.New(uc.engineConfig, uc.ocr, uc.logger)
	engine.Start(engineCtx)

	s := &session{
		id:          sessionID,
		userID:      userID,
		engine:      engine,
		cancel:      cancel,
		createdAt:   time.Now().UTC(),
		subscribers: make(map[int]chan scanner.Event),
	}

	uc.mu.Lock()
	uc.sessions[sessionID] = s
	uc.mu.Unlock()

	go uc.pumpEvents(engineCtx, s)

	opLogger.Info("scan session started", zap.String("user_id", userID))
	return sessionID, nil
}

// SubmitFrame offers a frame to the session's engine. The boolean reports
// whether the engine accepted it; a dropped frame is not an error.
func (uc *ScanUseCase) SubmitFrame(userID, sessionID string, frame scanner.Frame) (bool, scanner.Phase, float64, error) {
	s, err := uc.session(sessionID, userID)
	if err != nil {
		return false, "", 0, err
	}
	accepted := s.engine.SubmitFrame(frame)
	phase, progress := s.engine.Snapshot()
	return accepted, phase, progress, nil
}

// GetStatus reports the session's current phase and progress.
func (uc *ScanUseCase) GetStatus(userID, sessionID string) (scanner.Phase, float64, error) {
	s, err := uc.session(sessionID, userID)
	if err != nil {
		return "", 0, err
	}
	phase, progress := s.engine.Snapshot()
	return phase, progress, nil
}

// ResetScan returns the session's engine to IDLE, discarding all progress.
func (uc *ScanUseCase) ResetScan(userID, sessionID string) error {
	s, err := uc.session(sessionID, userID)
	if err != nil {
		return err
	}
	s.engine.Reset()

	// Any cached result belongs to the discarded attempt.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := uc.cache.Del(ctx, scanCacheKey(sessionID)); err != nil {
		logging.WithOperation(uc.logger, "usecase.reset_scan", sessionID).Warn("failed to drop cached result", zap.Error(err))
	}
	return nil
}

// Subscribe attaches a listener to the session's event stream. The returned
// cancel function detaches it.
func (uc *ScanUseCase) Subscribe(userID, sessionID string) (<-chan scanner.Event, func(), error) {
	s, err := uc.session(sessionID, userID)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrSessionNotFound
	}
	id := s.nextSub
	s.nextSub++
	ch := make(chan scanner.Event, 32)
	s.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// GetResult resolves the outcome of a session: the live engine result, the
// cached copy, or the persisted summary, in that order.
func (uc *ScanUseCase) GetResult(ctx context.Context, userID, sessionID string) (*ScanOutcome, error) {
	if s, err := uc.session(sessionID, userID); err == nil {
		if result, ok := s.engine.Result(); ok {
			return &ScanOutcome{SessionID: sessionID, Result: result}, nil
		}
		return nil, ErrScanNotCompleted
	}

	cacheKey := scanCacheKey(sessionID)
	if cached, err := uc.withRedisGet(ctx, sessionID, "cache.get.result", cacheKey); err == nil {
		var payload cachedScan
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_result", sessionID).Warn("failed to decode cached result", zap.Error(err))
		} else if payload.Result != nil && payload.UserID == userID {
			return &ScanOutcome{SessionID: sessionID, Result: payload.Result}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(uc.logger, "usecase.get_result", sessionID).Warn("failed to read cache", zap.Error(err))
	}

	record, err := uc.repo.FindBySessionAndUser(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return &ScanOutcome{SessionID: sessionID, Record: record}, nil
}

// EndScan tears the session down. The persisted record, if any, remains
// retrievable through GetResult.
func (uc *ScanUseCase) EndScan(ctx context.Context, userID, sessionID string) error {
	uc.mu.Lock()
	s, ok := uc.sessions[sessionID]
	if ok && s.userID == userID {
		delete(uc.sessions, sessionID)
	} else {
		ok = false
	}
	uc.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.cancel()
	s.closeSubscribers()

	logging.WithOperation(uc.logger, "usecase.end_scan", sessionID).Info("scan session ended")
	return nil
}

func (uc *ScanUseCase) session(sessionID, userID string) (*session, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	s, ok := uc.sessions[sessionID]
	if !ok || s.userID != userID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// pumpEvents drains the engine's event stream for the session's lifetime,
// fanning events out to subscribers and persisting the terminal result.
func (uc *ScanUseCase) pumpEvents(ctx context.Context, s *session) {
	for {
		select {
		case <-ctx.Done():
			s.closeSubscribers()
			return
		case ev := <-s.engine.Events():
			s.broadcast(ev)
			if ev.Type == scanner.EventScanCompleted && ev.Result != nil {
				uc.persistResult(s, ev.Result)
			}
		}
	}
}

func (uc *ScanUseCase) persistResult(s *session, result *scanner.ScanResult) {
	// Persisting must not be cut short by the session ending right after
	// completion.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opLogger := logging.WithOperation(uc.logger, "usecase.persist_result", s.id)

	record := &repository.ScanRecord{
		SessionID:         s.id,
		UserID:            s.userID,
		AuthenticityScore: result.AuthenticityScore,
		StructuralScore:   result.StructuralScore,
		ChecksumScore:     result.ChecksumScore,
		ChecksumValid:     result.MRZData.ChecksumValid,
		DurationMs:        result.Metadata.ScanDurationMs,
		ErrorCount:        len(result.Errors),
		Details: fmt.Sprintf("checksum_valid:%t authenticity:%.3f errors:%d",
			result.MRZData.ChecksumValid, result.AuthenticityScore, len(result.Errors)),
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.repo.Save(ctx, record); err != nil {
		opLogger.Error("failed to persist scan record", zap.Error(err))
	}

	serialized, err := json.Marshal(cachedScan{
		SessionID: s.id,
		UserID:    s.userID,
		Result:    result,
		CreatedAt: record.CreatedAt,
	})
	if err != nil {
		opLogger.Error("failed to serialize scan result", zap.Error(err))
		return
	}
	if err := uc.withRedisRetry(ctx, s.id, "cache.set.result", func() error {
		return uc.cache.Set(ctx, scanCacheKey(s.id), string(serialized), 30*time.Minute)
	}); err != nil {
		opLogger.Error("failed to cache scan result", zap.Error(err))
	}
}

func (s *session) broadcast(ev scanner.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; it can recover through GetStatus.
		}
	}
}

func (s *session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

func scanCacheKey(sessionID string) string {
	return fmt.Sprintf("scan:%s", sessionID)
}

func (uc *ScanUseCase) withRedisRetry(ctx context.Context, sessionID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, sessionID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, sessionID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func (uc *ScanUseCase) withRedisGet(ctx context.Context, sessionID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, sessionID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
