package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/id-verify/internal/logging"
	"github.com/example/id-verify/internal/ocr"
	"github.com/example/id-verify/internal/repository"
	"github.com/example/id-verify/internal/scanner"
)

var testCardLines = []string{
	"I<TURA12B456780<12345678950<<<",
	"9503124M3005213TUR123456789504",
	"YILMAZ<<MEHMET<CAN<<<<<<<<<<<<",
}

type stubRepository struct {
	mu           sync.Mutex
	savedRecords []*repository.ScanRecord
	saveErr      error
	findRecord   *repository.ScanRecord
	findErr      error
	findCalls    int
	aggregation  *repository.MetricsAggregation
}

func (s *stubRepository) Save(ctx context.Context, record *repository.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.savedRecords = append(s.savedRecords, record)
	return s.saveErr
}

func (s *stubRepository) FindBySessionAndUser(ctx context.Context, sessionID, userID string) (*repository.ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.findRecord != nil {
		return s.findRecord, nil
	}
	return nil, errors.New("not found")
}

func (s *stubRepository) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	if s.aggregation != nil {
		return s.aggregation, nil
	}
	return &repository.MetricsAggregation{}, nil
}

func (s *stubRepository) saved() []*repository.ScanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*repository.ScanRecord, len(s.savedRecords))
	copy(out, s.savedRecords)
	return out
}

type stubCache struct {
	mu        sync.Mutex
	setErrs   []error
	getErrs   []error
	getValues []string
	setKeys   []string
	getKeys   []string
	delKeys   []string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getKeys = append(s.getKeys, key)
	var value string
	if len(s.getValues) > 0 {
		value = s.getValues[0]
		s.getValues = s.getValues[1:]
	}
	var err error
	if len(s.getErrs) > 0 {
		err = s.getErrs[0]
		s.getErrs = s.getErrs[1:]
	}
	return value, err
}

func (s *stubCache) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delKeys = append(s.delKeys, key)
	return nil
}

func (s *stubCache) sets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.setKeys))
	copy(out, s.setKeys)
	return out
}

type stubRecognizer struct {
	lines []string
	err   error
}

func (s *stubRecognizer) Recognize(ctx context.Context, image []byte) (*ocr.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ocr.Result{Lines: s.lines}, nil
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

func testEngineConfig() scanner.Config {
	cfg := scanner.DefaultConfig()
	cfg.FrontStableFrames = 2
	cfg.StabilityFrames = 3
	cfg.EventBuffer = 256
	return cfg
}

func newTestUseCase(repo *stubRepository, cache *stubCache, rec ocr.Client) *ScanUseCase {
	uc := NewScanUseCase(repo, cache, rec, testEngineConfig(), zap.NewNop())
	uc.initialBackoff = time.Millisecond
	uc.maxBackoff = 2 * time.Millisecond
	return uc
}

func checkerLuma(width, height int) []byte {
	luma := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x+y)%2 == 0 {
				luma[y*width+x] = 255
			}
		}
	}
	return luma
}

func testFrame(side scanner.Side) scanner.Frame {
	return scanner.Frame{
		Side:   side,
		Width:  159,
		Height: 100,
		Luma:   checkerLuma(159, 100),
		Image:  []byte("frame"),
	}
}

// driveToCompletion feeds frames until the session reports COMPLETED.
func driveToCompletion(t *testing.T, uc *ScanUseCase, userID, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	side := scanner.SideFront
	for time.Now().Before(deadline) {
		phase, _, err := uc.GetStatus(userID, sessionID)
		if err != nil {
			t.Fatalf("status failed: %v", err)
		}
		switch phase {
		case scanner.PhaseCompleted:
			return
		case scanner.PhaseDetectingBack:
			side = scanner.SideBack
		case scanner.PhaseError:
			t.Fatal("scan entered ERROR while driving to completion")
		}
		_, _, _, err = uc.SubmitFrame(userID, sessionID, testFrame(side))
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("scan did not complete before deadline")
}

func TestStartScanRetriesRedisSet(t *testing.T) {
	cache := &stubCache{setErrs: []error{transientRedisError{}}}
	repo := &stubRepository{}
	uc := newTestUseCase(repo, cache, &stubRecognizer{lines: testCardLines})

	sessionID, err := uc.StartScan(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a session id")
	}
	sets := cache.sets()
	if len(sets) < 2 {
		t.Fatalf("expected retried cache set, got %d calls", len(sets))
	}
	if sets[0] != sets[1] {
		t.Fatalf("expected retry to target same key, got %s and %s", sets[0], sets[1])
	}
	if err := uc.EndScan(context.Background(), "user-1", sessionID); err != nil {
		t.Fatalf("end scan failed: %v", err)
	}
}

func TestStartScanReturnsOperationErrorOnCacheFailure(t *testing.T) {
	cache := &stubCache{setErrs: []error{errors.New("boom")}}
	uc := newTestUseCase(&stubRepository{}, cache, &stubRecognizer{lines: testCardLines})

	_, err := uc.StartScan(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "cache.set.processing" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
}

func TestScanFlowPersistsAndCachesResult(t *testing.T) {
	cache := &stubCache{}
	repo := &stubRepository{}
	uc := newTestUseCase(repo, cache, &stubRecognizer{lines: testCardLines})

	sessionID, err := uc.StartScan(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	driveToCompletion(t, uc, "user-1", sessionID)

	outcome, err := uc.GetResult(context.Background(), "user-1", sessionID)
	if err != nil {
		t.Fatalf("get result failed: %v", err)
	}
	if outcome.Result == nil {
		t.Fatal("expected live engine result")
	}
	if outcome.Result.MRZData.DocumentNumber != "A12B45678" {
		t.Errorf("document number = %q", outcome.Result.MRZData.DocumentNumber)
	}

	// Persistence happens on the event pump; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(repo.saved()) == 0 {
		time.Sleep(2 * time.Millisecond)
	}
	saved := repo.saved()
	if len(saved) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(saved))
	}
	record := saved[0]
	if record.SessionID != sessionID || record.UserID != "user-1" {
		t.Errorf("record identity = %s/%s", record.SessionID, record.UserID)
	}
	if !record.ChecksumValid || record.ChecksumScore != 60 {
		t.Errorf("record scores = valid:%v checksum:%d", record.ChecksumValid, record.ChecksumScore)
	}
	if len(cache.sets()) < 2 {
		t.Errorf("expected processing flag and result to be cached, got %v", cache.sets())
	}
}

func TestGetResultFallsBackToCache(t *testing.T) {
	result := &scanner.ScanResult{AuthenticityScore: 0.97}
	result.MRZData.DocumentNumber = "A12B45678"
	serialized, err := json.Marshal(cachedScan{
		SessionID: "scan-1",
		UserID:    "user-1",
		Result:    result,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	cache := &stubCache{getValues: []string{string(serialized)}}
	repo := &stubRepository{}
	uc := newTestUseCase(repo, cache, &stubRecognizer{lines: testCardLines})

	outcome, err := uc.GetResult(context.Background(), "user-1", "scan-1")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if outcome.Result == nil || outcome.Result.MRZData.DocumentNumber != "A12B45678" {
		t.Fatalf("cached result not returned: %+v", outcome)
	}
	if repo.findCalls != 0 {
		t.Errorf("cache hit should not touch the repository, got %d calls", repo.findCalls)
	}
}

func TestGetResultFallsBackToRepositoryOnCacheMiss(t *testing.T) {
	expected := &repository.ScanRecord{SessionID: "scan-2", UserID: "user-1", ChecksumValid: true}
	cache := &stubCache{getErrs: []error{redis.Nil}}
	repo := &stubRepository{findRecord: expected}
	uc := newTestUseCase(repo, cache, &stubRecognizer{lines: testCardLines})

	outcome, err := uc.GetResult(context.Background(), "user-1", "scan-2")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if outcome.Record != expected {
		t.Fatalf("expected persisted record, got %+v", outcome)
	}
	if repo.findCalls != 1 {
		t.Fatalf("expected repository to be queried once, got %d", repo.findCalls)
	}
}

func TestSubscribeReceivesLifecycleEvents(t *testing.T) {
	uc := newTestUseCase(&stubRepository{}, &stubCache{}, &stubRecognizer{lines: testCardLines})

	sessionID, err := uc.StartScan(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	events, cancel, err := uc.Subscribe("user-1", sessionID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	driveToCompletion(t, uc, "user-1", sessionID)

	deadline := time.After(2 * time.Second)
	var sawCapture, sawCompleted bool
	for !sawCompleted {
		select {
		case ev := <-events:
			switch ev.Type {
			case scanner.EventSideCaptured:
				sawCapture = true
			case scanner.EventScanCompleted:
				sawCompleted = true
			}
		case <-deadline:
			t.Fatal("did not observe completion on the event stream")
		}
	}
	if !sawCapture {
		t.Error("expected at least one side capture event")
	}
}

func TestEndScanRemovesSession(t *testing.T) {
	uc := newTestUseCase(&stubRepository{}, &stubCache{}, &stubRecognizer{lines: testCardLines})

	sessionID, err := uc.StartScan(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := uc.EndScan(context.Background(), "other-user", sessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign user should not end the session, got %v", err)
	}
	if err := uc.EndScan(context.Background(), "user-1", sessionID); err != nil {
		t.Fatalf("end scan failed: %v", err)
	}
	if _, _, err := uc.GetStatus("user-1", sessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session to be gone, got %v", err)
	}
}

func TestResetScanDropsCachedResult(t *testing.T) {
	cache := &stubCache{}
	uc := newTestUseCase(&stubRepository{}, cache, &stubRecognizer{lines: testCardLines})

	sessionID, err := uc.StartScan(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := uc.ResetScan("user-1", sessionID); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.delKeys) != 1 || cache.delKeys[0] != scanCacheKey(sessionID) {
		t.Fatalf("expected cached result to be dropped, got %v", cache.delKeys)
	}
}
