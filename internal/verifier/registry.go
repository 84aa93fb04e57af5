package verifier

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/monitor"
)

var (
	ErrNotFound    = errors.New("挑战不存在或已过期")
	ErrRateLimited = errors.New("尝试过于频繁")
)

type entry struct {
	challenge *Challenge
	limiter   *rate.Limiter
	expiresAt time.Time
}

// Registry 按 id 保存进行中的挑战，供 HTTP 流程使用
type Registry struct {
	mu     sync.Mutex
	items  map[string]*entry
	clock  clock.Clock
	ttl    time.Duration
	perMin int
}

func NewRegistry(clk clock.Clock, ttl time.Duration, attemptsPerMinute int) *Registry {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	if attemptsPerMinute <= 0 {
		attemptsPerMinute = 5
	}
	return &Registry{
		items:  make(map[string]*entry),
		clock:  clk,
		ttl:    ttl,
		perMin: attemptsPerMinute,
	}
}

// View 返回给调用方的挑战内容
type View struct {
	ID        string
	Masked    []string
	Positions []int
	ExpiresAt time.Time
}

// Start 为助记词创建挑战
func (r *Registry) Start(phrase string) (*View, error) {
	ch, err := NewChallenge(phrase)
	if err != nil {
		return nil, err
	}
	return r.add(ch)
}

func (r *Registry) add(ch *Challenge) (*View, error) {
	masked, err := ch.Masked()
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	id := uuid.NewString()
	e := &entry{
		challenge: ch,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.perMin)), r.perMin),
		expiresAt: now.Add(r.ttl),
	}

	r.mu.Lock()
	r.sweepLocked(now)
	r.items[id] = e
	r.mu.Unlock()

	return &View{ID: id, Masked: masked, Positions: ch.Positions(), ExpiresAt: e.expiresAt}, nil
}

// Verify 校验答案。成功后挑战被清除；失败可以重试同一个挑战
func (r *Registry) Verify(id string, answers map[int]string) (Result, error) {
	now := r.clock.Now()

	r.mu.Lock()
	e, ok := r.items[id]
	if ok && !now.Before(e.expiresAt) {
		e.challenge.Complete()
		delete(r.items, id)
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return Result{}, ErrNotFound
	}

	if !e.limiter.AllowN(now, 1) {
		monitor.Business.VerificationsTotal.WithLabelValues("rate_limited").Inc()
		return Result{}, ErrRateLimited
	}

	res, err := e.challenge.Verify(answers)
	if errors.Is(err, ErrClosed) {
		return Result{}, ErrNotFound
	}
	if err != nil {
		return Result{}, err
	}

	if !res.OK {
		monitor.Business.VerificationsTotal.WithLabelValues("mismatch").Inc()
		logger.Info("助记词校验失败", zap.String("challenge_id", id), zap.Int("wrong", len(res.Wrong)))
		return res, nil
	}

	monitor.Business.VerificationsTotal.WithLabelValues("ok").Inc()
	e.challenge.Complete()
	r.mu.Lock()
	delete(r.items, id)
	r.mu.Unlock()
	return res, nil
}

// Len 进行中的挑战数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(r.clock.Now())
	return len(r.items)
}

func (r *Registry) sweepLocked(now time.Time) {
	for id, e := range r.items {
		if !now.Before(e.expiresAt) {
			e.challenge.Complete()
			delete(r.items, id)
		}
	}
}
