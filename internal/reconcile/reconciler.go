// Package reconcile периодически сверяет локальный снимок с системой учёта.
// Снимок является кэшем для чтения: при сбое опроса сервис продолжает отдавать
// предыдущее состояние, никогда не подставляя пустое.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mmeshcher/denver-lending-system/internal/book"
	"github.com/mmeshcher/denver-lending-system/internal/ledger"
	"github.com/mmeshcher/denver-lending-system/internal/model"
)

const (
	defaultInterval  = 5 * time.Second
	triggeredTimeout = 30 * time.Second
)

// Reader описывает читающие вызовы системы учёта, используемые сверкой.
type Reader interface {
	ListLenderBids(ctx context.Context) ([]model.Order, error)
	ListBorrowerAsks(ctx context.Context) ([]model.Order, error)
	ListLoanRequests(ctx context.Context) ([]model.LoanRequest, error)
	ListLoanOffers(ctx context.Context) ([]model.LoanOffer, error)
	ListLoans(ctx context.Context) ([]model.Loan, error)
	ListFundingIntents(ctx context.Context) ([]model.FundingIntent, error)
	ListPrincipalRequests(ctx context.Context) ([]model.PrincipalRequest, error)
	ListRepaymentRequests(ctx context.Context) ([]model.RepaymentRequest, error)
	ListMatchedProposals(ctx context.Context) ([]model.MatchedProposal, error)
	GetCreditProfile(ctx context.Context, policy ledger.NotFoundPolicy) (*model.CreditProfile, error)
	GetOrderBook(ctx context.Context) (*model.OrderBook, error)
}

// Snapshot — согласованный на момент сверки снимок состояния системы учёта.
type Snapshot struct {
	Bids              []model.Order
	Asks              []model.Order
	Book              model.OrderBook
	Requests          []model.LoanRequest
	Offers            []model.LoanOffer
	Loans             []model.Loan
	FundingIntents    []model.FundingIntent
	PrincipalRequests []model.PrincipalRequest
	RepaymentRequests []model.RepaymentRequest
	MatchedProposals  []model.MatchedProposal
	CreditProfile     *model.CreditProfile
	RefreshedAt       time.Time
}

// Reconciler опрашивает систему учёта и хранит последний успешный снимок.
// Конкурентные запросы на обновление схлопываются в один проход опроса.
type Reconciler struct {
	reader   Reader
	logger   *zap.Logger
	interval time.Duration

	sf singleflight.Group

	mu   sync.RWMutex
	snap Snapshot
}

// New создаёт сверку с указанным интервалом опроса.
func New(reader Reader, logger *zap.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Reconciler{
		reader:   reader,
		logger:   logger,
		interval: interval,
	}
}

// Run выполняет начальную синхронизацию с повторами, затем опрашивает систему
// учёта по тикеру до отмены контекста.
func (r *Reconciler) Run(ctx context.Context) error {
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := r.Refresh(ctx); err != nil {
			r.logger.Warn("initial sync attempt failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		// Сервис стартует и с пустым снимком: очередной тик может догнать.
		r.logger.Error("initial sync did not converge", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("refresh failed, serving previous snapshot", zap.Error(err))
			}
		}
	}
}

// Refresh выполняет один проход сверки. Конкурентные вызовы во время
// выполняющегося прохода не порождают дублирующих опросов, а ждут его
// результата.
func (r *Reconciler) Refresh(ctx context.Context) error {
	_, err, _ := r.sf.Do("refresh", func() (any, error) {
		return nil, r.refresh(ctx)
	})
	return err
}

// TriggerRefresh запрашивает внеочередную сверку после успешной команды, не
// блокируя вызвавшего.
func (r *Reconciler) TriggerRefresh() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), triggeredTimeout)
		defer cancel()

		if err := r.Refresh(ctx); err != nil {
			r.logger.Warn("triggered refresh failed", zap.Error(err))
		}
	}()
}

// refresh опрашивает все чтения параллельно. Сбой одного чтения не отменяет
// остальные: успешные секции обновляются, для остальных сохраняются прежние
// значения.
func (r *Reconciler) refresh(ctx context.Context) error {
	var (
		bids, asks               []model.Order
		requests                 []model.LoanRequest
		offers                   []model.LoanOffer
		loans                    []model.Loan
		intents                  []model.FundingIntent
		principalReqs            []model.PrincipalRequest
		repaymentReqs            []model.RepaymentRequest
		proposals                []model.MatchedProposal
		profile                  *model.CreditProfile
		remoteBook               *model.OrderBook
		gotBids, gotAsks         bool
		gotRequests, gotOffers   bool
		gotLoans, gotIntents     bool
		gotPrincipal             bool
		gotRepayment             bool
		gotProposals, gotProfile bool
	)

	var (
		errMu   sync.Mutex
		errs    []error
		bookErr error
	)
	fail := func(err error) {
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := r.reader.ListLenderBids(gctx)
		if err != nil {
			fail(err)
			return nil
		}
		bids, gotBids = v, true
		return nil
	})
	g.Go(func() error {
		v, err := r.reader.ListBorrowerAsks(gctx)
		if err != nil {
			fail(err)
			return nil
		}
		asks, gotAsks = v, true
		return nil
	})
	g.Go(func() error {
		v, err := r.reader.ListLoanRequests(gctx)
		if err != nil {
			fail(err)
			return nil
		}
		requests, gotRequests = v, true
		return nil
	})
	g.Go(func() error {
		v, err := r.reader.ListLoanOffers(gctx)
		if err != nil {
			fail(err)
			return nil
		}
		offers, gotOffers = v, true
		return nil
	})
	g.Go(func() error {
		v, err := r.reader.ListLoans(gctx)
		if err != nil {
			fail(err)
			return nil
		}
		loans, gotLoans = v, true
		return nil
	})
	g.Go(func() error {
		v, err := r.reader.ListFundingIntents(gctx)
		if err != nil {
			fail(err)
			return nil
		}
		intents, gotIntents = v, true
		return nil
	})
	g.Go(func() error {
		v, err := r.reader.ListPrincipalRequests(gctx)
		if err != nil {
			fail(err)
			return nil
		}
		principalReqs, gotPrincipal = v, true
		return nil
	})
	g.Go(func() error {
		v, err := r.reader.ListRepaymentRequests(gctx)
		if err != nil {
			fail(err)
			return nil
		}
		repaymentReqs, gotRepayment = v, true
		return nil
	})
	g.Go(func() error {
		v, err := r.reader.ListMatchedProposals(gctx)
		if err != nil {
			fail(err)
			return nil
		}
		proposals, gotProposals = v, true
		return nil
	})
	g.Go(func() error {
		v, err := r.reader.GetCreditProfile(gctx, ledger.NotFoundIsEmpty)
		if err != nil {
			fail(err)
			return nil
		}
		profile, gotProfile = v, true
		return nil
	})
	g.Go(func() error {
		v, err := r.reader.GetOrderBook(gctx)
		if err != nil {
			errMu.Lock()
			bookErr = err
			errMu.Unlock()
			return nil
		}
		remoteBook = v
		return nil
	})

	// Все горутины возвращают nil: ошибки копятся в errs.
	_ = g.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if gotBids {
		r.snap.Bids = bids
	}
	if gotAsks {
		r.snap.Asks = asks
	}
	if gotRequests {
		r.snap.Requests = requests
	}
	if gotOffers {
		r.snap.Offers = offers
	}
	if gotLoans {
		r.snap.Loans = loans
	}
	if gotIntents {
		r.snap.FundingIntents = intents
	}
	if gotPrincipal {
		r.snap.PrincipalRequests = principalReqs
	}
	if gotRepayment {
		r.snap.RepaymentRequests = repaymentReqs
	}
	if gotProposals {
		r.snap.MatchedProposals = proposals
	}
	if gotProfile {
		r.snap.CreditProfile = profile
	}

	switch {
	case remoteBook != nil:
		r.snap.Book = *remoteBook
	case gotBids && gotAsks:
		// Стакан системы учёта недоступен, но заявки свежие: агрегируем сами.
		r.snap.Book = book.Aggregate(r.snap.Bids, r.snap.Asks)
		if bookErr != nil {
			r.logger.Warn("remote order book unavailable, aggregated locally", zap.Error(bookErr))
		}
	default:
		if bookErr != nil {
			errs = append(errs, bookErr)
		}
	}

	if len(errs) == 0 {
		r.snap.RefreshedAt = time.Now()
	}
	return errors.Join(errs...)
}

// Snapshot возвращает копию последнего снимка.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := r.snap
	snap.Bids = append([]model.Order(nil), r.snap.Bids...)
	snap.Asks = append([]model.Order(nil), r.snap.Asks...)
	snap.Requests = append([]model.LoanRequest(nil), r.snap.Requests...)
	snap.Offers = append([]model.LoanOffer(nil), r.snap.Offers...)
	snap.Loans = append([]model.Loan(nil), r.snap.Loans...)
	snap.FundingIntents = append([]model.FundingIntent(nil), r.snap.FundingIntents...)
	snap.PrincipalRequests = append([]model.PrincipalRequest(nil), r.snap.PrincipalRequests...)
	snap.RepaymentRequests = append([]model.RepaymentRequest(nil), r.snap.RepaymentRequests...)
	snap.MatchedProposals = append([]model.MatchedProposal(nil), r.snap.MatchedProposals...)
	if r.snap.CreditProfile != nil {
		profile := *r.snap.CreditProfile
		snap.CreditProfile = &profile
	}
	return snap
}

// LenderBid возвращает заявку кредитора из снимка.
func (r *Reconciler) LenderBid(id string) (model.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.snap.Bids {
		if o.ID == id {
			return o, true
		}
	}
	return model.Order{}, false
}

// BorrowerAsk возвращает заявку заёмщика из снимка.
func (r *Reconciler) BorrowerAsk(id string) (model.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.snap.Asks {
		if o.ID == id {
			return o, true
		}
	}
	return model.Order{}, false
}

// LoanRequest возвращает запрос займа из снимка.
func (r *Reconciler) LoanRequest(id string) (model.LoanRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.snap.Requests {
		if v.ID == id {
			return v, true
		}
	}
	return model.LoanRequest{}, false
}

// LoanOffer возвращает оферту из снимка.
func (r *Reconciler) LoanOffer(id string) (model.LoanOffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.snap.Offers {
		if v.ID == id {
			return v, true
		}
	}
	return model.LoanOffer{}, false
}

// FundingIntent возвращает намерение фондирования из снимка.
func (r *Reconciler) FundingIntent(id string) (model.FundingIntent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.snap.FundingIntents {
		if v.ID == id {
			return v, true
		}
	}
	return model.FundingIntent{}, false
}

// PrincipalRequest возвращает запрос на перечисление тела займа из снимка.
func (r *Reconciler) PrincipalRequest(id string) (model.PrincipalRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.snap.PrincipalRequests {
		if v.ID == id {
			return v, true
		}
	}
	return model.PrincipalRequest{}, false
}

// Loan возвращает заём из снимка.
func (r *Reconciler) Loan(id string) (model.Loan, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.snap.Loans {
		if v.ID == id {
			return v, true
		}
	}
	return model.Loan{}, false
}

// RepaymentRequest возвращает запрос погашения из снимка.
func (r *Reconciler) RepaymentRequest(id string) (model.RepaymentRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.snap.RepaymentRequests {
		if v.ID == id {
			return v, true
		}
	}
	return model.RepaymentRequest{}, false
}

// MatchedProposal возвращает сведённую пару заявок из снимка.
func (r *Reconciler) MatchedProposal(id string) (model.MatchedProposal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.snap.MatchedProposals {
		if v.ID == id {
			return v, true
		}
	}
	return model.MatchedProposal{}, false
}

// CreditProfile возвращает кредитный профиль из снимка, nil если его ещё нет.
func (r *Reconciler) CreditProfile() *model.CreditProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snap.CreditProfile == nil {
		return nil
	}
	profile := *r.snap.CreditProfile
	return &profile
}
