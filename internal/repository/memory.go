package repository

import (
	"sort"
	"sync"
	"time"

	"transkript-bot/internal/models"
)

// MemoryRepository is a map-backed Repository used by tests and local runs.
// A single mutex stands in for the database's row locks: every call and
// every Transact body runs under it, and Transact restores a snapshot on
// error so rollbacks behave like the real store.
type MemoryRepository struct {
	mu   *sync.Mutex
	inTx bool
	data *memData
}

type memData struct {
	users         map[uint]models.User
	plans         map[uint]models.Plan
	packages      map[uint]models.Package
	subscriptions map[uint]models.Subscription
	minuteTxs     []models.MinuteTransaction
	charges       map[uint]models.UsageCharge
	payments      map[uint]models.Payment
	shadows       map[uint]models.ShadowTransaction
	seq           map[string]uint
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{
		mu: &sync.Mutex{},
		data: &memData{
			users:         map[uint]models.User{},
			plans:         map[uint]models.Plan{},
			packages:      map[uint]models.Package{},
			subscriptions: map[uint]models.Subscription{},
			charges:       map[uint]models.UsageCharge{},
			payments:      map[uint]models.Payment{},
			shadows:       map[uint]models.ShadowTransaction{},
			seq:           map[string]uint{},
		},
	}
}

func (r *MemoryRepository) lock() {
	if !r.inTx {
		r.mu.Lock()
	}
}

func (r *MemoryRepository) unlock() {
	if !r.inTx {
		r.mu.Unlock()
	}
}

func (r *MemoryRepository) next(table string) uint {
	r.data.seq[table]++
	return r.data.seq[table]
}

func (d *memData) snapshot() *memData {
	c := &memData{
		users:         make(map[uint]models.User, len(d.users)),
		plans:         make(map[uint]models.Plan, len(d.plans)),
		packages:      make(map[uint]models.Package, len(d.packages)),
		subscriptions: make(map[uint]models.Subscription, len(d.subscriptions)),
		minuteTxs:     append([]models.MinuteTransaction(nil), d.minuteTxs...),
		charges:       make(map[uint]models.UsageCharge, len(d.charges)),
		payments:      make(map[uint]models.Payment, len(d.payments)),
		shadows:       make(map[uint]models.ShadowTransaction, len(d.shadows)),
		seq:           make(map[string]uint, len(d.seq)),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.plans {
		c.plans[k] = v
	}
	for k, v := range d.packages {
		c.packages[k] = v
	}
	for k, v := range d.subscriptions {
		c.subscriptions[k] = v
	}
	for k, v := range d.charges {
		c.charges[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.shadows {
		c.shadows[k] = v
	}
	for k, v := range d.seq {
		c.seq[k] = v
	}
	return c
}

func (d *memData) restore(from *memData) {
	d.users = from.users
	d.plans = from.plans
	d.packages = from.packages
	d.subscriptions = from.subscriptions
	d.minuteTxs = from.minuteTxs
	d.charges = from.charges
	d.payments = from.payments
	d.shadows = from.shadows
	d.seq = from.seq
}

func (r *MemoryRepository) Transact(fn func(Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	saved := r.data.snapshot()
	if err := fn(&MemoryRepository{mu: r.mu, inTx: true, data: r.data}); err != nil {
		r.data.restore(saved)
		return err
	}
	return nil
}

func (r *MemoryRepository) GetUserByID(id uint) (*models.User, error) {
	r.lock()
	defer r.unlock()
	u, ok := r.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *MemoryRepository) GetUserByTelegramID(telegramID int64) (*models.User, error) {
	r.lock()
	defer r.unlock()
	for _, u := range r.data.users {
		if u.TelegramID == telegramID {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) FirstOrCreateUser(telegramID int64, username string) (*models.User, error) {
	r.lock()
	defer r.unlock()
	for _, u := range r.data.users {
		if u.TelegramID == telegramID {
			return &u, nil
		}
	}
	u := models.User{
		ID:         r.next("users"),
		TelegramID: telegramID,
		Username:   username,
		Status:     models.UserStatusActive,
		CreatedAt:  time.Now(),
	}
	r.data.users[u.ID] = u
	return &u, nil
}

// SeedUser inserts a user directly; test helper.
func (r *MemoryRepository) SeedUser(u models.User) models.User {
	r.lock()
	defer r.unlock()
	if u.ID == 0 {
		u.ID = r.next("users")
	}
	r.data.users[u.ID] = u
	return u
}

// SeedPlan inserts a plan directly; test helper.
func (r *MemoryRepository) SeedPlan(p models.Plan) models.Plan {
	r.lock()
	defer r.unlock()
	if p.ID == 0 {
		p.ID = r.next("plans")
	}
	r.data.plans[p.ID] = p
	return p
}

// SeedPackage inserts a package directly; test helper.
func (r *MemoryRepository) SeedPackage(p models.Package) models.Package {
	r.lock()
	defer r.unlock()
	if p.ID == 0 {
		p.ID = r.next("packages")
	}
	r.data.packages[p.ID] = p
	return p
}

func (r *MemoryRepository) GetPlanByID(id uint) (*models.Plan, error) {
	r.lock()
	defer r.unlock()
	p, ok := r.data.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetPlanByName(name string) (*models.Plan, error) {
	r.lock()
	defer r.unlock()
	for _, p := range r.data.plans {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListActivePlans() ([]models.Plan, error) {
	r.lock()
	defer r.unlock()
	var plans []models.Plan
	for _, p := range r.data.plans {
		if p.IsActive {
			plans = append(plans, p)
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Price < plans[j].Price })
	return plans, nil
}

func (r *MemoryRepository) GetPackageByID(id uint) (*models.Package, error) {
	r.lock()
	defer r.unlock()
	p, ok := r.data.packages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetPackageByName(name string) (*models.Package, error) {
	r.lock()
	defer r.unlock()
	for _, p := range r.data.packages {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListPackages() ([]models.Package, error) {
	r.lock()
	defer r.unlock()
	var packages []models.Package
	for _, p := range r.data.packages {
		packages = append(packages, p)
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].Price < packages[j].Price })
	return packages, nil
}

func (r *MemoryRepository) getSubscriptionByUser(userID uint) (*models.Subscription, error) {
	for _, s := range r.data.subscriptions {
		if s.UserID == userID {
			sub := s
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) GetSubscriptionByUser(userID uint) (*models.Subscription, error) {
	r.lock()
	defer r.unlock()
	return r.getSubscriptionByUser(userID)
}

func (r *MemoryRepository) GetSubscriptionByUserForUpdate(userID uint) (*models.Subscription, error) {
	// The transaction mutex already serializes writers.
	r.lock()
	defer r.unlock()
	return r.getSubscriptionByUser(userID)
}

func (r *MemoryRepository) CreateSubscription(sub *models.Subscription) error {
	r.lock()
	defer r.unlock()
	for _, s := range r.data.subscriptions {
		if s.UserID == sub.UserID {
			return ErrDuplicate
		}
	}
	sub.ID = r.next("subscriptions")
	sub.CreatedAt = time.Now()
	r.data.subscriptions[sub.ID] = *sub
	return nil
}

func (r *MemoryRepository) SaveSubscription(sub *models.Subscription) error {
	r.lock()
	defer r.unlock()
	if _, ok := r.data.subscriptions[sub.ID]; !ok {
		return ErrNotFound
	}
	sub.UpdatedAt = time.Now()
	r.data.subscriptions[sub.ID] = *sub
	return nil
}

func (r *MemoryRepository) DeleteSubscription(id uint) error {
	r.lock()
	defer r.unlock()
	delete(r.data.subscriptions, id)
	return nil
}

func (r *MemoryRepository) ListSubscriptions() ([]models.Subscription, error) {
	r.lock()
	defer r.unlock()
	var subs []models.Subscription
	for _, s := range r.data.subscriptions {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs, nil
}

func (r *MemoryRepository) CreateMinuteTransaction(tx *models.MinuteTransaction) error {
	r.lock()
	defer r.unlock()
	tx.ID = r.next("minute_transactions")
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	r.data.minuteTxs = append(r.data.minuteTxs, *tx)
	return nil
}

func (r *MemoryRepository) ListMinuteTransactions(userID uint, limit, offset int) ([]models.MinuteTransaction, error) {
	r.lock()
	defer r.unlock()
	var txs []models.MinuteTransaction
	for _, tx := range r.data.minuteTxs {
		if tx.UserID == userID {
			txs = append(txs, tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID > txs[j].ID })
	if offset >= len(txs) {
		return nil, nil
	}
	txs = txs[offset:]
	if limit > 0 && limit < len(txs) {
		txs = txs[:limit]
	}
	return txs, nil
}

func (r *MemoryRepository) CreateUsageCharge(charge *models.UsageCharge) error {
	r.lock()
	defer r.unlock()
	for _, c := range r.data.charges {
		if c.UserID == charge.UserID && c.SourceRefID == charge.SourceRefID {
			return ErrDuplicate
		}
	}
	charge.ID = r.next("usage_charges")
	charge.CreatedAt = time.Now()
	r.data.charges[charge.ID] = *charge
	return nil
}

func (r *MemoryRepository) GetUsageCharge(userID uint, sourceRefID string) (*models.UsageCharge, error) {
	r.lock()
	defer r.unlock()
	for _, c := range r.data.charges {
		if c.UserID == userID && c.SourceRefID == sourceRefID {
			charge := c
			return &charge, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) MarkUsageChargeRefunded(userID uint, sourceRefID string) (bool, error) {
	r.lock()
	defer r.unlock()
	for id, c := range r.data.charges {
		if c.UserID == userID && c.SourceRefID == sourceRefID && !c.Refunded {
			c.Refunded = true
			c.UpdatedAt = time.Now()
			r.data.charges[id] = c
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) CreatePayment(p *models.Payment) error {
	r.lock()
	defer r.unlock()
	for _, existing := range r.data.payments {
		if existing.PublicID == p.PublicID {
			return ErrDuplicate
		}
		// Mirrors the partial unique index on pending payments.
		if p.Status == models.PaymentStatusPending &&
			existing.Status == models.PaymentStatusPending &&
			existing.UserID == p.UserID && existing.Kind == p.Kind && existing.TargetID == p.TargetID {
			return ErrDuplicate
		}
	}
	p.ID = r.next("payments")
	p.CreatedAt = time.Now()
	r.data.payments[p.ID] = *p
	return nil
}

func (r *MemoryRepository) GetPaymentByID(id uint) (*models.Payment, error) {
	r.lock()
	defer r.unlock()
	p, ok := r.data.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetPaymentByIDForUpdate(id uint) (*models.Payment, error) {
	// The transaction mutex already serializes writers.
	return r.GetPaymentByID(id)
}

func (r *MemoryRepository) GetPendingPayment(userID uint, kind string, targetID uint) (*models.Payment, error) {
	r.lock()
	defer r.unlock()
	for _, p := range r.data.payments {
		if p.UserID == userID && p.Kind == kind && p.TargetID == targetID && p.Status == models.PaymentStatusPending {
			payment := p
			return &payment, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) SavePayment(p *models.Payment) error {
	r.lock()
	defer r.unlock()
	if _, ok := r.data.payments[p.ID]; !ok {
		return ErrNotFound
	}
	r.data.payments[p.ID] = *p
	return nil
}

func (r *MemoryRepository) CreateShadowTransaction(s *models.ShadowTransaction) error {
	r.lock()
	defer r.unlock()
	for _, existing := range r.data.shadows {
		if existing.ExternalID == s.ExternalID || existing.PaymentID == s.PaymentID {
			return ErrDuplicate
		}
	}
	s.ID = r.next("shadow_transactions")
	s.CreatedAt = time.Now()
	r.data.shadows[s.ID] = *s
	return nil
}

func (r *MemoryRepository) GetShadowByExternalID(externalID string) (*models.ShadowTransaction, error) {
	r.lock()
	defer r.unlock()
	for _, s := range r.data.shadows {
		if s.ExternalID == externalID {
			shadow := s
			return &shadow, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) GetShadowByExternalIDForUpdate(externalID string) (*models.ShadowTransaction, error) {
	return r.GetShadowByExternalID(externalID)
}

func (r *MemoryRepository) GetShadowByPaymentID(paymentID uint) (*models.ShadowTransaction, error) {
	r.lock()
	defer r.unlock()
	for _, s := range r.data.shadows {
		if s.PaymentID == paymentID {
			shadow := s
			return &shadow, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) ListShadowsByState(state string) ([]models.ShadowTransaction, error) {
	r.lock()
	defer r.unlock()
	var shadows []models.ShadowTransaction
	for _, s := range r.data.shadows {
		if s.State == state {
			shadows = append(shadows, s)
		}
	}
	sort.Slice(shadows, func(i, j int) bool { return shadows[i].ID < shadows[j].ID })
	return shadows, nil
}

func (r *MemoryRepository) ListShadowsByClientTime(from, to time.Time) ([]models.ShadowTransaction, error) {
	r.lock()
	defer r.unlock()
	var shadows []models.ShadowTransaction
	for _, s := range r.data.shadows {
		if !s.ClientTime.Before(from) && !s.ClientTime.After(to) {
			shadows = append(shadows, s)
		}
	}
	sort.Slice(shadows, func(i, j int) bool { return shadows[i].ClientTime.Before(shadows[j].ClientTime) })
	return shadows, nil
}

func (r *MemoryRepository) SaveShadowTransaction(s *models.ShadowTransaction) error {
	r.lock()
	defer r.unlock()
	if _, ok := r.data.shadows[s.ID]; !ok {
		return ErrNotFound
	}
	s.UpdatedAt = time.Now()
	r.data.shadows[s.ID] = *s
	return nil
}

func (r *MemoryRepository) ReassignUserRows(fromUserID, toUserID uint) error {
	r.lock()
	defer r.unlock()
	for id, p := range r.data.payments {
		if p.UserID == fromUserID {
			p.UserID = toUserID
			r.data.payments[id] = p
		}
	}
	for i := range r.data.minuteTxs {
		if r.data.minuteTxs[i].UserID == fromUserID {
			r.data.minuteTxs[i].UserID = toUserID
		}
	}
	for id, c := range r.data.charges {
		if c.UserID == fromUserID {
			c.UserID = toUserID
			r.data.charges[id] = c
		}
	}
	return nil
}
