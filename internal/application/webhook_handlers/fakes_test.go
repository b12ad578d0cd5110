package webhook_handlers

import (
	"context"
	"sort"
	"sync"

	"donation-square-connect/internal/domain"
)

// fakeDonationRepo is an in-memory DonationRepository mirroring the
// guarded-update semantics of the Mongo implementation.
type fakeDonationRepo struct {
	mu        sync.Mutex
	donations map[string]*domain.Donation
}

func newFakeDonationRepo() *fakeDonationRepo {
	return &fakeDonationRepo{donations: make(map[string]*domain.Donation)}
}

func (r *fakeDonationRepo) put(d *domain.Donation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *d
	r.donations[d.ID] = &copied
}

func (r *fakeDonationRepo) get(id string) *domain.Donation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.donations[id]; ok {
		copied := *d
		return &copied
	}
	return nil
}

func (r *fakeDonationRepo) CreateDonation(ctx context.Context, donation *domain.Donation) error {
	r.put(donation)
	return nil
}

func (r *fakeDonationRepo) GetDonationByID(ctx context.Context, id string) (*domain.Donation, error) {
	return r.get(id), nil
}

func (r *fakeDonationRepo) GetDonationByTransactionID(ctx context.Context, mode domain.Mode, transactionID string) (*domain.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.donations {
		if d.Mode == mode && d.TransactionID == transactionID && transactionID != "" {
			copied := *d
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeDonationRepo) GetLatestDonationByCustomerID(ctx context.Context, mode domain.Mode, customerID string) (*domain.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*domain.Donation
	for _, d := range r.donations {
		if d.Mode == mode && d.CustomerID == customerID {
			matches = append(matches, d)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	copied := *matches[0]
	return &copied, nil
}

func (r *fakeDonationRepo) GetLatestPendingDonationBySubscription(ctx context.Context, subscriptionID string) (*domain.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matches []*domain.Donation
	for _, d := range r.donations {
		if d.SubscriptionID == subscriptionID && d.Status == domain.DonationPending {
			matches = append(matches, d)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	copied := *matches[0]
	return &copied, nil
}

func (r *fakeDonationRepo) UpdateDonationStatus(ctx context.Context, id string, status domain.DonationStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[id]
	if !ok {
		return false, nil
	}
	if d.Status == status || d.Status == domain.DonationRefunded {
		return false, nil
	}
	d.Status = status
	return true, nil
}

func (r *fakeDonationRepo) RecordPaymentDetails(ctx context.Context, id string, details domain.PaymentDetails) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.donations[id]
	if !ok {
		return nil
	}
	if details.PaymentID != "" {
		d.PaymentID = details.PaymentID
	}
	if details.ReceiptURL != "" {
		d.ReceiptURL = details.ReceiptURL
	}
	if details.CardStatus != "" {
		d.CardStatus = details.CardStatus
	}
	if details.CardBrand != "" {
		d.CardBrand = details.CardBrand
	}
	if details.CardLast4 != "" {
		d.CardLast4 = details.CardLast4
	}
	return nil
}

func (r *fakeDonationRepo) SetDonationTransactionID(ctx context.Context, id string, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.donations[id]; ok {
		d.TransactionID = transactionID
	}
	return nil
}

func (r *fakeDonationRepo) ClaimFirstInvoice(ctx context.Context, subscriptionID, transactionID string) (*domain.Donation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.donations {
		if d.SubscriptionID == subscriptionID && d.AwaitingFirstInvoice {
			// Marker handoff and transaction-id backfill land together,
			// mirroring the single FindOneAndUpdate in the Mongo
			// implementation.
			d.AwaitingFirstInvoice = false
			d.TransactionID = transactionID
			copied := *d
			return &copied, nil
		}
	}
	return nil, nil
}

// fakeSubscriptionRepo is an in-memory SubscriptionRepository.
type fakeSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*domain.Subscription
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{subs: make(map[string]*domain.Subscription)}
}

func (r *fakeSubscriptionRepo) put(s *domain.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.subs[s.ID] = &copied
}

func (r *fakeSubscriptionRepo) get(id string) *domain.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[id]; ok {
		copied := *s
		return &copied
	}
	return nil
}

func (r *fakeSubscriptionRepo) CreateSubscription(ctx context.Context, subscription *domain.Subscription) error {
	r.put(subscription)
	return nil
}

func (r *fakeSubscriptionRepo) GetSubscriptionByProviderID(ctx context.Context, mode domain.Mode, providerSubscriptionID string) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.Mode == mode && s.ProviderSubscriptionID == providerSubscriptionID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeSubscriptionRepo) UpdateSubscriptionStatus(ctx context.Context, id string, status domain.SubscriptionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return false, nil
	}
	if s.Status == status || s.Status.Terminal() {
		return false, nil
	}
	s.Status = status
	return true, nil
}

func (r *fakeSubscriptionRepo) SetCancelPending(ctx context.Context, id string, pending bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[id]; ok {
		s.CancelPending = pending
	}
	return nil
}
