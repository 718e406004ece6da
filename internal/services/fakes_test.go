package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/staymarket/backend/internal/config"
	"github.com/staymarket/backend/internal/escrow"
	"github.com/staymarket/backend/internal/events"
	"github.com/staymarket/backend/internal/models"
	"github.com/staymarket/backend/internal/providers"
	"github.com/staymarket/backend/internal/repositories"
	"go.uber.org/zap"
)

// In-memory stand-ins for the pgx repositories, with the same conditional
// write semantics.

type fakeBookingStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.Booking
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{bookings: make(map[uuid.UUID]*models.Booking)}
}

func (f *fakeBookingStore) put(b *models.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	cp := *b
	f.bookings[b.ID] = &cp
}

func (f *fakeBookingStore) Create(ctx context.Context, b *models.Booking) error {
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	f.put(b)
	return nil
}

func (f *fakeBookingStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookingStore) GetStatus(ctx context.Context, id uuid.UUID) (string, error) {
	b, err := f.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return b.Status, nil
}

func (f *fakeBookingStore) GetByIDWithRelations(ctx context.Context, id uuid.UUID) (*models.BookingWithRelations, error) {
	b, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.BookingWithRelations{Booking: *b}, nil
}

func (f *fakeBookingStore) List(ctx context.Context, filter repositories.BookingFilter) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		out = append(out, *b)
	}
	return out, nil
}

func applyPayoutFields(b *models.Booking, extra *repositories.PayoutFields) {
	if extra == nil {
		return
	}
	if extra.PayoutStatus != nil {
		b.PayoutStatus = *extra.PayoutStatus
	}
	if extra.PayoutReleaseDate != nil {
		d := *extra.PayoutReleaseDate
		b.PayoutReleaseDate = &d
	}
	if extra.ClearHold {
		b.PayoutHoldReason = nil
		b.PayoutHoldUntil = nil
	} else {
		if extra.PayoutHoldReason != nil {
			r := *extra.PayoutHoldReason
			b.PayoutHoldReason = &r
		}
		if extra.PayoutHoldUntil != nil {
			u := *extra.PayoutHoldUntil
			b.PayoutHoldUntil = &u
		}
	}
}

func (f *fakeBookingStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, target string, extra *repositories.PayoutFields) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok || b.Status != expected {
		return 0, nil
	}
	b.Status = target
	applyPayoutFields(b, extra)
	return 1, nil
}

func (f *fakeBookingStore) UpdatePayoutFields(ctx context.Context, id uuid.UUID, extra repositories.PayoutFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return repositories.ErrNotFound
	}
	applyPayoutFields(b, &extra)
	return nil
}

func (f *fakeBookingStore) GetReleaseCandidates(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if b.Status != models.BookingStatusConfirmed && b.Status != models.BookingStatusCompleted {
			continue
		}
		if b.PayoutReleaseDate == nil || b.PayoutReleaseDate.After(now) {
			continue
		}
		switch b.PayoutStatus {
		case models.PayoutStatusPending, models.PayoutStatusFailed:
			if b.PayoutHoldUntil != nil && b.PayoutHoldUntil.After(now) {
				continue
			}
		case models.PayoutStatusOnHold:
			if b.PayoutHoldUntil == nil || b.PayoutHoldUntil.After(now) {
				continue
			}
		default:
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (f *fakeBookingStore) GetDepositReturnCandidates(ctx context.Context, now time.Time, offset time.Duration, limit int) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if b.Status != models.BookingStatusCheckedOut && b.Status != models.BookingStatusCompleted {
			continue
		}
		if b.SecurityDeposit == 0 || b.CheckOutDate.Add(offset).After(now) {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (f *fakeBookingStore) GetTimedOutPending(ctx context.Context, timeout time.Duration) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Booking
	for _, b := range f.bookings {
		if b.Status == models.BookingStatusPending && time.Since(b.CreatedAt) > timeout {
			out = append(out, *b)
		}
	}
	return out, nil
}

type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[uuid.UUID]*models.Payment)}
}

func (f *fakePaymentStore) put(p *models.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	cp.ProcessedEvents = append([]string(nil), p.ProcessedEvents...)
	f.payments[p.ID] = &cp
}

func (f *fakePaymentStore) Create(ctx context.Context, p *models.Payment) error {
	p.ID = uuid.New()
	f.put(p)
	return nil
}

func (f *fakePaymentStore) GetByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.BookingID == bookingID {
			cp := *p
			cp.ProcessedEvents = append([]string(nil), p.ProcessedEvents...)
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakePaymentStore) GetByProviderRef(ctx context.Context, provider, ref string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.Provider == provider && p.ProviderRef == ref {
			cp := *p
			cp.ProcessedEvents = append([]string(nil), p.ProcessedEvents...)
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakePaymentStore) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, target string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok || p.Status != expected {
		return 0, nil
	}
	p.Status = target
	return 1, nil
}

func (f *fakePaymentStore) HasProcessedEvent(ctx context.Context, id uuid.UUID, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return false, repositories.ErrNotFound
	}
	for _, e := range p.ProcessedEvents {
		if e == eventID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePaymentStore) AppendProcessedEvent(ctx context.Context, id uuid.UUID, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return false, repositories.ErrNotFound
	}
	for _, e := range p.ProcessedEvents {
		if e == eventID {
			return false, nil
		}
	}
	p.ProcessedEvents = append(p.ProcessedEvents, eventID)
	return true, nil
}

func (f *fakePaymentStore) MarkPayoutReleased(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[id]; ok {
		p.PayoutReleased = true
	}
	return nil
}

func (f *fakePaymentStore) clearPayoutReleased(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[id]; ok {
		p.PayoutReleased = false
	}
}

func (f *fakePaymentStore) MarkDepositReturned(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[id]; ok {
		p.DepositReturned = true
	}
	return nil
}

func (f *fakePaymentStore) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[id]; ok {
		p.Status = models.PaymentStatusRefunded
	}
	return nil
}

type fakeEscrowLedger struct {
	mu      sync.Mutex
	entries []models.EscrowEvent
}

func (f *fakeEscrowLedger) Append(ctx context.Context, e *models.EscrowEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeEscrowLedger) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.EscrowEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EscrowEvent
	for _, e := range f.entries {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEscrowLedger) HasEvent(ctx context.Context, bookingID uuid.UUID, eventType string) (bool, error) {
	entries, _ := f.ListByBooking(ctx, bookingID)
	for _, e := range entries {
		if e.EventType == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEscrowLedger) count(bookingID uuid.UUID, eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.BookingID == bookingID && e.EventType == eventType {
			n++
		}
	}
	return n
}

type fakeDisputeStore struct {
	mu       sync.Mutex
	bookings *fakeBookingStore
	disputes map[uuid.UUID]*models.Dispute
}

func newFakeDisputeStore(bookings *fakeBookingStore) *fakeDisputeStore {
	return &fakeDisputeStore{bookings: bookings, disputes: make(map[uuid.UUID]*models.Dispute)}
}

func (f *fakeDisputeStore) Open(ctx context.Context, d *models.Dispute, expectedStatus, holdReason string) error {
	status := models.PayoutStatusOnHold
	affected, err := f.bookings.UpdateStatusIf(ctx, d.BookingID, expectedStatus, models.BookingStatusDisputeOpened,
		&repositories.PayoutFields{PayoutStatus: &status, PayoutHoldReason: &holdReason})
	if err != nil {
		return err
	}
	if affected == 0 {
		return repositories.ErrBookingNotInStatus
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d.ID = uuid.New()
	d.Status = models.DisputeStatusOpen
	d.CreatedAt = time.Now()
	cp := *d
	f.disputes[d.ID] = &cp
	return nil
}

func (f *fakeDisputeStore) GetOpenByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.disputes {
		if d.BookingID == bookingID && d.Status == models.DisputeStatusOpen {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeDisputeStore) HasOpenDispute(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	_, err := f.GetOpenByBookingID(ctx, bookingID)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (f *fakeDisputeStore) Resolve(ctx context.Context, id uuid.UUID, resolution string, guestShare, hostShare *int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.disputes[id]
	if !ok || d.Status != models.DisputeStatusOpen {
		return 0, nil
	}
	now := time.Now()
	d.Status = models.DisputeStatusResolved
	d.Resolution = &resolution
	d.GuestShare = guestShare
	d.HostShare = hostShare
	d.ResolvedAt = &now
	return 1, nil
}

type fakePayoutStore struct {
	mu       sync.Mutex
	bookings *fakeBookingStore
	payments *fakePaymentStore
	payouts  map[uuid.UUID]*models.Payout
}

func newFakePayoutStore(bookings *fakeBookingStore, payments *fakePaymentStore) *fakePayoutStore {
	return &fakePayoutStore{bookings: bookings, payments: payments, payouts: make(map[uuid.UUID]*models.Payout)}
}

func (f *fakePayoutStore) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payouts[paymentID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayoutStore) CompleteRelease(ctx context.Context, bookingID, paymentID uuid.UUID, amount int64, currency, transferID string, meta json.RawMessage) error {
	f.mu.Lock()
	p, ok := f.payouts[paymentID]
	if !ok {
		p = &models.Payout{ID: uuid.New(), PaymentID: paymentID, BookingID: bookingID, Amount: amount, Currency: currency}
		f.payouts[paymentID] = p
	}
	now := time.Now()
	p.Status = models.PayoutRecordReleased
	p.ProviderTransferID = &transferID
	p.ProcessedAt = &now
	p.AttemptCount++
	f.mu.Unlock()

	status := models.PayoutStatusReleased
	if err := f.bookings.UpdatePayoutFields(ctx, bookingID, repositories.PayoutFields{PayoutStatus: &status, ClearHold: true}); err != nil {
		return err
	}
	return f.payments.MarkPayoutReleased(ctx, paymentID)
}

func (f *fakePayoutStore) Requeue(ctx context.Context, bookingID, paymentID uuid.UUID, reason string) error {
	f.mu.Lock()
	if p, ok := f.payouts[paymentID]; ok {
		p.Status = models.PayoutRecordPending
		p.ProviderTransferID = nil
		p.ProcessedAt = nil
		p.LastError = &reason
	}
	f.mu.Unlock()

	status := models.PayoutStatusPending
	if err := f.bookings.UpdatePayoutFields(ctx, bookingID, repositories.PayoutFields{PayoutStatus: &status}); err != nil {
		return err
	}
	f.payments.clearPayoutReleased(paymentID)
	return nil
}

func (f *fakePayoutStore) MarkFailed(ctx context.Context, bookingID, paymentID uuid.UUID, amount int64, currency, attemptErr string) error {
	f.mu.Lock()
	p, ok := f.payouts[paymentID]
	if !ok {
		p = &models.Payout{ID: uuid.New(), PaymentID: paymentID, BookingID: bookingID, Amount: amount, Currency: currency}
		f.payouts[paymentID] = p
	}
	p.Status = models.PayoutRecordFailed
	p.AttemptCount++
	p.LastError = &attemptErr
	f.mu.Unlock()

	status := models.PayoutStatusFailed
	return f.bookings.UpdatePayoutFields(ctx, bookingID, repositories.PayoutFields{PayoutStatus: &status})
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUserStore) put(u *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	f.users[u.ID] = &cp
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeUserStore) UpdateBankDetails(ctx context.Context, id uuid.UUID, bankCode, accountNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.BankCode = &bankCode
		u.AccountNumber = &accountNumber
		u.TransferRecipient = nil
	}
	return nil
}

func (f *fakeUserStore) CacheTransferRecipient(ctx context.Context, id uuid.UUID, recipient string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.TransferRecipient = &recipient
	}
	return nil
}

type fakePropertyStore struct {
	mu         sync.Mutex
	properties map[uuid.UUID]*models.Property
}

func newFakePropertyStore() *fakePropertyStore {
	return &fakePropertyStore{properties: make(map[uuid.UUID]*models.Property)}
}

func (f *fakePropertyStore) put(p *models.Property) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	f.properties[p.ID] = &cp
}

func (f *fakePropertyStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.properties[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAudit) Log(ctx context.Context, entry models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AuditLog
	for _, e := range f.entries {
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(ctx context.Context, stream string, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type fakeProvider struct {
	mu          sync.Mutex
	name        string
	refunds     []providers.RefundRequest
	transfers   []providers.TransferRequest
	refundErr   error
	transferErr error
	verify      *providers.ChargeVerification
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) InitializeCharge(ctx context.Context, req providers.InitChargeRequest) (*providers.InitChargeResult, error) {
	return &providers.InitChargeResult{CheckoutURL: "https://checkout.test/" + req.Reference, Reference: req.Reference}, nil
}

func (f *fakeProvider) VerifyCharge(ctx context.Context, reference string) (*providers.ChargeVerification, error) {
	if f.verify != nil {
		return f.verify, nil
	}
	return &providers.ChargeVerification{Succeeded: false, Reference: reference}, nil
}

func (f *fakeProvider) InitiateTransfer(ctx context.Context, req providers.TransferRequest) (*providers.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.transfers = append(f.transfers, req)
	return &providers.TransferResult{TransferID: "trf_1", Status: "success", RecipientCode: "RCP_1"}, nil
}

func (f *fakeProvider) VerifyTransfer(ctx context.Context, reference string) (*providers.TransferResult, error) {
	return &providers.TransferResult{TransferID: reference, Status: "success"}, nil
}

func (f *fakeProvider) ProcessRefund(ctx context.Context, req providers.RefundRequest) (*providers.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	f.refunds = append(f.refunds, req)
	return &providers.RefundResult{RefundRef: "rfd_1", Status: "processed"}, nil
}

func (f *fakeProvider) ListBanks(ctx context.Context) ([]providers.Bank, error) {
	return []providers.Bank{{Name: "Test Bank", Code: "001"}}, nil
}

func (f *fakeProvider) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*providers.ResolvedAccount, error) {
	return &providers.ResolvedAccount{AccountNumber: accountNumber, AccountName: "Test Host"}, nil
}

// env wires every service against the fakes, mirroring the production graph.
type env struct {
	bookings   *fakeBookingStore
	payments   *fakePaymentStore
	ledger     *fakeEscrowLedger
	disputes   *fakeDisputeStore
	payouts    *fakePayoutStore
	users      *fakeUserStore
	properties *fakePropertyStore
	audit      *fakeAudit
	publisher  *fakePublisher
	provider   *fakeProvider
	cfg        *config.Config

	escrowSvc  *EscrowService
	bookingSvc *BookingService
	paymentSvc *PaymentService
	payoutSvc  *PayoutService
	disputeSvc *DisputeService
	webhookSvc *WebhookService
}

func newEnv() *env {
	log := zap.NewNop()
	cfg := &config.Config{
		PlatformFeeBPS:        300,
		CancellationFeeBPS:    2000,
		DefaultCurrency:       "NGN",
		DefaultProvider:       models.ProviderPaystack,
		PayoutReleaseOffset:   24 * time.Hour,
		DepositReturnOffset:   48 * time.Hour,
		ReleaseBatchSize:      100,
		PendingPaymentTimeout: time.Hour,
	}

	e := &env{
		bookings:   newFakeBookingStore(),
		payments:   newFakePaymentStore(),
		ledger:     &fakeEscrowLedger{},
		users:      newFakeUserStore(),
		properties: newFakePropertyStore(),
		audit:      &fakeAudit{},
		publisher:  &fakePublisher{},
		provider:   &fakeProvider{name: models.ProviderPaystack},
		cfg:        cfg,
	}
	e.disputes = newFakeDisputeStore(e.bookings)
	e.payouts = newFakePayoutStore(e.bookings, e.payments)

	registry := providers.Registry{models.ProviderPaystack: e.provider}

	e.escrowSvc = NewEscrowService(e.ledger, log)
	e.bookingSvc = NewBookingService(e.bookings, e.payments, e.disputes, e.escrowSvc, registry, e.audit, e.publisher, cfg, log)
	e.paymentSvc = NewPaymentService(e.bookings, e.payments, e.users, registry, e.bookingSvc, cfg, log)
	e.payoutSvc = NewPayoutService(e.bookings, e.payments, e.payouts, e.users, e.properties, e.disputes, e.escrowSvc, registry, e.bookingSvc, e.publisher, nil, cfg, log)
	e.disputeSvc = NewDisputeService(e.disputes, e.bookings, e.payments, e.escrowSvc, registry, e.bookingSvc, e.payoutSvc, e.audit, e.publisher, cfg, log)
	e.webhookSvc = NewWebhookService(e.payments, e.bookings, e.payouts, e.escrowSvc, e.paymentSvc, e.disputeSvc, e.audit, log)
	return e
}

// fundedBooking seeds a confirmed booking with a completed payment and the
// ledger entries a verified charge leaves behind.
func (e *env) fundedBooking(checkIn time.Time) (*models.Booking, *models.Payment) {
	host := &models.User{Email: "host@test", Name: "Host", Role: "host"}
	bank, acct := "001", "0123456789"
	host.BankCode = &bank
	host.AccountNumber = &acct
	e.users.put(host)

	property := &models.Property{HostID: host.ID, Title: "Loft", City: "Lagos"}
	e.properties.put(property)

	guest := &models.User{Email: "guest@test", Name: "Guest", Role: "guest"}
	e.users.put(guest)

	booking := &models.Booking{
		PropertyID:      property.ID,
		GuestID:         guest.ID,
		Status:          models.BookingStatusConfirmed,
		CheckInDate:     checkIn,
		CheckOutDate:    checkIn.Add(48 * time.Hour),
		Currency:        "NGN",
		RoomFee:         100_000,
		CleaningFee:     15_000,
		SecurityDeposit: 50_000,
		ServiceFee:      8_000,
		PlatformFee:     5_000,
		TotalPrice:      178_000,
		PayoutStatus:    models.PayoutStatusPending,
	}
	booking.CreatedAt = time.Now()
	e.bookings.put(booking)

	payment := &models.Payment{
		BookingID:    booking.ID,
		Provider:     models.ProviderPaystack,
		ProviderRef:  "bk-" + booking.ID.String(),
		Amount:       booking.TotalPrice,
		Currency:     "NGN",
		Status:       models.PaymentStatusCompleted,
		HostEarnings: booking.RoomFee + booking.CleaningFee,
	}
	e.payments.put(payment)

	ctx := context.Background()
	for _, a := range escrow.PaymentSplit(Fees(booking)) {
		_ = e.escrowSvc.Record(ctx, booking, a, nil, nil)
	}
	return booking, payment
}
