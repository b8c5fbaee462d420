package app

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"ngoportal/internal/domain"
	"ngoportal/internal/phonepe"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"
)

// txnAlphabet excludes ambiguous characters from transaction ids.
const txnAlphabet = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// maxTxnAttempts bounds the collision-retry loop for transaction ids.
const maxTxnAttempts = 5

// ReceiptMailer sends a donation receipt. Implementations must be safe
// for concurrent use.
type ReceiptMailer interface {
	SendReceipt(ctx context.Context, d *domain.Donation) error
}

// DonationService records payment intents and applies verified gateway
// callbacks to them.
type DonationService struct {
	donations domain.DonationRepository
	gateway   *phonepe.Client
	mailer    ReceiptMailer
	phoneRe   *regexp.Regexp
	redirect  string
	callback  string
	log       *logrus.Logger
	now       func() time.Time
}

// NewDonationService creates a DonationService. phonePattern validates
// donor phone numbers; redirectURL/callbackURL are handed to the
// gateway in each pay request.
func NewDonationService(donations domain.DonationRepository, gateway *phonepe.Client, mailer ReceiptMailer, phonePattern, redirectURL, callbackURL string, log *logrus.Logger) (*DonationService, error) {
	re, err := regexp.Compile(phonePattern)
	if err != nil {
		return nil, fmt.Errorf("donation service: bad phone pattern: %w", err)
	}
	return &DonationService{
		donations: donations,
		gateway:   gateway,
		mailer:    mailer,
		phoneRe:   re,
		redirect:  redirectURL,
		callback:  callbackURL,
		log:       log,
		now:       time.Now,
	}, nil
}

// DonationInput carries a donation request from the presentation layer.
type DonationInput struct {
	DonorName   string `validate:"required,min=2,max=100"`
	DonorEmail  string `validate:"required,email"`
	DonorPhone  string
	AmountPaise int64  `validate:"required,gt=0"`
	Cause       string `validate:"required,max=100"`
	Frequency   domain.Frequency
}

// Intent is the result of CreateIntent: the pending donation plus the
// signed gateway request the client is redirected with.
type Intent struct {
	Donation *domain.Donation
	Request  *phonepe.SignedRequest
}

// CreateIntent validates the input, persists a pending donation under a
// store-unique transaction id, and builds the signed gateway redirect.
func (s *DonationService) CreateIntent(ctx context.Context, in DonationInput) (*Intent, error) {
	if in.Frequency == "" {
		in.Frequency = domain.FrequencyOneTime
	}
	if !in.Frequency.Valid() {
		return nil, domain.Errorf(domain.KindValidation, "invalid frequency %q", in.Frequency)
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.DonorPhone != "" && !s.phoneRe.MatchString(in.DonorPhone) {
		return nil, &domain.Error{
			Kind:    domain.KindValidation,
			Message: "validation failed",
			Fields:  map[string]string{"donorphone": "format"},
		}
	}

	now := s.now()
	d := &domain.Donation{
		ID:          uuid.NewString(),
		DonorName:   in.DonorName,
		DonorEmail:  in.DonorEmail,
		DonorPhone:  in.DonorPhone,
		AmountPaise: in.AmountPaise,
		Cause:       in.Cause,
		Frequency:   in.Frequency,
		Status:      domain.DonationPending,
		CreatedAt:   now,
	}

	// Transaction id collisions are unlikely but not assumed impossible.
	var inserted bool
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		d.TransactionID = newTransactionID(now)
		err := s.donations.InsertPending(ctx, d)
		if err == nil {
			inserted = true
			break
		}
		if domain.KindOf(err) != domain.KindValidation {
			return nil, domain.WrapErr(domain.KindDependency, err, "donation insert failed")
		}
	}
	if !inserted {
		return nil, domain.Errorf(domain.KindDependency, "could not allocate a unique transaction id")
	}

	req := &phonepe.PayRequest{
		MerchantTransactionID: d.TransactionID,
		MerchantUserID:        d.DonorEmail,
		Amount:                d.AmountPaise,
		RedirectURL:           s.redirect,
		RedirectMode:          "POST",
		CallbackURL:           s.callback,
		MobileNumber:          d.DonorPhone,
	}
	req.PaymentInstrument.Type = "PAY_PAGE"
	signed, err := s.gateway.Sign(req)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "gateway request signing failed")
	}

	return &Intent{Donation: d, Request: signed}, nil
}

// ApplyCallback applies a verified gateway notification to its donation
// record. Redeliveries of a terminal result are acknowledged without
// side effects; only the caller that wins the pending→terminal
// transition sends the receipt.
func (s *DonationService) ApplyCallback(ctx context.Context, payload *phonepe.CallbackPayload) error {
	txnID := payload.Data.MerchantTransactionID
	if txnID == "" {
		return domain.Errorf(domain.KindIntegrity, "callback missing merchant transaction id")
	}

	d, err := s.donations.FindByTransactionID(ctx, txnID)
	if err != nil {
		return domain.WrapErr(domain.KindDependency, err, "donation lookup failed")
	}
	if d == nil {
		// An intent must already exist; a callback never creates one.
		s.log.WithField("txn_id", txnID).Warn("callback for unknown transaction")
		return domain.Errorf(domain.KindNotFound, "unknown transaction id")
	}

	target := phonepe.StatusFor(payload.Code)
	if !target.Terminal() {
		// Gateway still processing; leave the record pending.
		return nil
	}

	now := s.now()
	won, err := s.donations.MarkStatus(ctx, txnID, target, now)
	if err != nil {
		return domain.WrapErr(domain.KindDependency, err, "donation status update failed")
	}
	if !won {
		// A concurrent or earlier delivery already finalized the record.
		return nil
	}

	if target == domain.DonationCompleted {
		d.Status = target
		d.CompletedAt = &now
		if err := s.mailer.SendReceipt(ctx, d); err != nil {
			s.log.WithError(err).WithField("txn_id", txnID).Warn("receipt send failed")
		}
	}
	s.log.WithFields(logrus.Fields{"txn_id": txnID, "status": target}).Info("donation finalized")
	return nil
}

// ListForDonor returns the donor's most recent donations.
func (s *DonationService) ListForDonor(ctx context.Context, email string, limit int) ([]domain.Donation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := s.donations.ListByEmail(ctx, email, limit)
	if err != nil {
		return nil, domain.WrapErr(domain.KindDependency, err, "donation list failed")
	}
	return items, nil
}

// TotalRaised returns the completed total for a cause in paise.
func (s *DonationService) TotalRaised(ctx context.Context, cause string) (int64, error) {
	total, err := s.donations.TotalRaised(ctx, cause)
	if err != nil {
		return 0, domain.WrapErr(domain.KindDependency, err, "donation totals failed")
	}
	return total, nil
}

// newTransactionID builds a gateway-prefixed id: TXN + timestamp + a
// random suffix.
func newTransactionID(now time.Time) string {
	suffix := gonanoid.MustGenerate(txnAlphabet, 8)
	return "TXN" + now.Format("20060102150405") + suffix
}
