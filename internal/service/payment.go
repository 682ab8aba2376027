package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kopikita/api/internal/database"
	"github.com/kopikita/api/internal/enum"
	"github.com/kopikita/api/internal/pricing"
	"github.com/kopikita/api/internal/proof"
	"github.com/shopspring/decimal"
)

// Static merchant payment details. Reconciliation is manual: staff match the
// transfer amount and reference code by hand, no bank webhook exists.
const (
	qrisMerchantRef   = "00020101021126610014ID.KOPIKITA.WWW"
	bankName          = "BCA"
	bankAccountNumber = "8830145678"
	bankAccountName   = "PT Kopi Kita Sejahtera"
)

var (
	ErrInvalidPaymentMethod = errors.New("metode pembayaran tidak valid")
	ErrInvalidAmount        = errors.New("nominal pembayaran tidak valid")
	ErrOrderNotPayable      = errors.New("pesanan tidak dapat dibayar")
	ErrActivePaymentExists  = errors.New("masih ada pembayaran yang sedang berjalan untuk pesanan ini")
	ErrPaymentNotPending    = errors.New("pembayaran sudah tidak berstatus pending")
	ErrProofNotRequired     = errors.New("metode pembayaran ini tidak memerlukan bukti transfer")
)

// PaymentStore defines the DB methods the payment flow needs.
type PaymentStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (database.Payment, error)
	GetActivePaymentByOrder(ctx context.Context, orderID uuid.UUID) (database.Payment, error)
	AttachPaymentProof(ctx context.Context, arg database.AttachPaymentProofParams) (database.Payment, error)
	UpdatePaymentStatus(ctx context.Context, arg database.UpdatePaymentStatusParams) (database.Payment, error)
}

// OrderTransitioner is the slice of the status machine the payment flow
// drives. Satisfied by *StatusService.
type OrderTransitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, next string) (database.Order, error)
	MarkPaymentVerified(ctx context.Context, orderID uuid.UUID, at time.Time) (database.Order, error)
}

// ProofProcessor validates and stores an uploaded proof image.
// Satisfied by *proof.Processor.
type ProofProcessor interface {
	Process(data []byte, declaredType string) (*proof.Result, error)
}

// PaymentInstructions tell the customer how to settle a payment intent.
type PaymentInstructions struct {
	Method        string   `json:"method"`
	Amount        string   `json:"amount"`
	QRISPayload   string   `json:"qris_payload,omitempty"`
	BankName      string   `json:"bank_name,omitempty"`
	AccountNumber string   `json:"account_number,omitempty"`
	AccountName   string   `json:"account_name,omitempty"`
	ReferenceCode string   `json:"reference_code,omitempty"`
	Notes         []string `json:"notes"`
}

// PaymentIntent is a created payment with its customer instructions.
type PaymentIntent struct {
	Payment      database.Payment
	Instructions PaymentInstructions
}

// PaymentService creates payment intents, ingests proofs, and applies staff
// verification decisions.
type PaymentService struct {
	store  PaymentStore
	status OrderTransitioner
	proofs ProofProcessor
	now    func() time.Time
}

func NewPaymentService(store PaymentStore, status OrderTransitioner, proofs ProofProcessor) *PaymentService {
	return &PaymentService{
		store:  store,
		status: status,
		proofs: proofs,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateIntent opens a payment attempt for an order. At most one payment may
// be active (non-terminal) per order; a retry after rejection creates a new
// record.
func (s *PaymentService) CreateIntent(ctx context.Context, orderID uuid.UUID, method, amountStr string) (*PaymentIntent, error) {
	if !isValidPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil || !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if IsTerminalStatus(order.Status) {
		return nil, ErrOrderNotPayable
	}

	if _, err := s.store.GetActivePaymentByOrder(ctx, orderID); err == nil {
		return nil, ErrActivePaymentExists
	} else if !isNoRows(err) {
		return nil, fmt.Errorf("check active payment: %w", err)
	}

	referenceCode := pgtype.Text{}
	if method == enum.PaymentMethodTransfer {
		referenceCode = pgtype.Text{String: generateTransferRef(), Valid: true}
	}

	payment, err := s.store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:       orderID,
		Method:        method,
		Amount:        decimalToNumeric(amount),
		Status:        enum.PaymentStatusPending,
		ReferenceCode: referenceCode,
	})
	if err != nil {
		// The partial unique index on (order_id) WHERE status = 'PENDING'
		// backstops the check above against concurrent intents.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrActivePaymentExists
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	return &PaymentIntent{
		Payment:      payment,
		Instructions: buildInstructions(payment, amount),
	}, nil
}

func buildInstructions(p database.Payment, amount decimal.Decimal) PaymentInstructions {
	ins := PaymentInstructions{
		Method: p.Method,
		Amount: pricing.FormatRupiah(amount),
	}
	switch p.Method {
	case enum.PaymentMethodQRIS:
		ins.QRISPayload = qrisMerchantRef
		ins.Notes = []string{
			"Scan QRIS merchant di kasir atau gunakan payload di atas.",
			"Masukkan nominal persis " + ins.Amount + " saat membayar.",
			"Unggah bukti pembayaran setelah transfer berhasil.",
		}
	case enum.PaymentMethodTransfer:
		ins.BankName = bankName
		ins.AccountNumber = bankAccountNumber
		ins.AccountName = bankAccountName
		ins.ReferenceCode = p.ReferenceCode.String
		ins.Notes = []string{
			"Nominal transfer harus sama persis dengan " + ins.Amount + ".",
			"Kode referensi " + ins.ReferenceCode + " wajib dicantumkan di berita transfer.",
			"Unggah bukti transfer setelah pembayaran berhasil.",
		}
	default: // CASH, CARD
		ins.Notes = []string{
			"Silakan lakukan pembayaran di kasir.",
			"Tidak perlu mengunggah bukti pembayaran.",
		}
	}
	return ins
}

// SubmitProof ingests an uploaded proof image for a pending QRIS/TRANSFER
// payment and moves the order into payment verification.
func (s *PaymentService) SubmitProof(ctx context.Context, paymentID uuid.UUID, data []byte, contentType string) (*proof.Result, database.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, database.Payment{}, err
	}
	if payment.Status != enum.PaymentStatusPending {
		return nil, database.Payment{}, ErrPaymentNotPending
	}
	if payment.Method != enum.PaymentMethodQRIS && payment.Method != enum.PaymentMethodTransfer {
		return nil, database.Payment{}, ErrProofNotRequired
	}

	res, err := s.proofs.Process(data, contentType)
	if err != nil {
		return nil, database.Payment{}, err
	}

	payment, err = s.store.AttachPaymentProof(ctx, database.AttachPaymentProofParams{
		ID:            paymentID,
		ProofImageURL: res.URL,
	})
	if err != nil {
		return nil, database.Payment{}, fmt.Errorf("attach proof: %w", err)
	}

	// Proof submission drives PENDING_PAYMENT -> PAYMENT_VERIFICATION. The
	// payment stays PENDING: verification is a separate staff action.
	if _, err := s.status.Transition(ctx, payment.OrderID, enum.OrderStatusPaymentVerification); err != nil {
		return nil, database.Payment{}, err
	}

	return res, payment, nil
}

// Verify applies a staff verification decision. Approval completes the
// payment and confirms the order; rejection fails the payment and routes the
// order back to PENDING_PAYMENT so the customer can retry, since the order
// itself may still be valid.
func (s *PaymentService) Verify(ctx context.Context, paymentID, verifierID uuid.UUID, approve bool) (database.Payment, database.Order, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return database.Payment{}, database.Order{}, err
	}
	if payment.Status != enum.PaymentStatusPending {
		return database.Payment{}, database.Order{}, ErrPaymentNotPending
	}

	order, err := s.store.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return database.Payment{}, database.Order{}, err
	}

	// The decision must be applicable to the order before the payment row is
	// touched; an error branch must not leave the payment mutated. Rejecting
	// while the order never left PENDING_PAYMENT (a pending CASH/CARD intent)
	// needs no order move at all.
	rejectInPlace := !approve && order.Status == enum.OrderStatusPendingPayment
	if !rejectInPlace {
		target := enum.OrderStatusPendingPayment
		if approve {
			target = enum.OrderStatusConfirmed
		}
		if err := ValidateTransition(order.Status, target); err != nil {
			return database.Payment{}, database.Order{}, err
		}
	}

	now := s.now()
	nextStatus := enum.PaymentStatusFailed
	if approve {
		nextStatus = enum.PaymentStatusCompleted
	}

	payment, err = s.store.UpdatePaymentStatus(ctx, database.UpdatePaymentStatusParams{
		ID:         paymentID,
		Status:     nextStatus,
		VerifiedBy: pgtype.UUID{Bytes: verifierID, Valid: true},
		VerifiedAt: pgtype.Timestamptz{Time: now, Valid: true},
	})
	if err != nil {
		return database.Payment{}, database.Order{}, fmt.Errorf("update payment status: %w", err)
	}

	switch {
	case approve:
		order, err = s.status.MarkPaymentVerified(ctx, payment.OrderID, now)
	case rejectInPlace:
		// Order stays put; the customer opens a fresh intent.
	default:
		order, err = s.status.Transition(ctx, payment.OrderID, enum.OrderStatusPendingPayment)
	}
	if err != nil {
		return database.Payment{}, database.Order{}, err
	}

	return payment, order, nil
}

func isValidPaymentMethod(m string) bool {
	switch m {
	case enum.PaymentMethodCash, enum.PaymentMethodCard,
		enum.PaymentMethodQRIS, enum.PaymentMethodTransfer:
		return true
	}
	return false
}

func generateTransferRef() string {
	return "TRF-" + strings.ToUpper(uuid.NewString()[:8])
}
