package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Name         string
	Role         string
	CreatedAt    time.Time
}

type MenuItem struct {
	ID          uuid.UUID
	Name        string
	BasePrice   pgtype.Numeric
	Category    pgtype.Text
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Table struct {
	ID               uuid.UUID
	TableNumber      string
	Status           string
	CurrentSessionID pgtype.Text
	OccupiedSince    pgtype.Timestamptz
}

type Promo struct {
	ID                uuid.UUID
	Code              string
	DiscountType      string
	DiscountValue     pgtype.Numeric
	MinPurchaseAmount pgtype.Numeric
	MaxDiscountAmount pgtype.Numeric
	MaxUsesTotal      pgtype.Int4
	CurrentUses       int32
	IsActive          bool
	ValidFrom         pgtype.Timestamptz
	ValidUntil        pgtype.Timestamptz
	CreatedAt         time.Time
}

type Order struct {
	ID                uuid.UUID
	OrderNumber       string
	TableID           pgtype.UUID
	CustomerName      string
	CustomerPhone     string
	CustomerEmail     pgtype.Text
	Status            string
	Subtotal          pgtype.Numeric
	TaxAmount         pgtype.Numeric
	ServiceFee        pgtype.Numeric
	DiscountAmount    pgtype.Numeric
	TotalAmount       pgtype.Numeric
	PromoID           pgtype.UUID
	PromoCode         pgtype.Text
	SessionID         pgtype.Text
	PaymentVerifiedAt pgtype.Timestamptz
	IsRated           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OrderItem struct {
	ID                 uuid.UUID
	OrderID            uuid.UUID
	MenuItemID         uuid.UUID
	Name               string
	UnitPrice          pgtype.Numeric
	CustomizationPrice pgtype.Numeric
	Quantity           int32
	Customizations     []byte
	Subtotal           pgtype.Numeric
	Notes              pgtype.Text
	Status             string
}

type Payment struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Method        string
	Amount        pgtype.Numeric
	Status        string
	ReferenceCode pgtype.Text
	ProofImageURL pgtype.Text
	VerifiedBy    pgtype.UUID
	VerifiedAt    pgtype.Timestamptz
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Rating struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Score     int32
	Comment   pgtype.Text
	CreatedAt time.Time
}
