package models

import "time"

// TrustedContact - доверенный контакт пользователя, телефон в формате E.164
type TrustedContact struct {
	OwnerID string `json:"owner_id" firestore:"owner_id"`
	Name    string `json:"name" firestore:"name"`
	Phone   string `json:"phone" firestore:"phone"`
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// LocationStatus - откуда взялась координата тревоги
type LocationStatus string

const (
	LocationProvided         LocationStatus = "provided"
	LocationLastKnown        LocationStatus = "last_known"
	LocationPermissionDenied LocationStatus = "permission_denied"
	LocationUnavailable      LocationStatus = "unavailable"
)

// DeliveryRecord - результат доставки тревоги одному контакту
type DeliveryRecord struct {
	Name      string         `json:"name" firestore:"name"`
	Phone     string         `json:"phone" firestore:"phone"`
	Attempts  int            `json:"attempts" firestore:"attempts"`
	Status    DeliveryStatus `json:"status" firestore:"status"`
	Error     string         `json:"error,omitempty" firestore:"error,omitempty"`
	Late      bool           `json:"late,omitempty" firestore:"late,omitempty"` // результат пришел после финализации
	UpdatedAt time.Time      `json:"updated_at" firestore:"updated_at"`
}

// SOSAlert - экстренная тревога пользователя
type SOSAlert struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"owner_id"`
	Coordinate     *Coordinate      `json:"coordinate,omitempty"`
	LocationStatus LocationStatus   `json:"location_status"`
	CreatedAt      time.Time        `json:"created_at"`
	FinalizedAt    *time.Time       `json:"finalized_at,omitempty"`
	Deliveries     []DeliveryRecord `json:"deliveries"`
}

// Counts возвращает число доставленных и неудавшихся доставок
func (a *SOSAlert) Counts() (delivered, failed int) {
	for _, d := range a.Deliveries {
		switch d.Status {
		case DeliveryDelivered:
			delivered++
		case DeliveryFailed:
			failed++
		}
	}
	return delivered, failed
}

// DispatchResult - итог рассылки, возвращаемый вызывающей стороне
type DispatchResult struct {
	Alert     *SOSAlert `json:"alert"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
}

// SMSMessage - исходящее сообщение доверенному контакту
type SMSMessage struct {
	Reference string `json:"reference"` // идентификатор для дедупликации на стороне шлюза
	To        string `json:"to"`
	Body      string `json:"body"`
}
