package models

import (
	"strings"
	"time"
)

// Статусы груза (закрытый словарь, регистр значим).
const (
	ShipmentStatusPending    = "Pending"
	ShipmentStatusApproved   = "Approved"
	ShipmentStatusProcessing = "Processing"
	ShipmentStatusInTransit  = "In Transit"
	ShipmentStatusDelivered  = "Delivered"
	ShipmentStatusDelayed    = "Delayed"
	ShipmentStatusOnHold     = "On Hold"
	ShipmentStatusRejected   = "Rejected"
)

// TrackingNumberPrefix + 6 случайных цифр = публичный номер отправления.
const TrackingNumberPrefix = "AUR"

type Shipment struct {
	ID             uint64
	TrackingNumber string
	UserID         *uint64

	Origin          string
	Destination     string
	WeightKg        float64
	PhysicalWeightKg *float64
	Volume          string
	Quantity        *int32
	Term            string

	Status          string
	CurrentLocation *string

	SenderName    string
	SenderEmail   string
	ReceiverName  string
	ReceiverEmail string

	EstimatedDelivery *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ShipmentCreateInput struct {
	UserID *uint64

	Origin          string
	Destination     string
	WeightKg        float64
	PhysicalWeightKg *float64
	Volume          string
	Quantity        *int32
	Term            string

	SenderName    string
	SenderEmail   string
	ReceiverName  string
	ReceiverEmail string

	EstimatedDelivery *time.Time
}

type TrackingEvent struct {
	ID          uint64
	ShipmentID  uint64
	EventType   string
	Location    *string
	Description *string
	CreatedAt   time.Time
}

// EventTypeForStatus превращает статус в slug события:
// "In Transit" -> "in-transit".
func EventTypeForStatus(status string) string {
	return strings.ReplaceAll(strings.ToLower(status), " ", "-")
}

func IsTerminalStatus(status string) bool {
	return status == ShipmentStatusDelivered || status == ShipmentStatusRejected
}

func IsKnownStatus(status string) bool {
	switch status {
	case ShipmentStatusPending, ShipmentStatusApproved, ShipmentStatusProcessing,
		ShipmentStatusInTransit, ShipmentStatusDelivered, ShipmentStatusDelayed,
		ShipmentStatusOnHold, ShipmentStatusRejected:
		return true
	}
	return false
}
