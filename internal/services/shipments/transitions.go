package shipments

import "github.com/AuroraCargo/CargoPort/internal/models"

// Граф переходов статусов. Вся проверка рёбер живёт здесь: статус в
// базе меняется только через Transition, который сверяется с графом.
var transitions = map[string][]string{
	models.ShipmentStatusPending:    {models.ShipmentStatusApproved, models.ShipmentStatusRejected},
	models.ShipmentStatusApproved:   {models.ShipmentStatusProcessing, models.ShipmentStatusOnHold, models.ShipmentStatusRejected},
	models.ShipmentStatusProcessing: {models.ShipmentStatusInTransit, models.ShipmentStatusDelayed, models.ShipmentStatusOnHold},
	models.ShipmentStatusInTransit:  {models.ShipmentStatusDelivered, models.ShipmentStatusDelayed},
	models.ShipmentStatusDelayed:    {models.ShipmentStatusInTransit, models.ShipmentStatusProcessing},
	models.ShipmentStatusOnHold:     {models.ShipmentStatusInTransit, models.ShipmentStatusProcessing},
}

// CanTransition отвечает, разрешено ли ребро from -> to. Rejected
// достижим из любого нетерминального статуса как override.
func CanTransition(from, to string) bool {
	if !models.IsKnownStatus(from) || !models.IsKnownStatus(to) {
		return false
	}
	if to == models.ShipmentStatusRejected && !models.IsTerminalStatus(from) {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedNext — варианты для выпадашки в админке.
func AllowedNext(from string) []string {
	if models.IsTerminalStatus(from) {
		return nil
	}
	out := append([]string{}, transitions[from]...)
	// Override добавляем, если его нет в основном списке.
	hasRejected := false
	for _, s := range out {
		if s == models.ShipmentStatusRejected {
			hasRejected = true
		}
	}
	if !hasRejected {
		out = append(out, models.ShipmentStatusRejected)
	}
	return out
}
