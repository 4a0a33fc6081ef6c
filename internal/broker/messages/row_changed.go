package messages

import "time"

// RowChanged — событие "строка таблицы изменилась", публикуется
// писателем после коммита. Потребитель сбрасывает кэш и раздаёт сигнал
// локальным подписчикам; перечитывание данных — на их стороне.
type RowChanged struct {
	Table string    `json:"table"`
	Op    string    `json:"op"` // insert | update | delete
	RowID uint64    `json:"row_id"`
	At    time.Time `json:"at"`

	UserID         *uint64 `json:"user_id,omitempty"`
	ShipmentID     *uint64 `json:"shipment_id,omitempty"`
	ConversationID *uint64 `json:"conversation_id,omitempty"`
}
