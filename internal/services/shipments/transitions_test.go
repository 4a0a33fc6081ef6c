package shipments

import (
	"testing"

	"github.com/AuroraCargo/CargoPort/internal/models"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{models.ShipmentStatusPending, models.ShipmentStatusApproved, true},
		{models.ShipmentStatusPending, models.ShipmentStatusRejected, true},
		{models.ShipmentStatusPending, models.ShipmentStatusDelivered, false},
		{models.ShipmentStatusApproved, models.ShipmentStatusProcessing, true},
		{models.ShipmentStatusApproved, models.ShipmentStatusOnHold, true},
		{models.ShipmentStatusProcessing, models.ShipmentStatusInTransit, true},
		{models.ShipmentStatusProcessing, models.ShipmentStatusDelivered, false},
		{models.ShipmentStatusInTransit, models.ShipmentStatusDelivered, true},
		{models.ShipmentStatusInTransit, models.ShipmentStatusDelayed, true},
		{models.ShipmentStatusDelayed, models.ShipmentStatusInTransit, true},
		{models.ShipmentStatusOnHold, models.ShipmentStatusProcessing, true},
		// Rejected как override из любого нетерминального.
		{models.ShipmentStatusInTransit, models.ShipmentStatusRejected, true},
		{models.ShipmentStatusDelayed, models.ShipmentStatusRejected, true},
		// Из терминальных не выходим.
		{models.ShipmentStatusDelivered, models.ShipmentStatusInTransit, false},
		{models.ShipmentStatusDelivered, models.ShipmentStatusRejected, false},
		{models.ShipmentStatusRejected, models.ShipmentStatusApproved, false},
		// Неизвестные статусы.
		{"Lost", models.ShipmentStatusApproved, false},
		{models.ShipmentStatusPending, "Lost", false},
	}

	for _, c := range cases {
		require.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestAllowedNext(t *testing.T) {
	require.Contains(t, AllowedNext(models.ShipmentStatusPending), models.ShipmentStatusRejected)
	require.Contains(t, AllowedNext(models.ShipmentStatusProcessing), models.ShipmentStatusRejected)
	require.Nil(t, AllowedNext(models.ShipmentStatusDelivered))

	// Rejected не дублируется, когда он уже в основном списке.
	n := 0
	for _, s := range AllowedNext(models.ShipmentStatusPending) {
		if s == models.ShipmentStatusRejected {
			n++
		}
	}
	require.Equal(t, 1, n)
}

func TestGenerateTrackingNumber_Format(t *testing.T) {
	r := &seqRand{vals: []int{0, 5, 999999}}
	require.Equal(t, "AUR000000", generateTrackingNumber(r))
	require.Equal(t, "AUR000005", generateTrackingNumber(r))
	require.Equal(t, "AUR999999", generateTrackingNumber(r))

	require.True(t, ValidTrackingNumber("AUR123456"))
	require.False(t, ValidTrackingNumber("AUR12345"))
	require.False(t, ValidTrackingNumber("aur123456"))
	require.False(t, ValidTrackingNumber("AUR1234567"))
}

func TestEventTypeForStatus(t *testing.T) {
	require.Equal(t, "in-transit", models.EventTypeForStatus(models.ShipmentStatusInTransit))
	require.Equal(t, "approved", models.EventTypeForStatus(models.ShipmentStatusApproved))
	require.Equal(t, "on-hold", models.EventTypeForStatus(models.ShipmentStatusOnHold))
}
