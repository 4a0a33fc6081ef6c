package shipments

import (
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/AuroraCargo/CargoPort/internal/models"
)

type Rand interface {
	Intn(n int) int
}

var trackingNumberRe = regexp.MustCompile(`^[A-Z]{3}\d{6}$`)

func newRand() Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// generateTrackingNumber: фиксированный префикс + 6 случайных цифр.
// Уникальность гарантирует не генератор, а retry поверх уникального
// индекса в базе.
func generateTrackingNumber(r Rand) string {
	return fmt.Sprintf("%s%06d", models.TrackingNumberPrefix, r.Intn(1_000_000))
}

func ValidTrackingNumber(s string) bool {
	return trackingNumberRe.MatchString(s)
}
