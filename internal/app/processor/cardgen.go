package processor

import (
	"fmt"
	"math/rand"

	"github.com/khaeldev/card-issuance-service/internal/domain"
)

// generateCardData produces synthetic card material in the external
// provider's format: a 16-digit number on the 4000 BIN, a 3-digit CVV and a
// fixed expiration. Real tokenization is out of scope.
func generateCardData() domain.CardData {
	return domain.CardData{
		Number:     fmt.Sprintf("4000%012d", rand.Int63n(1_000_000_000_000)),
		CVV:        fmt.Sprintf("%03d", rand.Intn(900)+100),
		Expiration: "12/29",
	}
}
