package lifecycle

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"parley/internal/domain"
)

// NewSessionID returns an id unique per participant pair and establishment
// attempt: session_<low>_<high>_<unix millis>_<random>.
func NewSessionID(a, b domain.AccountID, now time.Time) domain.SessionID {
	pair := []string{a.String(), b.String()}
	sort.Strings(pair)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return domain.SessionID(fmt.Sprintf("session_%s_%s_%d_%s", pair[0], pair[1], now.UnixMilli(), suffix))
}
