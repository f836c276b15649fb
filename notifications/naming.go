package notifications

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"github.com/cyverse-de/collection-notifier/model"
	"github.com/google/uuid"
)

// RecordExtension is the file extension used for notification records.
const RecordExtension = ".xml"

// Namer generates names for notification records.
type Namer struct {
	now   func() time.Time
	nonce func() string
}

// NewNamer returns a namer that uses the system clock and random UUIDs.
func NewNamer() *Namer {
	return &Namer{
		now:   time.Now,
		nonce: func() string { return uuid.New().String() },
	}
}

// Name returns the name to use for a record in the collection at collectionURL. The name is the hex
// digest of the notification, the current time, the collection URL and a random nonce. The nonce keeps
// names distinct when the other inputs coincide.
func (nm *Namer) Name(n model.Notification, collectionURL string) string {
	h := sha256.New()
	_, _ = io.WriteString(h, n.String())
	_, _ = io.WriteString(h, strconv.FormatInt(nm.now().UnixNano(), 10))
	_, _ = io.WriteString(h, collectionURL)
	_, _ = io.WriteString(h, nm.nonce())
	return hex.EncodeToString(h.Sum(nil)) + RecordExtension
}
