package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTxRef returns a reference like tx_ref_20260102_150405_1a2b3c4d5e6f.
func NewTxRef() string {
	now := time.Now()
	return fmt.Sprintf("tx_ref_%s_%s", now.Format("20060102_150405"), randomSuffix(now))
}

func randomSuffix(now time.Time) string {
	id, err := uuid.NewRandom()
	if err != nil {
		// crypto/rand failed; nanoseconds still separate references within a process
		return strconv.FormatInt(now.UnixNano(), 36)
	}
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}
