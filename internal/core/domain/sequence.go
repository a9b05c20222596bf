package domain

import (
	"fmt"
	"time"
)

// SequenceBucket scopes item code sequences to a two-digit year and month.
type SequenceBucket struct {
	YY string
	MM string
}

func BucketFor(t time.Time) SequenceBucket {
	t = t.UTC()
	return SequenceBucket{
		YY: fmt.Sprintf("%02d", t.Year()%100),
		MM: fmt.Sprintf("%02d", int(t.Month())),
	}
}

func (b SequenceBucket) String() string { return b.YY + "/" + b.MM }

// FormatItemCode renders PREFIX/YY/MM/NNNNN.
func FormatItemCode(prefix string, bucket SequenceBucket, seq int64) string {
	return fmt.Sprintf("%s/%s/%s/%05d", prefix, bucket.YY, bucket.MM, seq)
}
