package dataset

import (
	"math/rand"
	"time"

	"github.com/ekaya-inc/schema-mapper/pkg/models"
)

// Shuffle seed sentinels.
const (
	// SeedKeepOrder leaves the file order untouched.
	SeedKeepOrder int64 = -1
	// SeedFromClock shuffles non-reproducibly.
	SeedFromClock int64 = 0
)

// NoLimit keeps every question.
const NoLimit = -1

// Prepare produces the ordered subsequence of questions fed to the batch
// builder: shuffle (seeded, so re-runs are identical) then truncate. The
// input slice is not modified.
func Prepare(questions []models.Question, seed int64, limit int) []models.Question {
	out := make([]models.Question, len(questions))
	copy(out, questions)

	switch seed {
	case SeedKeepOrder:
		// Keep file order.
	case SeedFromClock:
		rand.New(rand.NewSource(time.Now().UnixNano())).Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	default:
		rand.New(rand.NewSource(seed)).Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	}

	if limit != NoLimit && limit < len(out) {
		out = out[:limit]
	}
	return out
}
