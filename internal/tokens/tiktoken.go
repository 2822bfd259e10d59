package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"github.com/mhismail3/tron-sub010/internal/message"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// TiktokenEstimator counts free text with a BPE encoding. Fixed-cost parts
// (images, per-message overhead, ids) keep their heuristic weight. If the
// encoding cannot be loaded the estimator behaves like CharEstimator.
type TiktokenEstimator struct {
	encoding string
	logger   zerolog.Logger

	once   sync.Once
	encode func(string) int
}

// NewTiktokenEstimator returns an estimator for the named encoding. The
// encoding is loaded lazily on first use.
func NewTiktokenEstimator(encoding string, logger zerolog.Logger) *TiktokenEstimator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenEstimator{encoding: encoding, logger: logger}
}

func (t *TiktokenEstimator) counter() func(string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.logger.Warn().Err(err).Str("encoding", t.encoding).Msg("tiktoken unavailable, using character heuristic")
			return
		}
		t.encode = func(s string) int { return len(enc.Encode(s, nil, nil)) }
	})
	return t.encode
}

// Available reports whether the BPE encoding loaded.
func (t *TiktokenEstimator) Available() bool { return t.counter() != nil }

// EstimateText implements Estimator.
func (t *TiktokenEstimator) EstimateText(text string) int {
	if count := t.counter(); count != nil {
		return count(text)
	}
	return CharEstimator{}.EstimateText(text)
}

// EstimateMessage implements Estimator.
func (t *TiktokenEstimator) EstimateMessage(m message.Message) int {
	count := t.counter()
	if count == nil {
		return CharEstimator{}.EstimateMessage(m)
	}
	// Express BPE counts in characters so they combine with fixed-cost parts.
	return charsToTokens(MessageChars(m, func(s string) int { return count(s) * CharsPerToken }))
}

var (
	_ Estimator = CharEstimator{}
	_ Estimator = (*TiktokenEstimator)(nil)
)
