package sequence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultDigitWidth is used when a sequence is configured without a width.
const DefaultDigitWidth = 6

var (
	// ErrSequenceNotConfigured indicates the document type has no sequence row.
	ErrSequenceNotConfigured = errors.New("sequence: document type not configured")
	// ErrSequenceCollision indicates allocation kept hitting issued numbers.
	ErrSequenceCollision = errors.New("sequence: allocation collided past retry limit")
	// ErrNumberTaken indicates a formatted number was already issued.
	ErrNumberTaken = errors.New("sequence: document number already issued")
	// ErrInvalidSequence indicates bad configuration input.
	ErrInvalidSequence = errors.New("sequence: invalid configuration")
)

// Sequence is the numbering series of one document type. CurrentNumber is
// the last value handed out.
type Sequence struct {
	DocumentType  string
	Prefix        string
	DigitWidth    int
	CurrentNumber int64
	UpdatedAt     time.Time
}

// Format renders n as prefix followed by n zero padded to DigitWidth.
func (s Sequence) Format(n int64) string {
	width := s.DigitWidth
	if width <= 0 {
		width = DefaultDigitWidth
	}
	return fmt.Sprintf("%s%0*d", s.Prefix, width, n)
}

// Next is the number the following allocation would produce.
func (s Sequence) Next() string {
	return s.Format(s.CurrentNumber + 1)
}

// Tail extracts the numeric counter from a number carrying this series' prefix.
func (s Sequence) Tail(number string) (int64, bool) {
	if !strings.HasPrefix(number, s.Prefix) {
		return 0, false
	}
	digits := number[len(s.Prefix):]
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ConfigInput describes an administrative sequence setup.
type ConfigInput struct {
	DocumentType string
	Prefix       string
	DigitWidth   int
}

// Validate ensures the input can be stored.
func (in ConfigInput) Validate() error {
	if strings.TrimSpace(in.DocumentType) == "" {
		return fmt.Errorf("%w: document type required", ErrInvalidSequence)
	}
	if in.DigitWidth < 0 || in.DigitWidth > 18 {
		return fmt.Errorf("%w: digit width %d out of range", ErrInvalidSequence, in.DigitWidth)
	}
	return nil
}
