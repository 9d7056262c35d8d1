package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"frontdesk-backend/internal/apperr"
)

const (
	CodeInvalidDocument         = "InvalidDocument"
	CodeInvalidImage            = "InvalidImage"
	CodeInvalidScore            = "InvalidScore"
	CodeVerificationUnavailable = "VerificationUnavailable"
)

var (
	ErrInvalidDocument         = apperr.Sentinel(CodeInvalidDocument)
	ErrVerificationUnavailable = apperr.Sentinel(CodeVerificationUnavailable)
)

// Options configures a Gate. Zero values fall back to the package defaults;
// a nil MatchThreshold means DefaultMatchThreshold, an explicit 0 is kept.
type Options struct {
	Patterns       map[string]string
	MatchThreshold *float64
	Timeout        time.Duration
}

// Gate runs verification attempts against the oracle.
type Gate struct {
	oracle    Oracle
	patterns  map[DocumentType]*regexp.Regexp
	threshold float64
	timeout   time.Duration
	now       func() time.Time
}

// NewGate compiles the document patterns and returns a ready Gate.
func NewGate(oracle Oracle, opts Options) (*Gate, error) {
	raw := make(map[DocumentType]string, len(DefaultPatterns))
	for k, v := range DefaultPatterns {
		raw[k] = v
	}
	for k, v := range opts.Patterns {
		raw[DocumentType(strings.ToUpper(k))] = v
	}

	compiled := make(map[DocumentType]*regexp.Regexp, len(raw))
	for k, v := range raw {
		re, err := regexp.Compile(v)
		if err != nil {
			return nil, fmt.Errorf("compile pattern for %s: %w", k, err)
		}
		compiled[k] = re
	}

	threshold := float64(DefaultMatchThreshold)
	if opts.MatchThreshold != nil {
		threshold = *opts.MatchThreshold
	}
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("match threshold %v outside [0, 100]", threshold)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Gate{
		oracle:    oracle,
		patterns:  compiled,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}, nil
}

// WithClock replaces the time source used to stamp checks.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func (g *Gate) Threshold() float64 { return g.threshold }

// ValidateDocument checks the document number format locally.
func (g *Gate) ValidateDocument(doc Document) error {
	re, ok := g.patterns[doc.Type]
	if !ok {
		return apperr.Validation(CodeInvalidDocument, "unsupported document type %q", doc.Type)
	}
	if !re.MatchString(doc.Number) {
		return apperr.Validation(CodeInvalidDocument, "%s number %q has an invalid format", doc.Type, doc.Number)
	}
	return nil
}

// VerifyManual validates the document locally and then asks the oracle. An unknown
// document yields a FAIL check. A transport error or timeout yields
// VerificationUnavailable and no check at all.
func (g *Gate) VerifyManual(ctx context.Context, doc Document) (Check, error) {
	doc.Number = strings.ToUpper(strings.TrimSpace(doc.Number))
	if err := g.ValidateDocument(doc); err != nil {
		return Check{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	check := Check{
		ID:             uuid.NewString(),
		Method:         MethodManualDocument,
		DocumentNumber: doc.Number,
		DocumentType:   doc.Type,
	}
	m, err := g.oracle.MatchDocument(callCtx, doc.Number, doc.Type)
	switch {
	case errors.Is(err, ErrNotFound):
		check.Result = Fail
	case err != nil:
		return Check{}, unavailable(err, "match document")
	default:
		check.Result = Pass
		check.MatchedName = m.Name
	}
	check.CheckedAt = g.now()
	return check, nil
}

// VerifyFace submits the captured image to the oracle and scores the match.
func (g *Gate) VerifyFace(ctx context.Context, image []byte) (Check, error) {
	if len(image) == 0 {
		return Check{}, apperr.Validation(CodeInvalidImage, "face image is empty")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	check := Check{ID: uuid.NewString(), Method: MethodFaceMatch}
	m, err := g.oracle.MatchFace(callCtx, image)
	switch {
	case errors.Is(err, ErrNotFound):
		check.Result = Fail
	case err != nil:
		return Check{}, unavailable(err, "match face")
	default:
		if m.Score < 0 || m.Score > 100 {
			return Check{}, apperr.Invariant(CodeInvalidScore, "oracle returned score %v outside 0-100", m.Score)
		}
		check.Score = m.Score
		check.Result = EvaluateFace(m.Score, g.threshold)
		if check.Result == Pass {
			check.MatchedName = m.Name
		}
	}
	check.CheckedAt = g.now()
	return check, nil
}

// EvaluateFace is PASS iff score >= threshold.
func EvaluateFace(score, threshold float64) Outcome {
	if score >= threshold {
		return Pass
	}
	return Fail
}

func unavailable(err error, op string) error {
	return apperr.Wrap(apperr.KindUnavailable, CodeVerificationUnavailable, err, "%s", op)
}
