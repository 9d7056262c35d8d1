// Package identity verifies a guest before a room is handed over. Manual
// document entry and face matching share one PASS/FAIL contract; the actual
// lookup and biometric matching happen behind an external Oracle.
package identity

import (
	"context"
	"errors"
	"time"
)

type Method string

const (
	MethodManualDocument Method = "MANUAL_DOCUMENT"
	MethodFaceMatch      Method = "FACE_MATCH"
)

type Outcome string

const (
	Pass Outcome = "PASS"
	Fail Outcome = "FAIL"
)

type DocumentType string

const (
	DocPassport      DocumentType = "PASSPORT"
	DocNationalID    DocumentType = "NATIONAL_ID"
	DocIDCard        DocumentType = "ID_CARD"
	DocDriverLicense DocumentType = "DRIVER_LICENSE"
)

// DefaultPatterns are the document number formats accepted out of the box.
var DefaultPatterns = map[DocumentType]string{
	DocPassport:      `^[A-Z][0-9]{7,8}$`,
	DocNationalID:    `^[0-9]{12}$`,
	DocIDCard:        `^[0-9]{9}$`,
	DocDriverLicense: `^[0-9]{12}$`,
}

// DefaultMatchThreshold is the face match score required to pass.
const DefaultMatchThreshold = 80

// Document is what the operator typed in.
type Document struct {
	Number string
	Type   DocumentType
}

// Match is a positive oracle answer.
type Match struct {
	Name  string
	Score float64
}

// ErrNotFound is returned by an Oracle when the document or face is unknown to it.
// Any other error is treated as a transport failure.
var ErrNotFound = errors.New("identity: no match")

// Oracle is the external verification service.
type Oracle interface {
	MatchDocument(ctx context.Context, number string, docType DocumentType) (Match, error)
	MatchFace(ctx context.Context, image []byte) (Match, error)
}

// Check is one recorded verification attempt. Checks are append-only; a retry
// produces a new Check.
type Check struct {
	ID             string
	Method         Method
	DocumentNumber string
	DocumentType   DocumentType
	Score          float64
	Result         Outcome
	MatchedName    string
	// Epoch ties the check to a verification round of its stay. Going back to
	// identity verification starts a new epoch and earlier checks stop counting.
	Epoch     int
	Actor     string
	CheckedAt time.Time
}

func (c Check) Passed() bool { return c.Result == Pass }

// HasPass reports whether checks contain a PASS recorded in the given epoch.
func HasPass(checks []Check, epoch int) bool {
	for _, c := range checks {
		if c.Epoch == epoch && c.Passed() {
			return true
		}
	}
	return false
}
