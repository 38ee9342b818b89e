package nonce

import (
	"errors"
	"time"
)

// MaxValueLength bounds client chosen nonce values
const MaxValueLength = 64

// Record marks a request nonce as consumed by a signer
type Record struct {
	Id uint64

	Signer string
	Value  string

	CreatedAt time.Time
}

func (r *Record) Validate() error {
	if len(r.Signer) == 0 {
		return errors.New("signer is required")
	}

	if len(r.Value) == 0 {
		return errors.New("value is required")
	}

	if len(r.Value) > MaxValueLength {
		return errors.New("value is too long")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id:        r.Id,
		Signer:    r.Signer,
		Value:     r.Value,
		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id
	dst.Signer = r.Signer
	dst.Value = r.Value
	dst.CreatedAt = r.CreatedAt
}
