package query

import (
	"encoding/binary"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const cursorSize = 8

var ErrInvalidCursor = errors.New("cursor is invalid")

// Cursor is an opaque pagination position. It encodes the database id of the
// last record a caller has seen.
type Cursor []byte

var EmptyCursor = Cursor{}

func ToCursor(id uint64) Cursor {
	b := make([]byte, cursorSize)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// ParseCursor decodes the base58 form produced by Cursor.ToBase58
func ParseCursor(encoded string) (Cursor, error) {
	b, err := base58.Decode(encoded)
	if err != nil || len(b) != cursorSize {
		return nil, ErrInvalidCursor
	}
	return b, nil
}

func (c Cursor) IsEmpty() bool {
	return len(c) == 0
}

func (c Cursor) ToUint64() uint64 {
	if len(c) != cursorSize {
		return 0
	}
	return binary.BigEndian.Uint64(c)
}

func (c Cursor) ToBase58() string {
	return base58.Encode(c)
}
