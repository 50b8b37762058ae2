package utils

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// SixIDHookFunc returns a SixID and whether it should replace random generation.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook lets tests make NewSixID deterministic.
var NewSixIDHook SixIDHookFunc

// sixIDSubtype is the BSON binary subtype SixIDs are stored under.
const sixIDSubtype byte = 0x80

// SixID is a 6-byte random identifier. Its text form is 10 Crockford base32 chars.
type SixID [6]byte

// NewSixID returns a random SixID, or the hook's value when one is installed.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}
	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		return SixID{}
	}
	return id
}

// IsZero reports whether the id is unset.
func (u SixID) IsZero() bool {
	return u == SixID{}
}

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordDecodeMap [256]int8

func init() {
	for i := range crockfordDecodeMap {
		crockfordDecodeMap[i] = -1
	}
	for i := 0; i < len(crockfordAlphabet); i++ {
		c := crockfordAlphabet[i]
		crockfordDecodeMap[c] = int8(i)
		crockfordDecodeMap[strings.ToLower(string(c))[0]] = int8(i)
	}
	// Crockford aliases for commonly confused characters.
	for _, c := range "oO" {
		crockfordDecodeMap[c] = 0
	}
	for _, c := range "iIlL" {
		crockfordDecodeMap[c] = 1
	}
}

// String encodes the id as 10 uppercase Crockford base32 characters, least significant bits first.
func (u SixID) String() string {
	out := make([]byte, 0, 10)
	var bits uint
	var n uint
	for _, b := range u {
		bits |= uint(b) << n
		n += 8
		for n >= 5 {
			out = append(out, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			n -= 5
		}
	}
	if n > 0 {
		out = append(out, crockfordAlphabet[bits&0x1F])
	}
	return string(out)
}

// ParseSixID decodes the Crockford form produced by String. Hyphens and spaces are ignored.
// An empty string yields the zero id.
func ParseSixID(s string) (SixID, error) {
	if s == "" {
		return SixID{}, nil
	}
	s = strings.NewReplacer("-", "", " ", "").Replace(s)
	if len(s) != 10 {
		return SixID{}, errors.New("invalid SixID: string length must be 10")
	}

	var id SixID
	var bits uint64
	var n uint
	idx := 0
	for i := 0; i < len(s); i++ {
		v := crockfordDecodeMap[s[i]]
		if v < 0 {
			return SixID{}, fmt.Errorf("invalid SixID: bad character %q", s[i])
		}
		bits |= uint64(v) << n
		n += 5
		for n >= 8 && idx < len(id) {
			id[idx] = byte(bits)
			idx++
			bits >>= 8
			n -= 8
		}
	}
	if idx != len(id) {
		return SixID{}, errors.New("invalid SixID: could not decode 6 bytes")
	}
	return id, nil
}

// MustParseSixID is ParseSixID for constants in tests and fixtures.
func MustParseSixID(s string) SixID {
	id, err := ParseSixID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// MarshalJSON encodes the id as its Crockford string.
func (u SixID) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON decodes a Crockford string.
func (u *SixID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSixID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MarshalText lets SixID act as a map key in JSON documents.
func (u SixID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (u *SixID) UnmarshalText(text []byte) error {
	parsed, err := ParseSixID(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MarshalBSONValue stores the id as BSON binary with subtype 0x80.
func (u SixID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.TypeBinary, bsoncore.AppendBinary(nil, sixIDSubtype, u[:]), nil
}

// UnmarshalBSONValue reads a binary subtype 0x80 value. BSON null yields the zero id.
func (u *SixID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bson.TypeNull {
		*u = SixID{}
		return nil
	}
	if t != bson.TypeBinary {
		return fmt.Errorf("invalid BSON type for SixID: %s", t)
	}
	subtype, bin, _, ok := bsoncore.ReadBinary(data)
	if !ok || subtype != sixIDSubtype || len(bin) != len(u) {
		return errors.New("invalid BSON binary data for SixID: incorrect subtype or length")
	}
	copy(u[:], bin)
	return nil
}
