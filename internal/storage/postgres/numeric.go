package postgres

import (
	"fmt"
	"math/big"
)

// Raw token amounts live in NUMERIC(78,0) columns. Values are written as
// decimal strings and read back through ::text casts, so precision never
// passes through float64.

// bigString renders v for a NUMERIC column; nil becomes "0".
func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// bigStringPtr renders v for a nullable NUMERIC column; nil stays NULL.
func bigStringPtr(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

// parseBig parses the text representation of a NUMERIC value.
func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse numeric %q", s)
	}
	return v, nil
}

// parseBigPtr parses a nullable NUMERIC value; NULL maps to nil.
func parseBigPtr(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	return parseBig(*s)
}
