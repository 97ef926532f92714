package types

import (
	"bytes"
	"strconv"

	"discord-gateway-client/etf"
)

// Snowflake is a 64-bit entity identifier. It travels as a decimal string
// in JSON and as an unsigned integer in ETF; equality and hashing are by
// the numeric value.
type Snowflake uint64

// ParseSnowflake converts a decimal string into a Snowflake.
func ParseSnowflake(s string) (Snowflake, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Snowflake(v), nil
}

func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// IsZero reports whether the id is unset.
func (s Snowflake) IsZero() bool {
	return s == 0
}

var jsonNull = []byte("null")

func (s Snowflake) MarshalJSON() ([]byte, error) {
	if s == 0 {
		return jsonNull, nil
	}
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Snowflake) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, jsonNull) {
		*s = 0
		return nil
	}
	if len(data) >= 2 && data[0] == '"' {
		data = data[1 : len(data)-1]
	}
	if len(data) == 0 {
		*s = 0
		return nil
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return err
	}
	*s = Snowflake(v)
	return nil
}

// MarshalETF writes the id as its numeric value.
func (s Snowflake) MarshalETF(e *etf.Encoder) error {
	return e.WriteUint(uint64(s))
}

// UnmarshalETF accepts integer and textual representations.
func (s *Snowflake) UnmarshalETF(d *etf.Decoder) error {
	v, err := d.ReadUint64()
	if err != nil {
		return err
	}
	*s = Snowflake(v)
	return nil
}
