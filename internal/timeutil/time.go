package timeutil

import (
	"strconv"
	"time"

	gojson "github.com/goccy/go-json"
)

// Time accepts either an RFC 3339 string or unix seconds when decoded.
type Time time.Time

func (t *Time) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == "{}" || s == `""` {
		return nil
	}
	if s[0] == '"' {
		tt, err := time.Parse(`"`+time.RFC3339+`"`, s)
		if err != nil {
			return err
		}
		*t = Time(tt)
		return nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*t = Time(time.Unix(i, 0))
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return gojson.Marshal(time.Time(t))
}

func (t Time) Time() time.Time {
	return time.Time(t)
}

func (t Time) IsZero() bool {
	return time.Time(t).IsZero()
}

func (t Time) Equal(o Time) bool {
	return time.Time(t).Equal(time.Time(o))
}
