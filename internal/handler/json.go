package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

const (
	// maxBodySize bounds request bodies.
	maxBodySize = 1 << 20
	timeFormat  = time.RFC3339Nano
)

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		encodeErrorFields(e, status, message)
		e.ObjEnd()
	})
}

func encodeErrorFields(e *jx.Encoder, status int, message string) {
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
}

// decodeBody decodes a JSON object body, calling field for every key.
func decodeBody(r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if len(body) > maxBodySize {
		return errors.New("body too large")
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return jx.DecodeBytes(body).Obj(field)
}

// decodeDecimal accepts both JSON numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.Errorf("expected number, got %s", d.Next())
	}
}

func encodeMoney(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Str(v.StringFixed(2))
}

func encodeTime(e *jx.Encoder, field string, t time.Time) {
	e.FieldStart(field)
	e.Str(t.UTC().Format(timeFormat))
}

func encodeOptString(e *jx.Encoder, field, v string) {
	e.FieldStart(field)
	if v == "" {
		e.Null()
		return
	}
	e.Str(v)
}
