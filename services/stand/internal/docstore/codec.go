package docstore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// Registry is the BSON registry shared by every backend. Money travels as double.
var Registry = newRegistry()

func newRegistry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(decimalType, bsoncodec.ValueEncoderFunc(encodeDecimal))
	reg.RegisterTypeDecoder(decimalType, bsoncodec.ValueDecoderFunc(decodeDecimal))
	return reg
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != decimalType {
		return fmt.Errorf("cannot encode %v as decimal", val.Type())
	}
	d := val.Interface().(decimal.Decimal)
	return vw.WriteDouble(d.InexactFloat64())
}

func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != decimalType {
		return fmt.Errorf("cannot decode into %v", val.Type())
	}

	var d decimal.Decimal
	switch vr.Type() {
	case bsontype.Double:
		f, err := vr.ReadDouble()
		if err != nil {
			return err
		}
		d = decimal.NewFromFloat(f)
	case bsontype.Int32:
		i, err := vr.ReadInt32()
		if err != nil {
			return err
		}
		d = decimal.NewFromInt(int64(i))
	case bsontype.Int64:
		i, err := vr.ReadInt64()
		if err != nil {
			return err
		}
		d = decimal.NewFromInt(i)
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return err
		}
		d, err = decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("cannot parse decimal %q: %w", s, err)
		}
	case bsontype.Null:
		if err := vr.ReadNull(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cannot decode %v into decimal", vr.Type())
	}

	val.Set(reflect.ValueOf(d))
	return nil
}

// Encode converts a record into store fields. The _id key is dropped.
func Encode(v any) (Fields, error) {
	data, err := bson.MarshalWithRegistry(Registry, v)
	if err != nil {
		return nil, fmt.Errorf("cannot encode record: %w", err)
	}
	var m bson.M
	if err := bson.UnmarshalWithRegistry(Registry, data, &m); err != nil {
		return nil, fmt.Errorf("cannot encode record: %w", err)
	}
	delete(m, "_id")
	return Fields(m), nil
}

// Unmarshal decodes a stored document into v.
func Unmarshal(doc bson.M, v any) error {
	data, err := bson.MarshalWithRegistry(Registry, doc)
	if err != nil {
		return fmt.Errorf("cannot decode document: %w", err)
	}
	if err := bson.UnmarshalWithRegistry(Registry, data, v); err != nil {
		return fmt.Errorf("cannot decode document: %w", err)
	}
	return nil
}

// Resolve replaces ServerTimestamp sentinels with now and returns each value in
// stored form. Backends use it before handing fields to their driver.
func Resolve(fields Fields, now time.Time) (bson.M, error) {
	out := make(bson.M, len(fields))
	for k, v := range fields {
		c, err := canonical(v, now)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve %s: %w", k, err)
		}
		out[k] = c
	}
	return out, nil
}

// canonical turns an arbitrary value into the shape it has after a store round
// trip: nested documents as bson.M, arrays as bson.A, times as DateTime.
func canonical(v any, now time.Time) (any, error) {
	v = resolveTimestamps(v, now)
	data, err := bson.MarshalWithRegistry(Registry, bson.M{"v": v})
	if err != nil {
		return nil, fmt.Errorf("cannot encode value: %w", err)
	}
	var m bson.M
	if err := bson.UnmarshalWithRegistry(Registry, data, &m); err != nil {
		return nil, fmt.Errorf("cannot encode value: %w", err)
	}
	return m["v"], nil
}

// resolveTimestamps replaces ServerTimestamp sentinels with now at any depth of
// Fields, bson.M or map[string]any values.
func resolveTimestamps(v any, now time.Time) any {
	switch t := v.(type) {
	case serverTimestamp:
		return now
	case Fields:
		out := make(bson.M, len(t))
		for k, val := range t {
			out[k] = resolveTimestamps(val, now)
		}
		return out
	case bson.M:
		out := make(bson.M, len(t))
		for k, val := range t {
			out[k] = resolveTimestamps(val, now)
		}
		return out
	case map[string]any:
		out := make(bson.M, len(t))
		for k, val := range t {
			out[k] = resolveTimestamps(val, now)
		}
		return out
	default:
		return v
	}
}
