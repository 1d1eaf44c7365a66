package history

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"thoreinstein.com/shist/pkg/errors"
)

// Field numbers of the record encoding. Each field is tagged, so a reader
// can pull out one field without decoding the rest, and fields it does not
// know are skipped.
const (
	fieldInput      protowire.Number = 1
	fieldReturnCode protowire.Number = 2
	fieldOutput     protowire.Number = 3
	fieldTsStart    protowire.Number = 4
	fieldTsEnd      protowire.Number = 5
	fieldCwd        protowire.Number = 6
	fieldSessionID  protowire.Number = 7
)

// Field numbers of the header encoding.
const (
	headerHere      protowire.Number = 1
	headerCreated   protowire.Number = 2
	headerVersion   protowire.Number = 3
	headerSessionID protowire.Number = 4
)

// fieldMask records which record fields have been decoded.
type fieldMask uint8

const (
	maskInput fieldMask = 1 << iota
	maskReturnCode
	maskOutput
	maskTimestamps
	maskCwd
	maskSessionID

	maskAll = maskInput | maskReturnCode | maskOutput | maskTimestamps | maskCwd | maskSessionID
)

func maskOf(num protowire.Number) fieldMask {
	switch num {
	case fieldInput:
		return maskInput
	case fieldReturnCode:
		return maskReturnCode
	case fieldOutput:
		return maskOutput
	case fieldTsStart, fieldTsEnd:
		return maskTimestamps
	case fieldCwd:
		return maskCwd
	case fieldSessionID:
		return maskSessionID
	}
	return 0
}

// encodeRecord serializes r. Absent optional fields are not written.
func encodeRecord(r Record) []byte {
	b := make([]byte, 0, 32+len(r.Input))
	b = protowire.AppendTag(b, fieldInput, protowire.BytesType)
	b = protowire.AppendString(b, r.Input)
	if r.ReturnCode != nil {
		b = protowire.AppendTag(b, fieldReturnCode, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(*r.ReturnCode)))
	}
	if r.Output != nil {
		b = protowire.AppendTag(b, fieldOutput, protowire.BytesType)
		b = protowire.AppendString(b, *r.Output)
	}
	b = protowire.AppendTag(b, fieldTsStart, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(r.TimestampStart))
	if r.TimestampEnd != nil {
		b = protowire.AppendTag(b, fieldTsEnd, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(*r.TimestampEnd))
	}
	if r.Cwd != nil {
		b = protowire.AppendTag(b, fieldCwd, protowire.BytesType)
		b = protowire.AppendString(b, *r.Cwd)
	}
	if r.SessionID != "" {
		b = protowire.AppendTag(b, fieldSessionID, protowire.BytesType)
		b = protowire.AppendString(b, r.SessionID)
	}
	return b
}

// decodeRecord fully decodes a record payload.
func decodeRecord(b []byte) (Record, error) {
	var r Record
	err := decodeFields(b, maskAll, &r)
	return r, err
}

// decodeFields scans payload b once and fills only the fields in want.
func decodeFields(b []byte, want fieldMask, r *Record) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "decode tag")
		}
		b = b[n:]

		if maskOf(num)&want == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "skip field %d", num)
			}
			b = b[n:]
			continue
		}

		switch num {
		case fieldInput, fieldOutput, fieldCwd, fieldSessionID:
			if typ != protowire.BytesType {
				return errors.Newf("field %d: unexpected wire type %d", num, typ)
			}
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return errors.Wrapf(protowire.ParseError(m), "field %d", num)
			}
			switch num {
			case fieldInput:
				r.Input = v
			case fieldOutput:
				r.Output = &v
			case fieldCwd:
				r.Cwd = &v
			case fieldSessionID:
				r.SessionID = v
			}
			n = m
		case fieldReturnCode:
			if typ != protowire.VarintType {
				return errors.Newf("field %d: unexpected wire type %d", num, typ)
			}
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return errors.Wrapf(protowire.ParseError(m), "field %d", num)
			}
			rtn := int32(protowire.DecodeZigZag(v))
			r.ReturnCode = &rtn
			n = m
		case fieldTsStart, fieldTsEnd:
			if typ != protowire.Fixed64Type {
				return errors.Newf("field %d: unexpected wire type %d", num, typ)
			}
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return errors.Wrapf(protowire.ParseError(m), "field %d", num)
			}
			f := math.Float64frombits(v)
			if num == fieldTsStart {
				r.TimestampStart = f
			} else {
				r.TimestampEnd = &f
			}
			n = m
		}
		b = b[n:]
	}
	return nil
}

// Header is the session metadata stored as the first unit of a log file.
type Header struct {
	Here      string
	Created   float64
	Version   string
	SessionID string
}

func encodeHeader(h Header) []byte {
	var b []byte
	b = protowire.AppendTag(b, headerHere, protowire.BytesType)
	b = protowire.AppendString(b, h.Here)
	b = protowire.AppendTag(b, headerCreated, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(h.Created))
	b = protowire.AppendTag(b, headerVersion, protowire.BytesType)
	b = protowire.AppendString(b, h.Version)
	b = protowire.AppendTag(b, headerSessionID, protowire.BytesType)
	b = protowire.AppendString(b, h.SessionID)
	return b
}

func decodeHeader(b []byte) (Header, error) {
	var h Header
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Header{}, errors.Wrap(protowire.ParseError(n), "decode header tag")
		}
		b = b[n:]
		switch {
		case typ == protowire.BytesType && (num == headerHere || num == headerVersion || num == headerSessionID):
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return Header{}, errors.Wrapf(protowire.ParseError(m), "header field %d", num)
			}
			switch num {
			case headerHere:
				h.Here = v
			case headerVersion:
				h.Version = v
			case headerSessionID:
				h.SessionID = v
			}
			n = m
		case typ == protowire.Fixed64Type && num == headerCreated:
			v, m := protowire.ConsumeFixed64(b)
			if m < 0 {
				return Header{}, errors.Wrap(protowire.ParseError(m), "header created")
			}
			h.Created = math.Float64frombits(v)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Header{}, errors.Wrapf(protowire.ParseError(n), "skip header field %d", num)
			}
		}
		b = b[n:]
	}
	return h, nil
}
