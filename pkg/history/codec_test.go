package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestRecordCodec(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
	}{
		{"input only", Record{Input: "ls", TimestampStart: 1.5}},
		{"full", Record{
			Input:          "make test",
			ReturnCode:     Int32(-2),
			Output:         String("FAIL\n"),
			TimestampStart: 1700000000.25,
			TimestampEnd:   Float(1700000003.75),
			Cwd:            String("/src/shist"),
			SessionID:      "abc",
		}},
		{"empty strings kept", Record{Input: "", Output: String(""), Cwd: String("")}},
		{"multi-line", Record{Input: "for x in 1 2\ndo echo $x\ndone", ReturnCode: Int32(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecord(encodeRecord(tt.rec))
			require.NoError(t, err)
			assert.Equal(t, tt.rec, got)
		})
	}
}

func TestDecodeFields_Partial(t *testing.T) {
	raw := encodeRecord(Record{
		Input:          "grep from me",
		ReturnCode:     Int32(1),
		Output:         String("nothing"),
		TimestampStart: 10,
		TimestampEnd:   Float(12),
	})

	var r Record
	require.NoError(t, decodeFields(raw, maskReturnCode, &r))
	assert.Equal(t, "", r.Input)
	require.NotNil(t, r.ReturnCode)
	assert.Equal(t, int32(1), *r.ReturnCode)
	assert.Nil(t, r.Output)

	require.NoError(t, decodeFields(raw, maskTimestamps, &r))
	assert.Equal(t, 10.0, r.TimestampStart)
	require.NotNil(t, r.TimestampEnd)
	assert.Equal(t, 12.0, *r.TimestampEnd)
	assert.Nil(t, r.Output)
}

func TestDecodeFields_SkipsUnknownFields(t *testing.T) {
	raw := encodeRecord(Record{Input: "ls", TimestampStart: 3})
	raw = protowire.AppendTag(raw, 42, protowire.BytesType)
	raw = protowire.AppendString(raw, "from a newer writer")
	raw = protowire.AppendTag(raw, 43, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 7)

	r, err := decodeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, "ls", r.Input)
	assert.Equal(t, 3.0, r.TimestampStart)
}

func TestDecodeFields_Truncated(t *testing.T) {
	raw := encodeRecord(Record{Input: "a long enough command", TimestampStart: 3})
	_, err := decodeRecord(raw[:5])
	assert.Error(t, err)
}

func TestHeaderCodec(t *testing.T) {
	h := Header{Here: "host:/dev/pts/3", Created: 1700000000.5, Version: FormatVersion, SessionID: "s1"}
	got, err := decodeHeader(encodeHeader(h))
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, checkVersion("f", "1.0.0"))
	assert.NoError(t, checkVersion("f", "1.4.2"))
	assert.Error(t, checkVersion("f", "2.0.0"))
	assert.Error(t, checkVersion("f", "not-a-version"))
}

func TestRecordFromFields(t *testing.T) {
	r, err := RecordFromFields(map[string]any{
		"inp":       "ls",
		"rtn":       0,
		"out":       "a b",
		"ts":        []any{1.0, 2.5},
		"cwd":       "/tmp",
		"sessionid": "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "ls", r.Input)
	assert.Equal(t, int32(0), *r.ReturnCode)
	assert.Equal(t, "a b", *r.Output)
	assert.Equal(t, 1.0, r.TimestampStart)
	assert.Equal(t, 2.5, *r.TimestampEnd)
	assert.Equal(t, "/tmp", *r.Cwd)
	assert.Equal(t, "x", r.SessionID)

	r, err = RecordFromFields(map[string]any{"inp": "sleep 1", "ts": []any{4.0, nil}})
	require.NoError(t, err)
	assert.Nil(t, r.TimestampEnd)
	assert.Nil(t, r.ReturnCode)

	_, err = RecordFromFields(map[string]any{"inp": "ls", "bogus": 1})
	assert.Error(t, err)
	_, err = RecordFromFields(map[string]any{"inp": 3})
	assert.Error(t, err)
	_, err = RecordFromFields(map[string]any{"rtn": 1.5})
	assert.Error(t, err)
}
