package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobValidationCases(t *testing.T) {
	var stmt = []Statement{{Query: "UPDATE t SET n=n+1 WHERE id=?", Args: json.RawMessage(`[5]`)}}
	var target = Target{File: "/tmp/db1"}

	for _, tc := range []struct {
		job Job
		err string
	}{
		{Job{Kind: JobExec, Target: target, Statements: stmt}, ""},
		{Job{Kind: JobScalar, Target: target, Statements: stmt}, ""},
		{Job{Kind: JobRow, Target: target, Statements: stmt}, ""},
		{Job{Kind: JobTx, Target: Target{File: "/tmp/db1", Tx: true}, Statements: append(stmt, stmt...)}, ""},
		{Job{Kind: JobFunc, Target: target, Func: "createUsers"}, ""},
		{Job{Kind: JobFunc, Target: Target{File: "/tmp/db1", Tx: true}, Func: "createUsers"}, ""},

		{Job{Kind: "eval", Target: target}, `Kind: unknown JobKind ("eval")`},
		{Job{Kind: JobExec, Statements: stmt}, "Target: expected File"},
		{Job{Kind: JobExec, Target: target}, "expected exactly one Statement (got 0)"},
		{Job{Kind: JobRow, Target: target, Statements: append(stmt, stmt...)}, "expected exactly one Statement (got 2)"},
		{Job{Kind: JobScalar, Target: target, Statements: stmt, Func: "f"}, "unexpected Func of scalar Job"},
		{Job{Kind: JobTx, Target: Target{File: "/tmp/db1", Tx: true}}, "expected at least one Statement"},
		{Job{Kind: JobTx, Target: target, Statements: stmt}, "Target: expected Tx"},
		{Job{Kind: JobFunc, Target: target}, "expected Func"},
		{Job{Kind: JobFunc, Target: target, Func: "f", Statements: stmt}, "unexpected Statements of func Job"},
		{Job{Kind: JobExec, Target: target, Statements: []Statement{{Query: "  "}}}, "Statements[0]: expected Query"},
	} {
		if tc.err == "" {
			assert.NoError(t, tc.job.Validate())
		} else {
			assert.EqualError(t, tc.job.Validate(), tc.err)
		}
	}
}

func TestJobSignatureIgnoresArgumentsAndTarget(t *testing.T) {
	var a = Job{Kind: JobExec, Target: Target{File: "/a"},
		Statements: []Statement{{Query: "INSERT INTO t VALUES (?)", Args: json.RawMessage(`[1]`)}}}
	var b = Job{Kind: JobExec, Target: Target{File: "/b"},
		Statements: []Statement{{Query: "INSERT INTO t VALUES (?)", Args: json.RawMessage(`[2]`)}}}
	assert.Equal(t, a.Signature(), b.Signature())

	// Kind participates.
	b.Kind = JobScalar
	assert.NotEqual(t, a.Signature(), b.Signature())

	// As do function names, and each statement of a transaction.
	var f1 = Job{Kind: JobFunc, Func: "one"}
	var f2 = Job{Kind: JobFunc, Func: "two"}
	assert.NotEqual(t, f1.Signature(), f2.Signature())

	var t1 = Job{Kind: JobTx, Statements: []Statement{{Query: "A"}, {Query: "B"}}}
	var t2 = Job{Kind: JobTx, Statements: []Statement{{Query: "A"}}}
	assert.NotEqual(t, t1.Signature(), t2.Signature())
}

func TestArgumentRoundTrip(t *testing.T) {
	var raw, err = EncodeArgs(5, "five", 5.5, nil, true, []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, `[5,"five",5.5,null,true,[1,2]]`, string(raw))

	args, err := DecodeArgs(raw)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(5), "five", 5.5, nil, true, []interface{}{int64(1), int64(2)}}, args)

	// Empty argument lists are elided.
	raw, err = EncodeArgs()
	assert.NoError(t, err)
	assert.Nil(t, raw)

	args, err = DecodeArgs(nil)
	assert.NoError(t, err)
	assert.Nil(t, args)

	// Unencodable arguments are reported to the sender.
	_, err = EncodeArgs(make(chan int))
	assert.EqualError(t, err, "encoding arguments: json: unsupported type: chan int")

	_, err = DecodeArgs(json.RawMessage(`{"not": "a list"}`))
	assert.Error(t, err)
}

func TestBytesAndTimeArgumentRoundTrip(t *testing.T) {
	var ts = time.Date(2024, 3, 5, 7, 9, 11, 123456789, time.UTC)

	var raw, err = EncodeArgs([]byte{0, 1, 2}, ts, []interface{}{[]byte("hi")},
		map[string]interface{}{"at": ts}, json.RawMessage(`{"raw":1}`))
	require.NoError(t, err)
	assert.Equal(t, `[{"$bytes":"AAEC"},{"$time":"2024-03-05T07:09:11.123456789Z"},`+
		`[{"$bytes":"aGk="}],{"at":{"$time":"2024-03-05T07:09:11.123456789Z"}},{"raw":1}]`, string(raw))

	args, err := DecodeArgs(raw)
	require.NoError(t, err)
	require.Len(t, args, 5)
	assert.Equal(t, []byte{0, 1, 2}, args[0])
	assert.True(t, ts.Equal(args[1].(time.Time)))
	assert.Equal(t, []interface{}{[]byte("hi")}, args[2])
	assert.True(t, ts.Equal(args[3].(map[string]interface{})["at"].(time.Time)))
	assert.Equal(t, map[string]interface{}{"raw": int64(1)}, args[4])

	// Objects which merely resemble tagged values are left alone.
	args, err = DecodeArgs(json.RawMessage(`[{"$bytes":"!!"},{"$bytes":"AAEC","other":1},{"$time":5}]`))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"$bytes": "!!"},
		map[string]interface{}{"$bytes": "AAEC", "other": int64(1)},
		map[string]interface{}{"$time": int64(5)},
	}, args)
}

func TestNormalizeValueOfLargeAndNestedNumbers(t *testing.T) {
	var out interface{}
	require.NoError(t, DecodeValue(json.RawMessage(`{"a":9007199254740993,"b":[1e400]}`), &out))

	var m = NormalizeValue(out).(map[string]interface{})
	assert.Equal(t, int64(9007199254740993), m["a"])
	assert.Equal(t, []interface{}{"1e400"}, m["b"]) // Overflows float64.
}
