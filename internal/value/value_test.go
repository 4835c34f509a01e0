package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Number(4.5)
	var _ Value = Bool(true)
	var _ Value = List{String("a"), Number(1)}
	var _ Value = Map{"key": String("value")}
}

func TestMapSortedKeys(t *testing.T) {
	m := Map{
		"zebra":  String("z"),
		"apple":  String("a"),
		"banana": String("b"),
	}
	assert.Equal(t, []string{"apple", "banana", "zebra"}, m.SortedKeys())
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		input Value
		want  bool
	}{
		{"nil", nil, true},
		{"null", Null{}, true},
		{"empty string", String(""), true},
		{"blank string", String("   "), true},
		{"not provided", String("未提及"), true},
		{"not provided padded", String(" 未提及 "), true},
		{"text", String("硕士"), false},
		{"zero", Number(0), false},
		{"false", Bool(false), false},
		{"empty list", List{}, true},
		{"list", List{String("go")}, false},
		{"empty map", Map{}, true},
		{"map", Map{"k": String("v")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmpty(tt.input))
		})
	}
}

func TestMergeFrom_PreservesAbsentAndEmptyFields(t *testing.T) {
	existing := Map{
		"姓名": String("张三"),
		"电话": String("138-1234-5678"),
		"技能": List{String("Go")},
	}
	incoming := Map{
		"电话":   String("13812345678"),
		"教育背景": String("硕士"),
		"技能":   List{},
		"姓名":   String("未提及"),
	}

	existing.MergeFrom(incoming)

	assert.Equal(t, String("张三"), existing["姓名"])
	assert.Equal(t, String("13812345678"), existing["电话"])
	assert.Equal(t, String("硕士"), existing["教育背景"])
	assert.Equal(t, List{String("Go")}, existing["技能"])
}

func TestMergeFrom_ReplacesNestedMapWhole(t *testing.T) {
	existing := Map{"联系方式": Map{"电话": String("1"), "邮箱": String("a@b.c")}}
	incoming := Map{"联系方式": Map{"电话": String("2")}}

	existing.MergeFrom(incoming)

	assert.Equal(t, Map{"电话": String("2")}, existing["联系方式"])
}

func TestMergeFrom_CopiesValues(t *testing.T) {
	existing := Map{}
	nested := Map{"k": String("v")}
	existing.MergeFrom(Map{"n": nested})

	nested["k"] = String("changed")
	assert.Equal(t, Map{"k": String("v")}, existing["n"])
}

func TestUpdate_OverwritesWithEmpty(t *testing.T) {
	fields := Map{"role": String("lead"), "title": String("eng")}
	fields.Update(Map{"role": String("")})
	assert.Equal(t, String(""), fields["role"])
	assert.Equal(t, String("eng"), fields["title"])
}

func TestMapJSONRoundTrip(t *testing.T) {
	m := Map{
		"姓名":  String("张三"),
		"age": Number(30),
		"gpa": Number(3.75),
		"ok":  Bool(true),
		"nil": Null{},
		"tags": List{
			String("a"),
			Map{"x": Number(1)},
		},
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"age":30,"gpa":3.75,"nil":null,"ok":true,"tags":["a",{"x":1}],"姓名":"张三"}`, string(data))

	var decoded Map
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m, decoded)
}

func TestMapUnmarshal_RejectsNonObject(t *testing.T) {
	var m Map
	err := json.Unmarshal([]byte(`[1,2]`), &m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected object")
}

func TestMapUnmarshal_NullIsNil(t *testing.T) {
	var m Map
	require.NoError(t, json.Unmarshal([]byte(`null`), &m))
	assert.Nil(t, m)
}

func TestMarshal_NoHTMLEscaping(t *testing.T) {
	data, err := Marshal(String("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(data))
}

func TestMarshal_LargeIntegralNumber(t *testing.T) {
	data, err := Marshal(Number(13812345678))
	require.NoError(t, err)
	assert.Equal(t, "13812345678", string(data))
}

func TestFromAny(t *testing.T) {
	got, err := FromAny(map[string]any{
		"n":    7,
		"f":    1.5,
		"s":    "x",
		"list": []any{true, nil},
	})
	require.NoError(t, err)
	assert.Equal(t, Map{
		"n":    Number(7),
		"f":    Number(1.5),
		"s":    String("x"),
		"list": List{Bool(true), Null{}},
	}, got)
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestMapFromAny_RejectsScalar(t *testing.T) {
	_, err := MapFromAny("text")
	require.Error(t, err)
}

func TestAsMap(t *testing.T) {
	m := Map{"姓名": String("张三")}
	assert.Equal(t, m, AsMap(m))
	assert.Equal(t, m, AsMap(List{m}), "a one-row list unwraps")
	assert.Equal(t, Map{}, AsMap(nil))
	assert.Equal(t, Map{}, AsMap(Null{}))
	assert.Equal(t, Map{RawKey: String("张三，硕士")}, AsMap(String("张三，硕士")))

	rows := List{m, Map{"姓名": String("李四")}}
	assert.Equal(t, Map{RawKey: rows}, AsMap(rows), "several rows are kept whole")
}

func TestText(t *testing.T) {
	assert.Equal(t, "13812345678", Text(Number(13812345678)))
	assert.Equal(t, "2.5", Text(Number(2.5)))
	assert.Equal(t, "abc", Text(String("abc")))
	assert.Equal(t, "", Text(Null{}))
	assert.Equal(t, `["a"]`, Text(List{String("a")}))
}

func TestCanonical_IgnoresWhitespaceAndKeyOrder(t *testing.T) {
	a := []byte(`{
  "b": [1, 2.5, {"z": true, "a": null}],
  "a": "x"
}`)
	b := []byte(`{"a":"x","b":[1,2.5,{"a":null,"z":true}]}`)

	ca, err := Canonical(a)
	require.NoError(t, err)
	cb, err := Canonical(b)
	require.NoError(t, err)

	assert.Equal(t, string(cb), string(ca))
	assert.Equal(t, `{"a":"x","b":[1,2.5,{"a":null,"z":true}]}`, string(ca))
}

func TestCanonical_NFCNormalizes(t *testing.T) {
	// e followed by a combining acute accent.
	decomposed := []byte("{\"k\":\"e\u0301\"}")
	got, err := Canonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, "{\"k\":\"\u00e9\"}", string(got))
}

func TestCanonical_InvalidJSON(t *testing.T) {
	_, err := Canonical([]byte(`{"a":`))
	require.Error(t, err)
}
