package xmlrpc_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/erp-invoicer/internal/xmlrpc"
)

func roundTrip(t *testing.T, v xmlrpc.Value) xmlrpc.Value {
	t.Helper()
	got, err := xmlrpc.DecodeResponse([]byte(xmlrpc.EncodeResponse(v)))
	require.NoError(t, err)
	return got
}

func TestRoundTrip(t *testing.T) {
	deep := xmlrpc.StructValue(xmlrpc.Struct{
		{Name: "level1", Value: xmlrpc.StructValue(xmlrpc.Struct{
			{Name: "level2", Value: xmlrpc.StructValue(xmlrpc.Struct{
				{Name: "level3", Value: xmlrpc.String("bottom")},
				{Name: "n", Value: xmlrpc.Int(3)},
			})},
		})},
	})

	tests := []struct {
		name  string
		value xmlrpc.Value
	}{
		{"positive int", xmlrpc.Int(42)},
		{"negative int", xmlrpc.Int(-17)},
		{"zero", xmlrpc.Int(0)},
		{"fractional double", xmlrpc.Double(3.25)},
		{"negative double", xmlrpc.Double(-0.87)},
		{"true", xmlrpc.Bool(true)},
		{"false", xmlrpc.Bool(false)},
		{"plain string", xmlrpc.String("hello")},
		{"escaped string", xmlrpc.String(`a & b < c > d "q" 'x'`)},
		{"numeric looking string", xmlrpc.String("12345")},
		{"empty string", xmlrpc.String("")},
		{"empty array", xmlrpc.Array()},
		{"empty struct", xmlrpc.StructValue(nil)},
		{"array of structs", xmlrpc.Array(
			xmlrpc.StructValue(xmlrpc.Struct{{Name: "id", Value: xmlrpc.Int(1)}}),
			xmlrpc.StructValue(xmlrpc.Struct{{Name: "id", Value: xmlrpc.Int(2)}, {Name: "name", Value: xmlrpc.String("two")}}),
		)},
		{"struct containing arrays", xmlrpc.StructValue(xmlrpc.Struct{
			{Name: "ids", Value: xmlrpc.Array(xmlrpc.Int(1), xmlrpc.Int(2))},
			{Name: "empty", Value: xmlrpc.Array()},
		})},
		{"struct nested three deep", deep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.value, roundTrip(t, tt.value))
		})
	}
}

func TestRoundTrip_StructOrderPreserved(t *testing.T) {
	v := xmlrpc.StructValue(xmlrpc.Struct{
		{Name: "zeta", Value: xmlrpc.Int(1)},
		{Name: "alpha", Value: xmlrpc.Int(2)},
		{Name: "mid", Value: xmlrpc.Int(3)},
	})

	got := roundTrip(t, v)
	st, ok := got.AsStruct()
	require.True(t, ok)
	require.Len(t, st, 3)
	assert.Equal(t, "zeta", st[0].Name)
	assert.Equal(t, "alpha", st[1].Name)
	assert.Equal(t, "mid", st[2].Name)
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		value    xmlrpc.Value
		expected string
	}{
		{"nil sentinel", xmlrpc.Nil(), "<value><boolean>0</boolean></value>"},
		{"true", xmlrpc.Bool(true), "<value><boolean>1</boolean></value>"},
		{"int", xmlrpc.Int(-5), "<value><int>-5</int></value>"},
		{"double without exponent", xmlrpc.Double(0.0000015), "<value><double>0.0000015</double></value>"},
		{"large double without exponent", xmlrpc.Double(1.5e21), "<value><double>1500000000000000000000</double></value>"},
		{"only three characters escaped", xmlrpc.String(`<a href="x">&'`), `<value><string>&lt;a href="x"&gt;&amp;'</string></value>`},
		{"empty array", xmlrpc.Array(), "<value><array><data></data></array></value>"},
		{"struct in insertion order", xmlrpc.StructValue(xmlrpc.Struct{
			{Name: "b", Value: xmlrpc.Int(1)},
			{Name: "a", Value: xmlrpc.String("x")},
		}), "<value><struct><member><name>b</name><value><int>1</int></value></member><member><name>a</name><value><string>x</string></value></member></struct></value>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, xmlrpc.Encode(tt.value))
		})
	}
}

func TestEncodeCall(t *testing.T) {
	body := xmlrpc.EncodeCall("execute_kw", xmlrpc.String("db"), xmlrpc.Int(2))
	assert.Equal(t,
		`<?xml version="1.0"?><methodCall><methodName>execute_kw</methodName><params>`+
			`<param><value><string>db</string></value></param>`+
			`<param><value><int>2</int></value></param>`+
			`</params></methodCall>`,
		body)

	method, params, err := xmlrpc.DecodeCall([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "execute_kw", method)
	assert.Equal(t, []xmlrpc.Value{xmlrpc.String("db"), xmlrpc.Int(2)}, params)
}

func TestNilDecodesAsFalse(t *testing.T) {
	got := roundTrip(t, xmlrpc.Nil())
	b, ok := got.AsBool()
	require.True(t, ok)
	assert.False(t, b)
}

func TestFromGo(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected xmlrpc.Value
	}{
		{"nil", nil, xmlrpc.Nil()},
		{"bool", true, xmlrpc.Bool(true)},
		{"int", 7, xmlrpc.Int(7)},
		{"integral float", 100.0, xmlrpc.Int(100)},
		{"fractional float", 86.96, xmlrpc.Double(86.96)},
		{"integral decimal", decimal.RequireFromString("15.00"), xmlrpc.Int(15)},
		{"fractional decimal", decimal.RequireFromString("7.50"), xmlrpc.Double(7.5)},
		{"string", "x", xmlrpc.String("x")},
		{"int64 slice", []int64{1, 2}, xmlrpc.Array(xmlrpc.Int(1), xmlrpc.Int(2))},
		{"string slice", []string{"name"}, xmlrpc.Array(xmlrpc.String("name"))},
		{"command triple", []any{6, 0, []any{}}, xmlrpc.Array(xmlrpc.Int(6), xmlrpc.Int(0), xmlrpc.Array())},
		{"map with sorted keys", map[string]any{"b": 1, "a": "x"}, xmlrpc.StructValue(xmlrpc.Struct{
			{Name: "a", Value: xmlrpc.String("x")},
			{Name: "b", Value: xmlrpc.Int(1)},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := xmlrpc.FromGo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := xmlrpc.FromGo(struct{}{})
	assert.Error(t, err)
}

func TestDecodeResponse_Fault(t *testing.T) {
	body := `<?xml version="1.0"?><methodResponse><fault><value><struct>` +
		`<member><name>faultString</name><value><string>Bad login</string></value></member>` +
		`</struct></value></fault></methodResponse>`

	_, err := xmlrpc.DecodeResponse([]byte(body))
	require.Error(t, err)

	var fault *xmlrpc.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "Bad login", fault.Message)
	assert.False(t, fault.HasCode)
}

func TestDecodeResponse_FaultWithCode(t *testing.T) {
	_, err := xmlrpc.DecodeResponse([]byte(xmlrpc.EncodeFault(3, "Access Denied")))

	var fault *xmlrpc.Fault
	require.True(t, errors.As(err, &fault))
	assert.True(t, fault.HasCode)
	assert.Equal(t, 3, fault.Code)
	assert.Equal(t, "Access Denied", fault.Message)
}

func TestDecodeResponse_FaultWithoutMessage(t *testing.T) {
	body := `<methodResponse><fault><value><struct>` +
		`<member><name>faultCode</name><value><int>1</int></value></member>` +
		`</struct></value></fault></methodResponse>`

	_, err := xmlrpc.DecodeResponse([]byte(body))

	var fault *xmlrpc.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "unknown XML-RPC fault", fault.Message)
}

func TestDecodeResponse_FirstEnvelopeWins(t *testing.T) {
	paramsFirst := `<methodResponse><params><param><value><int>1</int></value></param></params>` +
		`<fault><value><struct><member><name>faultString</name><value>late</value></member></struct></value></fault></methodResponse>`

	v, err := xmlrpc.DecodeResponse([]byte(paramsFirst))
	require.NoError(t, err)
	assert.Equal(t, xmlrpc.Int(1), v)

	faultFirst := `<methodResponse><fault><value><struct><member><name>faultString</name><value>early</value></member></struct></value></fault>` +
		`<params><param><value><int>1</int></value></param></params></methodResponse>`

	_, err = xmlrpc.DecodeResponse([]byte(faultFirst))
	var fault *xmlrpc.Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "early", fault.Message)
}

func TestDecodeResponse_NestedArrays(t *testing.T) {
	body := `<methodResponse><params><param><value><array><data>` +
		`<value><array><data>` +
		`<value><array><data><value><int>1</int></value><value><int>2</int></value></data></array></value>` +
		`<value><array><data></data></array></value>` +
		`</data></array></value>` +
		`<value><array><data><value><i4>3</i4></value></data></array></value>` +
		`<value><int>4</int></value>` +
		`</data></array></value></param></params></methodResponse>`

	v, err := xmlrpc.DecodeResponse([]byte(body))
	require.NoError(t, err)

	outer, ok := v.AsArray()
	require.True(t, ok)
	require.Len(t, outer, 3)

	first, ok := outer[0].AsArray()
	require.True(t, ok)
	require.Len(t, first, 2)

	innermost, ok := first[0].AsArray()
	require.True(t, ok)
	assert.Equal(t, []xmlrpc.Value{xmlrpc.Int(1), xmlrpc.Int(2)}, innermost)

	empty, ok := first[1].AsArray()
	require.True(t, ok)
	assert.Empty(t, empty)

	second, ok := outer[1].AsArray()
	require.True(t, ok)
	assert.Equal(t, []xmlrpc.Value{xmlrpc.Int(3)}, second)

	assert.Equal(t, xmlrpc.Int(4), outer[2])
}

func TestDecodeResponse_SearchReadShape(t *testing.T) {
	// search_read returns many2one fields as [id, display_name] and empty
	// fields as false
	body := `<?xml version='1.0'?>
<methodResponse>
<params>
<param>
<value><array><data>
<value><struct>
<member><name>id</name><value><int>77</int></value></member>
<member><name>name</name><value><string>INV/2026/00012</string></value></member>
<member><name>partner_id</name><value><array><data><value><int>9</int></value><value><string>Sara</string></value></data></array></value></member>
<member><name>amount_total</name><value><double>57.5</double></value></member>
<member><name>l10n_sa_qr_code_str</name><value><boolean>0</boolean></value></member>
</struct></value>
</data></array></value>
</param>
</params>
</methodResponse>`

	v, err := xmlrpc.DecodeResponse([]byte(body))
	require.NoError(t, err)

	rows, ok := v.AsArray()
	require.True(t, ok)
	require.Len(t, rows, 1)

	row, ok := rows[0].AsStruct()
	require.True(t, ok)
	assert.Equal(t, int64(77), row.GetInt("id"))
	assert.Equal(t, "INV/2026/00012", row.GetString("name"))
	assert.Equal(t, int64(9), row.GetInt("partner_id"))
	assert.Equal(t, 57.5, row.GetFloat("amount_total"))
	assert.Equal(t, "", row.GetString("l10n_sa_qr_code_str"))

	qr, ok := row.Get("l10n_sa_qr_code_str")
	require.True(t, ok)
	assert.False(t, qr.Truthy())
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		expected xmlrpc.Value
	}{
		{"implicit string", `<value>plain text</value>`, xmlrpc.String("plain text")},
		{"empty implicit string", `<value></value>`, xmlrpc.String("")},
		{"i4", `<value><i4>12</i4></value>`, xmlrpc.Int(12)},
		{"i8", `<value><i8>9007199254740993</i8></value>`, xmlrpc.Int(9007199254740993)},
		{"boolean true", `<value><boolean>1</boolean></value>`, xmlrpc.Bool(true)},
		{"boolean other", `<value><boolean>true</boolean></value>`, xmlrpc.Bool(false)},
		{"double", `<value><double>0.13</double></value>`, xmlrpc.Double(0.13)},
		{"entities unescaped", `<value><string>&lt;b&gt; &amp; c</string></value>`, xmlrpc.String("<b> & c")},
		{"nil extension", `<value><nil/></value>`, xmlrpc.Nil()},
		{"datetime kept as string", `<value><dateTime.iso8601>20261017T10:00:00</dateTime.iso8601></value>`, xmlrpc.String("20261017T10:00:00")},
		{"member without type", `<value><struct><member><name>k</name><value>v</value></member></struct></value>`,
			xmlrpc.StructValue(xmlrpc.Struct{{Name: "k", Value: xmlrpc.String("v")}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := xmlrpc.DecodeValue([]byte(tt.fragment))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
		path    string
	}{
		{
			name:    "unterminated tag",
			body:    `<methodResponse><params><param><value><int>1</int>`,
			message: "malformed XML",
		},
		{
			name:    "unsupported type",
			body:    `<methodResponse><params><param><value><bigdecimal>1</bigdecimal></value></param></params></methodResponse>`,
			message: "unsupported type",
			path:    "params/param/value/bigdecimal",
		},
		{
			name:    "bad integer inside array",
			body:    `<methodResponse><params><param><value><array><data><value><int>1</int></value><value><int>x</int></value></data></array></value></param></params></methodResponse>`,
			message: "invalid integer",
			path:    "params/param/value/array/data/value[2]/int",
		},
		{
			name:    "wrong root",
			body:    `<methodCall><methodName>x</methodName></methodCall>`,
			message: "expected <methodResponse> root element",
		},
		{
			name:    "no envelope",
			body:    `<methodResponse></methodResponse>`,
			message: "neither <params> nor <fault> present",
		},
		{
			name:    "member without name",
			body:    `<methodResponse><params><param><value><struct><member><value><int>1</int></value></member></struct></value></param></params></methodResponse>`,
			message: "missing <name>",
			path:    "params/param/value/struct/member[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := xmlrpc.DecodeResponse([]byte(tt.body))
			require.Error(t, err)

			var decodeErr *xmlrpc.DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %T", err)
			assert.Equal(t, tt.message, decodeErr.Message)
			if tt.path != "" {
				assert.Equal(t, tt.path, decodeErr.Path)
			}
		})
	}
}

func TestDecode_MalformedPosition(t *testing.T) {
	body := "<methodResponse>\n<params><param>\n<value><int>1</int>"

	_, err := xmlrpc.DecodeResponse([]byte(body))
	var decodeErr *xmlrpc.DecodeError
	require.ErrorAs(t, err, &decodeErr)

	assert.Equal(t, "malformed XML", decodeErr.Message)
	assert.Equal(t, "methodResponse/params/param/value", decodeErr.Path)
	assert.Equal(t, 3, decodeErr.Line)
	assert.Equal(t, len(body), decodeErr.Offset)
	assert.Contains(t, err.Error(), "at line 3")

	_, err = xmlrpc.DecodeValue([]byte("<value>\n<int>1</string></value>"))
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "value/int", decodeErr.Path)
	assert.Equal(t, 2, decodeErr.Line)
	assert.Equal(t, len("<value>\n<int>1</string>"), decodeErr.Offset)
}

func TestEncode_CharactersXMLCannotCarry(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		encoded  string
		readBack string
	}{
		{"bell", "a\x07b", "a\uFFFDb", "a\uFFFDb"},
		{"nul", "\x00name", "\uFFFDname", "\uFFFDname"},
		{"invalid utf-8", "caf\xe9", "caf\uFFFD", "caf\uFFFD"},
		{"tab and newline kept", "a\tb\nc", "a\tb\nc", "a\tb\nc"},
		{"carriage return normalised", "a\r\nb\rc", "a\r\nb\rc", "a\nb\nc"},
		{"arabic untouched", "سارة", "سارة", "سارة"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := xmlrpc.Encode(xmlrpc.String(tt.input))
			assert.Equal(t, "<value><string>"+tt.encoded+"</string></value>", encoded)

			got, err := xmlrpc.DecodeValue([]byte(encoded))
			require.NoError(t, err)
			assert.Equal(t, xmlrpc.String(tt.readBack), got)
		})
	}

	st := xmlrpc.Struct{{Name: "na\x01me", Value: xmlrpc.String("x")}}
	got, err := xmlrpc.DecodeValue([]byte(xmlrpc.Encode(xmlrpc.StructValue(st))))
	require.NoError(t, err)
	decoded, ok := got.AsStruct()
	require.True(t, ok)
	assert.True(t, decoded.Has("na\uFFFDme"))
}

func TestStruct_Set(t *testing.T) {
	var st xmlrpc.Struct
	st.Set("a", xmlrpc.Int(1))
	st.Set("b", xmlrpc.Int(2))
	st.Set("a", xmlrpc.Int(3))

	require.Len(t, st, 2)
	assert.Equal(t, "a", st[0].Name)
	assert.Equal(t, int64(3), st.GetInt("a"))
	assert.True(t, st.Has("b"))
	assert.False(t, st.Has("c"))
}

func TestValue_Truthy(t *testing.T) {
	assert.False(t, xmlrpc.Nil().Truthy())
	assert.False(t, xmlrpc.Bool(false).Truthy())
	assert.False(t, xmlrpc.Int(0).Truthy())
	assert.False(t, xmlrpc.String("").Truthy())
	assert.False(t, xmlrpc.Array().Truthy())
	assert.True(t, xmlrpc.Int(5).Truthy())
	assert.True(t, xmlrpc.String("x").Truthy())
}
