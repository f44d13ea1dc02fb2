package xmlrpc

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Only &, < and > are escaped; quotes are legal in element content.
var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// xmlText prepares s for element content. Runes XML 1.0 cannot carry
// (control characters other than tab, newline and carriage return) and
// invalid UTF-8 bytes become U+FFFD. A carriage return is written as is and
// reads back as a newline, since XML parsers normalise line endings.
func xmlText(s string) string {
	if utf8.ValidString(s) && strings.IndexFunc(s, isForbiddenXMLRune) < 0 {
		return textEscaper.Replace(s)
	}
	return textEscaper.Replace(strings.Map(func(r rune) rune {
		if isForbiddenXMLRune(r) {
			return utf8.RuneError
		}
		return r
	}, s))
}

func isForbiddenXMLRune(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r >= 0x20 && r <= 0xD7FF:
		return false
	case r >= 0xE000 && r <= 0xFFFD:
		return false
	case r >= 0x10000 && r <= utf8.MaxRune:
		return false
	}
	return true
}

// Encode renders v as a <value> fragment
func Encode(v Value) string {
	var sb strings.Builder
	encodeValue(&sb, v)
	return sb.String()
}

// EncodeCall renders a complete methodCall envelope
func EncodeCall(method string, params ...Value) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?>`)
	sb.WriteString("<methodCall><methodName>")
	sb.WriteString(xmlText(method))
	sb.WriteString("</methodName><params>")
	for _, p := range params {
		sb.WriteString("<param>")
		encodeValue(&sb, p)
		sb.WriteString("</param>")
	}
	sb.WriteString("</params></methodCall>")
	return sb.String()
}

// EncodeResponse renders a successful methodResponse envelope
func EncodeResponse(result Value) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?>`)
	sb.WriteString("<methodResponse><params><param>")
	encodeValue(&sb, result)
	sb.WriteString("</param></params></methodResponse>")
	return sb.String()
}

// EncodeFault renders a fault methodResponse envelope
func EncodeFault(code int, message string) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?>`)
	sb.WriteString("<methodResponse><fault>")
	encodeValue(&sb, StructValue(Struct{
		{Name: "faultCode", Value: Int(int64(code))},
		{Name: "faultString", Value: String(message)},
	}))
	sb.WriteString("</fault></methodResponse>")
	return sb.String()
}

func encodeValue(sb *strings.Builder, v Value) {
	sb.WriteString("<value>")
	switch v.kind {
	case KindNil:
		// no nil on the wire
		sb.WriteString("<boolean>0</boolean>")
	case KindBool:
		if v.b {
			sb.WriteString("<boolean>1</boolean>")
		} else {
			sb.WriteString("<boolean>0</boolean>")
		}
	case KindInt:
		sb.WriteString("<int>")
		sb.WriteString(strconv.FormatInt(v.i, 10))
		sb.WriteString("</int>")
	case KindDouble:
		sb.WriteString("<double>")
		sb.WriteString(formatDouble(v.f))
		sb.WriteString("</double>")
	case KindString:
		sb.WriteString("<string>")
		sb.WriteString(xmlText(v.s))
		sb.WriteString("</string>")
	case KindArray:
		sb.WriteString("<array><data>")
		for _, e := range v.arr {
			encodeValue(sb, e)
		}
		sb.WriteString("</data></array>")
	case KindStruct:
		sb.WriteString("<struct>")
		for _, m := range v.st {
			sb.WriteString("<member><name>")
			sb.WriteString(xmlText(m.Name))
			sb.WriteString("</name>")
			encodeValue(sb, m.Value)
			sb.WriteString("</member>")
		}
		sb.WriteString("</struct>")
	}
	sb.WriteString("</value>")
}

func formatDouble(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
