package xmlrpc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// DecodeResponse decodes a methodResponse body. A <fault> envelope is
// returned as a *Fault error.
func DecodeResponse(body []byte) (Value, error) {
	root, err := parseRoot(body, "methodResponse")
	if err != nil {
		return Value{}, err
	}

	// whichever of fault/params comes first decides the envelope
	for _, child := range root.ChildElements() {
		switch child.Tag {
		case "fault":
			return Value{}, decodeFault(child)
		case "params":
			param := child.SelectElement("param")
			if param == nil {
				return Value{}, newDecodeError("params", "missing <param>", nil)
			}
			value := param.SelectElement("value")
			if value == nil {
				return Value{}, newDecodeError("params/param", "missing <value>", nil)
			}
			return decodeValue(value, "params/param/value")
		}
	}
	return Value{}, newDecodeError("methodResponse", "neither <params> nor <fault> present", nil)
}

// DecodeValue decodes a standalone <value> fragment
func DecodeValue(fragment []byte) (Value, error) {
	root, err := parseRoot(fragment, "value")
	if err != nil {
		return Value{}, err
	}
	return decodeValue(root, "value")
}

// DecodeCall decodes a methodCall envelope into its method name and params
func DecodeCall(body []byte) (string, []Value, error) {
	root, err := parseRoot(body, "methodCall")
	if err != nil {
		return "", nil, err
	}
	nameElem := root.SelectElement("methodName")
	if nameElem == nil {
		return "", nil, newDecodeError("methodCall", "missing <methodName>", nil)
	}
	method := strings.TrimSpace(nameElem.Text())

	params := make([]Value, 0)
	paramsElem := root.SelectElement("params")
	if paramsElem == nil {
		return method, params, nil
	}
	for i, param := range paramsElem.SelectElements("param") {
		path := fmt.Sprintf("methodCall/params/param[%d]", i+1)
		value := param.SelectElement("value")
		if value == nil {
			return "", nil, newDecodeError(path, "missing <value>", nil)
		}
		v, err := decodeValue(value, path+"/value")
		if err != nil {
			return "", nil, err
		}
		params = append(params, v)
	}
	return method, params, nil
}

func parseRoot(data []byte, want string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, malformed(data, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, newDecodeError("", "empty document", nil)
	}
	if root.Tag != want {
		return nil, newDecodeError(root.Tag, fmt.Sprintf("expected <%s> root element", want), nil)
	}
	return root, nil
}

// malformed locates a parse failure. etree reports unterminated or
// mismatched elements without a position, so the input is re-scanned token by
// token to find the element at fault.
func malformed(data []byte, cause error) *DecodeError {
	de := &DecodeError{Message: "malformed XML", Offset: len(data), Cause: cause}

	var syntaxErr *xml.SyntaxError
	if errors.As(cause, &syntaxErr) {
		de.Line = syntaxErr.Line
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	var open []string
	for {
		tok, err := dec.RawToken()
		if err != nil {
			if de.Line == 0 {
				de.Line, _ = dec.InputPos()
			}
			de.Offset = int(dec.InputOffset())
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			open = append(open, t.Name.Local)
		case xml.EndElement:
			if len(open) == 0 || open[len(open)-1] != t.Name.Local {
				de.Line, _ = dec.InputPos()
				de.Offset = int(dec.InputOffset())
				de.Path = strings.Join(open, "/")
				return de
			}
			open = open[:len(open)-1]
		}
	}
	de.Path = strings.Join(open, "/")
	return de
}

func decodeFault(fault *etree.Element) error {
	f := &Fault{Message: "unknown XML-RPC fault"}

	value := fault.SelectElement("value")
	if value == nil {
		return f
	}
	v, err := decodeValue(value, "fault/value")
	if err != nil {
		return err
	}
	st, ok := v.AsStruct()
	if !ok {
		return f
	}
	if msg, ok := st.Get("faultString"); ok {
		if s, ok := msg.AsString(); ok && s != "" {
			f.Message = s
		}
	}
	if code, ok := st.Get("faultCode"); ok {
		if i, ok := code.AsInt(); ok {
			f.Code = int(i)
			f.HasCode = true
		}
	}
	return f
}

func decodeValue(elem *etree.Element, path string) (Value, error) {
	children := elem.ChildElements()
	switch len(children) {
	case 0:
		// untyped content defaults to string
		return String(elem.Text()), nil
	case 1:
	default:
		return Value{}, newDecodeError(path, fmt.Sprintf("expected one type element, found %d", len(children)), nil)
	}

	typed := children[0]
	typedPath := path + "/" + typed.Tag
	text := typed.Text()

	switch typed.Tag {
	case "int", "i4", "i8":
		i, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return Value{}, newDecodeError(typedPath, "invalid integer", err)
		}
		return Int(i), nil

	case "double":
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return Value{}, newDecodeError(typedPath, "invalid double", err)
		}
		return Double(f), nil

	case "boolean":
		return Bool(strings.TrimSpace(text) == "1"), nil

	case "string", "dateTime.iso8601", "base64":
		return String(text), nil

	case "nil":
		return Nil(), nil

	case "array":
		data := typed.SelectElement("data")
		if data == nil {
			return Value{}, newDecodeError(typedPath, "missing <data>", nil)
		}
		items := data.SelectElements("value")
		out := make([]Value, 0, len(items))
		for i, item := range items {
			v, err := decodeValue(item, fmt.Sprintf("%s/data/value[%d]", typedPath, i+1))
			if err != nil {
				return Value{}, err
			}
			out = append(out, v)
		}
		return Array(out...), nil

	case "struct":
		members := typed.SelectElements("member")
		st := make(Struct, 0, len(members))
		for i, member := range members {
			memberPath := fmt.Sprintf("%s/member[%d]", typedPath, i+1)
			name := member.SelectElement("name")
			if name == nil {
				return Value{}, newDecodeError(memberPath, "missing <name>", nil)
			}
			value := member.SelectElement("value")
			if value == nil {
				return Value{}, newDecodeError(memberPath, "missing <value>", nil)
			}
			v, err := decodeValue(value, memberPath+"/value")
			if err != nil {
				return Value{}, err
			}
			st = append(st, Member{Name: name.Text(), Value: v})
		}
		return StructValue(st), nil
	}

	return Value{}, newDecodeError(typedPath, "unsupported type", nil)
}
