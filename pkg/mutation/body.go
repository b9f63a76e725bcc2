package mutation

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/bitechdev/ModelSpec/pkg/apierror"
)

const (
	FormatJSON = "json"
	FormatXML  = "xml"
	FormatYAML = "yaml"
)

// NormalizeFormat maps a format name or content type onto json, xml or yaml.
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	switch {
	case strings.Contains(f, "xml"):
		return FormatXML
	case strings.Contains(f, "yaml"), strings.Contains(f, "yml"):
		return FormatYAML
	}
	return FormatJSON
}

// DecodeBody parses a request body into the single object it carries.
// JSON bodies are the object itself; other formats are unwrapped by
// ObjectFromBody. A list, a scalar or an empty body is a bad payload.
func DecodeBody(data []byte, format, root string) (map[string]interface{}, error) {
	format = NormalizeFormat(format)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty body", apierror.ErrBadPayload)
	}

	var body map[string]interface{}
	switch format {
	case FormatJSON:
		if !gjson.ValidBytes(data) {
			return nil, fmt.Errorf("%w: malformed json", apierror.ErrBadPayload)
		}
		if !gjson.ParseBytes(data).IsObject() {
			return nil, fmt.Errorf("%w: json body is not an object", apierror.ErrBadPayload)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: %v", apierror.ErrBadPayload, err)
		}
		if len(body) == 0 {
			return nil, fmt.Errorf("%w: empty object", apierror.ErrBadPayload)
		}
		return body, nil
	case FormatYAML:
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", apierror.ErrBadPayload, err)
		}
		m, ok := doc.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: yaml body is not a mapping", apierror.ErrBadPayload)
		}
		body = m
	case FormatXML:
		m, err := decodeXML(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apierror.ErrBadPayload, err)
		}
		body = m
	}
	return ObjectFromBody(root, body)
}

// ObjectFromBody unwraps a non-JSON body: the root element, else a generic
// "obj" wrapper, else the sole top-level value.
func ObjectFromBody(root string, body map[string]interface{}) (map[string]interface{}, error) {
	if obj, ok := asObject(body[root]); ok && root != "" {
		return obj, nil
	}
	if obj, ok := asObject(body["obj"]); ok {
		return obj, nil
	}
	if len(body) == 1 {
		for _, v := range body {
			if obj, ok := asObject(v); ok {
				return obj, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no %q element found", apierror.ErrBadPayload, root)
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, false
	}
	return m, true
}

// decodeXML turns a document into nested maps. Leaf elements become their
// text, repeated elements become lists, and the document element becomes the
// single top-level key.
func decodeXML(data []byte) (map[string]interface{}, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("xml document has no root element")
			}
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			v, err := decodeXMLElement(dec)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{start.Name.Local: v}, nil
		}
	}
}

func decodeXMLElement(dec *xml.Decoder) (interface{}, error) {
	children := make(map[string]interface{})
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			v, err := decodeXMLElement(dec)
			if err != nil {
				return nil, err
			}
			name := t.Name.Local
			switch existing := children[name].(type) {
			case nil:
				children[name] = v
			case []interface{}:
				children[name] = append(existing, v)
			default:
				children[name] = []interface{}{existing, v}
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(children) > 0 {
				return children, nil
			}
			return strings.TrimSpace(text.String()), nil
		}
	}
}
