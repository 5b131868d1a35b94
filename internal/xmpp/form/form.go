// Package form implements parsing of XEP-0004 data forms as they appear
// inside disco#info results and other stanza payloads.
package form

import (
	"errors"

	"github.com/jwhitfield/parley/internal/xmpp/stanza"
)

// FieldFormType is the distinguished field naming the form's schema.
const FieldFormType = "FORM_TYPE"

// Field is one typed field of a data form: an identifier and an ordered
// list of string values.
type Field struct {
	Var    string
	Type   string
	Values []string
}

// Form is a parsed data form. Fields holds every field except FORM_TYPE,
// in document order; the FORM_TYPE value is carried separately.
type Form struct {
	Type     string
	FormType string
	Fields   []Field
}

var errNotForm = errors.New("element is not a data form")

// Parse builds a Form from an x element in the jabber:x:data namespace.
func Parse(el *stanza.Element) (*Form, error) {
	if el == nil || el.Name.Local != "x" || el.Name.Space != stanza.NSData {
		return nil, errNotForm
	}

	f := &Form{Type: el.Attr("type")}
	for _, child := range el.Children {
		if child.Name.Local != "field" {
			continue
		}
		field := Field{
			Var:  child.Attr("var"),
			Type: child.Attr("type"),
		}
		for _, v := range child.Children {
			if v.Name.Local == "value" {
				field.Values = append(field.Values, v.Text)
			}
		}
		if field.Var == FieldFormType {
			if len(field.Values) > 0 {
				f.FormType = field.Values[0]
			}
			continue
		}
		f.Fields = append(f.Fields, field)
	}

	return f, nil
}

// Value returns the first value of the named field.
func (f *Form) Value(varName string) (string, bool) {
	for _, field := range f.Fields {
		if field.Var == varName && len(field.Values) > 0 {
			return field.Values[0], true
		}
	}
	return "", false
}
