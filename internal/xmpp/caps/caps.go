// Package caps implements XEP-0115 entity capabilities: the verification
// string computed over a disco#info result, the parsed capability record,
// and the cache that lets known peers be recognized without re-querying.
package caps

import (
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"

	"github.com/jwhitfield/parley/internal/logging"
	"github.com/jwhitfield/parley/internal/xmpp/form"
	"github.com/jwhitfield/parley/internal/xmpp/stanza"
)

// FormTypeSoftwareInfo is the data form schema carrying software metadata.
const FormTypeSoftwareInfo = "urn:xmpp:dataforms:softwareinfo"

// Hasher turns a canonical capability string into a fingerprint. The
// canonicalizer itself performs no hashing.
type Hasher func([]byte) string

// SHA1 is the hash mandated by XEP-0115: SHA-1, base64 encoded.
func SHA1(data []byte) string {
	sum := sha1.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// VerificationString serializes the children of a disco#info query element
// into the canonical byte string defined by XEP-0115. The result is
// deterministic regardless of child order in the source document.
func VerificationString(query *stanza.Element) string {
	var identities []string
	var features []string
	var formTypes []string
	forms := make(map[string]*form.Form)

	for _, child := range query.Children {
		switch {
		case child.Name.Local == "identity":
			var sb strings.Builder
			sb.WriteString(child.Attr("category"))
			sb.WriteString("/")
			sb.WriteString(child.Attr("type"))
			sb.WriteString("/")
			sb.WriteString(child.Lang())
			sb.WriteString("/")
			sb.WriteString(child.Attr("name"))
			sb.WriteString("<")
			identities = append(identities, sb.String())
		case child.Name.Local == "feature":
			if v := child.Attr("var"); v != "" {
				features = append(features, v)
			}
		case child.Name.Local == "x" && child.Name.Space == stanza.NSData:
			f, err := form.Parse(child)
			if err != nil {
				logging.Debug("caps: skipping unparseable data form in disco result")
				continue
			}
			formTypes = append(formTypes, f.FormType)
			forms[f.FormType] = f
		}
	}

	sort.Strings(identities)
	sort.Strings(features)
	sort.Strings(formTypes)

	var s strings.Builder
	for _, id := range identities {
		s.WriteString(id)
	}
	for _, f := range features {
		s.WriteString(f)
		s.WriteString("<")
	}
	for _, ft := range formTypes {
		f := forms[ft]
		s.WriteString(ft)
		s.WriteString("<")

		fields := make([]form.Field, len(f.Fields))
		copy(fields, f.Fields)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Var < fields[j].Var })
		for _, field := range fields {
			s.WriteString(field.Var)
			s.WriteString("<")
			values := make([]string, len(field.Values))
			copy(values, field.Values)
			sort.Strings(values)
			for _, v := range values {
				s.WriteString(v)
				s.WriteString("<")
			}
		}
	}

	return s.String()
}

// Record holds a peer's parsed capability set. Absent fields are empty
// strings; Features keeps document order and is not deduplicated.
type Record struct {
	Category        string
	Type            string
	Name            string
	Software        string
	SoftwareVersion string
	OS              string
	OSVersion       string
	Features        []string
}

// NewRecord parses a disco#info query result into a Record. Parsing never
// fails: missing or malformed pieces leave the matching fields empty.
func NewRecord(query *stanza.Element) Record {
	var rec Record

	// Only the first identity contributes; additional identities are legal
	// but their fields are not carried in the record.
	if identity := query.ChildByName("identity"); identity != nil {
		rec.Category = identity.Attr("category")
		rec.Type = identity.Attr("type")
		rec.Name = identity.Attr("name")
	}

	if x := query.ChildByNS(stanza.NSData); x != nil {
		if f, err := form.Parse(x); err == nil && f.FormType == FormTypeSoftwareInfo {
			rec.Software, _ = f.Value("software")
			rec.SoftwareVersion, _ = f.Value("software_version")
			rec.OS, _ = f.Value("os")
			rec.OSVersion, _ = f.Value("os_version")
		}
	}

	for _, child := range query.Children {
		if child.Name.Local == "feature" {
			if v := child.Attr("var"); v != "" {
				rec.Features = append(rec.Features, v)
			}
		}
	}

	return rec
}

// HasFeature reports whether the record advertises the given feature.
func (r Record) HasFeature(feature string) bool {
	for _, f := range r.Features {
		if f == feature {
			return true
		}
	}
	return false
}
