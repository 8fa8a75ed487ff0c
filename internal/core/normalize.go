package core

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// fieldKind tells the defaulting pass what shape a document field must
// have.
type fieldKind int

const (
	stringField fieldKind = iota
	listField
	objectField
)

// docFields is the fixed set of fields every canonical document
// carries, with the shape each one defaults to. Keywords are handled
// separately because string values get split rather than discarded.
var docFields = []struct {
	name string
	kind fieldKind
}{
	{"bundledDependencies", listField},
	{"dependencies", objectField},
	{"description", stringField},
	{"devDependencies", objectField},
	{"engines", objectField},
	{"maintainers", listField},
	{"optionalDependencies", objectField},
	{"peerDependencies", objectField},
	{"readme", stringField},
	{"readmeFilename", stringField},
	{"scripts", objectField},
	{"time", objectField},
	{"version", stringField},
	{"versions", objectField},
}

// NormalizeDoc reshapes a raw registry package document into its
// canonical form. It accepts any JSON-shaped value, never fails, and is
// idempotent: normalizing a canonical document returns an equal
// document. The input is not mutated.
func NormalizeDoc(raw any) map[string]any {
	src, ok := raw.(map[string]any)
	if !ok {
		src = nil
	}
	doc := make(map[string]any, len(src)+8)
	for k, v := range src {
		doc[k] = v
	}

	// The scalar time shape predates the per-version time map and only
	// survives the defaulting pass here.
	scalarTime, _ := doc["time"].(string)

	// Release identifiers come from the versions map, or the time map
	// when the document predates versions. Time entries whose values
	// don't parse never make it into the canonical document, so they
	// don't get to vouch for a release either.
	versions, _ := doc["versions"].(map[string]any)
	ids := mapKeys(versions)
	if len(ids) == 0 {
		if times, ok := doc["time"].(map[string]any); ok {
			for key, value := range times {
				if _, ok := toTime(value); ok {
					ids = append(ids, key)
				}
			}
		}
	}
	releases := SortReleases(ids)
	doc["releases"] = releases

	tags := stringMapOf(doc["dist-tags"])
	if tags["latest"] == "" && len(releases) > 0 {
		tags["latest"] = releases[0]
	}
	doc["dist-tags"] = tags

	latest, _ := versions[tags["latest"]].(map[string]any)
	if latest == nil {
		latest = map[string]any{}
	}
	doc["latest"] = latest

	for _, field := range docFields {
		doc[field.name] = conform(resolveField(doc, latest, field.name), field.kind)
	}

	if name := firstNonEmptyString(doc["name"], doc["_id"], latest["name"], latest["_id"]); name != "" {
		doc["name"] = name
		doc["_id"] = name
	}

	switch keywords := resolveField(doc, latest, "keywords").(type) {
	case string:
		doc["keywords"] = splitKeywords(keywords)
	case []any:
		doc["keywords"] = keywords
	case nil:
		doc["keywords"] = []any{}
	default:
		// Present but not splittable and not a sequence: drop it rather
		// than pretend the package declared anything.
		delete(doc, "keywords")
	}

	times, _ := doc["time"].(map[string]any)
	modified, ok := firstTime(doc["modified"], doc["mtime"], scalarTime, times["modified"])
	if !ok {
		modified = Epoch
	}
	doc["modified"] = modified

	created, ok := firstTime(doc["created"], doc["ctime"], scalarTime, times["created"])
	if !ok {
		created = Epoch
	}
	doc["created"] = created

	converted := make(map[string]any, len(times))
	for key, value := range times {
		if t, ok := toTime(value); ok {
			converted[key] = t
		}
	}
	doc["time"] = converted

	users, ok := doc["users"].(map[string]any)
	if !ok {
		users, _ = latest["users"].(map[string]any)
	}
	starred := mapKeys(users)
	sort.Strings(starred)
	doc["starred"] = starred

	delete(doc, "_attachments")
	if s, ok := doc["readme"].(string); ok && s == "" {
		delete(doc, "readme")
	}
	if s, ok := doc["readmeFilename"].(string); ok && s == "" {
		delete(doc, "readmeFilename")
	}

	return doc
}

// packageDocFields are the canonical keys PackageFromDoc lifts into
// typed slots; everything else lands in Metadata.
var packageDocFields = map[string]struct{}{
	"_id": {}, "bundledDependencies": {}, "created": {}, "ctime": {},
	"dependencies": {}, "description": {}, "devDependencies": {},
	"dist-tags": {}, "engines": {}, "keywords": {}, "latest": {},
	"maintainers": {}, "modified": {}, "mtime": {}, "name": {},
	"optionalDependencies": {}, "peerDependencies": {}, "releases": {},
	"scripts": {}, "starred": {}, "time": {}, "users": {}, "version": {},
	"versions": {},
}

// PackageFromDoc lifts a canonical document into the typed record. The
// document must already be normalized.
func PackageFromDoc(doc map[string]any) *Package {
	pkg := &Package{
		Name:                 stringOf(doc["name"]),
		Description:          stringOf(doc["description"]),
		Versions:             versionsOf(doc["versions"]),
		DistTags:             stringMapOf(doc["dist-tags"]),
		Time:                 timesOf(doc["time"]),
		Keywords:             stringsOf(doc["keywords"]),
		Maintainers:          maintainersOf(doc["maintainers"]),
		Dependencies:         stringMapOf(doc["dependencies"]),
		DevDependencies:      stringMapOf(doc["devDependencies"]),
		PeerDependencies:     stringMapOf(doc["peerDependencies"]),
		OptionalDependencies: stringMapOf(doc["optionalDependencies"]),
		BundledDependencies:  stringsOf(doc["bundledDependencies"]),
		Engines:              stringMapOf(doc["engines"]),
		Scripts:              stringMapOf(doc["scripts"]),
		Metadata:             map[string]any{},
	}

	if releases, ok := doc["releases"].([]string); ok {
		pkg.Releases = append(make([]string, 0, len(releases)), releases...)
	} else {
		pkg.Releases = []string{}
	}
	if latest, ok := doc["latest"].(map[string]any); ok {
		pkg.Latest = latest
	} else {
		pkg.Latest = map[string]any{}
	}
	if created, ok := doc["created"].(time.Time); ok {
		pkg.Created = created
	} else {
		pkg.Created = Epoch
	}
	if modified, ok := doc["modified"].(time.Time); ok {
		pkg.Modified = modified
	} else {
		pkg.Modified = Epoch
	}
	if starred, ok := doc["starred"].([]string); ok {
		pkg.Starred = append(make([]string, 0, len(starred)), starred...)
	} else {
		pkg.Starred = []string{}
	}

	for key, value := range doc {
		if _, lifted := packageDocFields[key]; !lifted {
			pkg.Metadata[key] = value
		}
	}
	return pkg
}

// NormalizePackage runs the full pipeline, from raw response to typed
// record.
func NormalizePackage(raw any) *Package {
	return PackageFromDoc(NormalizeDoc(raw))
}

// resolveField returns the document's value for name, falling back to
// the latest version object when the document's own value is missing or
// empty.
func resolveField(doc, latest map[string]any, name string) any {
	if v, ok := doc[name]; ok && !emptyValue(v) {
		return v
	}
	if v, ok := latest[name]; ok && !emptyValue(v) {
		return v
	}
	return nil
}

// conform forces v into the given shape, substituting a fresh empty
// value on any mismatch.
func conform(v any, kind fieldKind) any {
	switch kind {
	case stringField:
		if s, ok := v.(string); ok {
			return s
		}
		return ""
	case listField:
		if list, ok := v.([]any); ok {
			return list
		}
		return []any{}
	default:
		if m, ok := v.(map[string]any); ok {
			return m
		}
		return map[string]any{}
	}
}

// emptyValue mirrors the loose presence check documents were written
// against: nil, empty strings, zero numbers, and false all count as
// absent, while empty containers do not.
func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	}
	return false
}

func firstNonEmptyString(values ...any) string {
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// splitKeywords breaks a legacy keyword string on runs of whitespace
// and commas.
func splitKeywords(s string) []any {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	keywords := make([]any, 0, len(parts))
	for _, part := range parts {
		keywords = append(keywords, part)
	}
	return keywords
}

// toTime accepts the date shapes found in registry documents: already
// parsed times and the ISO string forms CouchDB serves.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05 -0700", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func firstTime(values ...any) (time.Time, bool) {
	for _, v := range values {
		if t, ok := toTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

// stringMapOf flattens a JSON object into its string-valued entries.
// Both raw (map[string]any) and already normalized (map[string]string)
// shapes are accepted.
func stringMapOf(v any) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		out := make(map[string]string, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out
	case map[string]any:
		out := make(map[string]string, len(m))
		for k, item := range m {
			if s, ok := item.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return map[string]string{}
}

func stringsOf(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func versionsOf(v any) map[string]map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]map[string]any{}
	}
	out := make(map[string]map[string]any, len(m))
	for id, item := range m {
		if version, ok := item.(map[string]any); ok {
			out[id] = version
		}
	}
	return out
}

func timesOf(v any) map[string]time.Time {
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]time.Time{}
	}
	out := make(map[string]time.Time, len(m))
	for k, item := range m {
		if t, ok := toTime(item); ok {
			out[k] = t
		}
	}
	return out
}

func maintainersOf(v any) []Maintainer {
	list, ok := v.([]any)
	if !ok {
		return []Maintainer{}
	}
	out := make([]Maintainer, 0, len(list))
	for _, item := range list {
		switch m := item.(type) {
		case map[string]any:
			maintainer := Maintainer{
				Name:  stringOf(m["name"]),
				Email: stringOf(m["email"]),
			}
			if maintainer.Name != "" {
				out = append(out, maintainer)
			}
		case string:
			if m != "" {
				out = append(out, Maintainer{Name: m})
			}
		}
	}
	return out
}
