package endpoints

// Registry views used by the package and user endpoints. They live in
// the CouchDB design document the public registry has served since the
// beginning, so the names are part of the wire protocol.
const (
	viewDependedUpon      = "dependedUpon"
	viewBrowseStarPackage = "browseStarPackage"
	viewByKeyword         = "byKeyword"
	viewBrowseAuthors     = "browseAuthors"
	viewBrowseStarUser    = "browseStarUser"
)

// viewResponse is the row envelope every view query returns.
type viewResponse struct {
	Rows []viewRow `json:"rows"`
}

// viewRow is one result row. Depending on the view and its reduce
// settings the interesting name arrives in the value, the id, or the
// tail of a compound key, so extraction has to try all of them.
type viewRow struct {
	ID    string `json:"id"`
	Key   any    `json:"key"`
	Value any    `json:"value"`
}

// name extracts the package or account name a row refers to, or ""
// when the row carries nothing usable.
func (r viewRow) name() string {
	switch value := r.Value.(type) {
	case string:
		if value != "" {
			return value
		}
	case map[string]any:
		if s, ok := value["name"].(string); ok && s != "" {
			return s
		}
	}

	if r.ID != "" {
		return r.ID
	}

	switch key := r.Key.(type) {
	case []any:
		if len(key) > 0 {
			if s, ok := key[len(key)-1].(string); ok {
				return s
			}
		}
	case string:
		return key
	}
	return ""
}

// names flattens rows into a deduplicated name list, preserving row
// order. Views emit one row per version, so duplicates are the norm.
func names(rows []viewRow) []string {
	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		name := row.name()
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
