package domain

// ParseMethod records which parser path produced a title parse.
type ParseMethod string

const (
	ParseMethodModel    ParseMethod = "model"
	ParseMethodFallback ParseMethod = "fallback"
)

// ParsedTitle is a structured card locator extracted from a free-text title.
type ParsedTitle struct {
	SetCode    string
	Number     string
	VariantKey string
	Language   string
	Edition    string // "1st" or "" when unknown
	Foil       string // "Holo" | "Reverse" | "NonHolo" | ""
	Grade      string
	Confidence float64 // 0..1
	Method     ParseMethod
	Fallback   bool // produced by the deterministic fallback; lower quality
}

// TitleParse is a cached title parse.
// Corresponds to title_parse_cache table in PostgreSQL.
// UNIQUE (schema_version, title_hash).
type TitleParse struct {
	SchemaVersion int
	TitleHash     string // sha1 of the normalized title
	TitleRaw      string
	TitleNorm     string
	SetCode       string
	Number        string
	VariantKey    string
	Language      string
	Confidence    float64
	CardSlug      string
	Method        ParseMethod
	Hits          int64
	CreatedAt     int64
	UpdatedAt     int64
}
