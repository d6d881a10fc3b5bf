package vectorstore

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Well-known payload keys. Free-form metadata may carry any other keys.
const (
	KeyTenantID   = "tenant_id"
	KeyContent    = "content"
	KeyNodeType   = "node_type"
	KeyDocID      = "doc_id"
	KeyResourceID = "resource_id"
	KeySeq        = "seq"
	KeyURL        = "url"
	KeyProjectID  = "project_id"
	KeyTitle      = "title"
)

// NodeType identifies the kind of entity a point belongs to.
type NodeType string

const (
	NodeTypeDocument NodeType = "document"
	NodeTypeResource NodeType = "resource"
)

// Valid reports whether the node type is one of the known kinds.
func (n NodeType) Valid() bool {
	return n == NodeTypeDocument || n == NodeTypeResource
}

// Entity identifies a document or resource within a tenant.
type Entity struct {
	Type NodeType
	ID   string
}

// IDField returns the payload key that carries this entity's identifier.
func (e Entity) IDField() string {
	if e.Type == NodeTypeResource {
		return KeyResourceID
	}
	return KeyDocID
}

// Point is one stored (id, vector, payload) record.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a search hit with its similarity score.
type ScoredPoint struct {
	Point
	Score float32
}

// Content returns the chunk text from the payload, or "".
func (p *Point) Content() string {
	s, _ := p.Payload[KeyContent].(string)
	return s
}

// TenantID returns the owning tenant from the payload, or "".
func (p *Point) TenantID() string {
	s, _ := p.Payload[KeyTenantID].(string)
	return s
}

// Seq returns the chunk ordinal from the payload, or -1 when absent.
// Payload round trips through the store and JSON may widen the type.
func (p *Point) Seq() int {
	switch v := p.Payload[KeySeq].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return -1
	}
}

// pointNamespace scopes deterministic point ids to this store.
var pointNamespace = uuid.MustParse("7d9f38c1-52ab-4f2e-9c11-0e6aafe1b2d4")

// DeterministicID derives a stable UUID from the given key parts.
// The same parts always produce the same id, which makes reindex and
// duplicate operations overwrite instead of accumulate.
func DeterministicID(parts ...string) string {
	return uuid.NewSHA1(pointNamespace, []byte(strings.Join(parts, "/"))).String()
}

// PointID derives the deterministic id for one of an entity's chunks. The
// tenant and node type are part of the key: all tenants share one collection
// and upsert is by id, so an id derived from the entity id alone would let
// one tenant's write overwrite another tenant's points.
func PointID(tenantID string, entity Entity, seq int) string {
	return DeterministicID(tenantID, string(entity.Type), entity.ID, strconv.Itoa(seq))
}
