package metadata

type RelationKind string

const (
	BelongsTo  RelationKind = "belongs_to"
	HasOne     RelationKind = "has_one"
	HasMany    RelationKind = "has_many"
	ManyToMany RelationKind = "many_to_many"
)

// Relation describes how one entity links to another.
//
// For belongs_to, LocalKey is the FK column on the owning record (e.g.
// "author_id") and ForeignKey the referenced column on the target (usually
// its PK). For has_one/has_many the direction flips: LocalKey is the parent
// column (usually its PK) and ForeignKey the column on the target pointing
// back. many_to_many goes through a junction entity whose ThroughLocalKey
// references the parent and ThroughForeignKey references the target.
type Relation struct {
	Name              string       `json:"name"`
	Kind              RelationKind `json:"kind"`
	Target            string       `json:"target"`
	LocalKey          string       `json:"local_key"`
	ForeignKey        string       `json:"foreign_key"`
	Through           string       `json:"through,omitempty"`
	ThroughLocalKey   string       `json:"through_local_key,omitempty"`
	ThroughForeignKey string       `json:"through_foreign_key,omitempty"`
	Eager             bool         `json:"eager,omitempty"`
}

// ToMany reports whether the relation attaches a list rather than a single record.
func (r *Relation) ToMany() bool {
	return r.Kind == HasMany || r.Kind == ManyToMany
}
