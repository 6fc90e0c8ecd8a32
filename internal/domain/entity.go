package domain

// EntityType is the canonical entity taxonomy.
type EntityType string

const (
	EntityPerson       EntityType = "PERSON"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityLocation     EntityType = "LOCATION"
	EntityConcept      EntityType = "CONCEPT"
)

// Entity is a canonical named entity. Names are unique case-insensitively.
type Entity struct {
	ID        int64
	Name      string
	Type      EntityType
	IsIgnored bool
}
