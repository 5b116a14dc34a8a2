package domain

// Kind identifies one of the documented record collections.
type Kind string

const (
	KindPerpetrator Kind = "perpetrators"
	KindVictim      Kind = "victims"
	KindIncident    Kind = "incidents"
)

// FieldType represents the type of a field in a kind descriptor.
type FieldType string

const (
	FieldTypeString     FieldType = "string"
	FieldTypeInteger    FieldType = "integer"
	FieldTypeBoolean    FieldType = "boolean"
	FieldTypeTimestamp  FieldType = "timestamp"
	FieldTypeStringList FieldType = "string_list"
)

// FieldDefinition describes one legal field of a record kind. Identity and
// version-control attributes are not fields: a name that does not appear in
// the descriptor is rejected outright.
type FieldDefinition struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Mutable     bool      `json:"mutable"`
	Enum        []string  `json:"enum,omitempty"`
	Description string    `json:"description,omitempty"`
}

// KindDescriptor is the schema for one record kind: its field list plus the
// designated free-text search field and region field used by projections.
type KindDescriptor struct {
	Kind        Kind
	Fields      []FieldDefinition
	SearchField string
	RegionField string
}

// Field returns the definition for name.
func (d KindDescriptor) Field(name string) (FieldDefinition, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// FieldNames returns the declared field names in declaration order.
func (d KindDescriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

var descriptors = map[Kind]KindDescriptor{
	KindPerpetrator: {
		Kind:        KindPerpetrator,
		SearchField: "name",
		RegionField: "region",
		Fields: []FieldDefinition{
			{Name: "name", Type: FieldTypeString, Required: true},
			{Name: "alias", Type: FieldTypeString, Mutable: true},
			{Name: "rank", Type: FieldTypeString, Mutable: true},
			{Name: "unit", Type: FieldTypeString, Mutable: true},
			{Name: "status", Type: FieldTypeString, Required: true, Mutable: true,
				Enum: []string{"active", "arrested", "convicted", "deceased", "unknown"}},
			{Name: "region", Type: FieldTypeString, Mutable: true, Enum: RegionNames()},
			{Name: "description", Type: FieldTypeString, Mutable: true},
			{Name: "last_seen_date", Type: FieldTypeTimestamp, Mutable: true},
			{Name: "photo_links", Type: FieldTypeStringList, Mutable: true},
			{Name: "source_links", Type: FieldTypeStringList, Mutable: true},
		},
	},
	KindVictim: {
		Kind:        KindVictim,
		SearchField: "name",
		RegionField: "region",
		Fields: []FieldDefinition{
			{Name: "name", Type: FieldTypeString, Required: true},
			{Name: "age", Type: FieldTypeInteger, Mutable: true},
			{Name: "status", Type: FieldTypeString, Required: true, Mutable: true,
				Enum: []string{"killed", "injured", "detained", "missing", "released"}},
			{Name: "date", Type: FieldTypeTimestamp, Mutable: true},
			{Name: "region", Type: FieldTypeString, Mutable: true, Enum: RegionNames()},
			{Name: "description", Type: FieldTypeString, Mutable: true},
			{Name: "source_links", Type: FieldTypeStringList, Mutable: true},
		},
	},
	KindIncident: {
		Kind:        KindIncident,
		SearchField: "title",
		RegionField: "region",
		Fields: []FieldDefinition{
			{Name: "title", Type: FieldTypeString, Required: true},
			{Name: "incident_type", Type: FieldTypeString, Required: true, Mutable: true,
				Enum: []string{"protest_suppression", "arrest_raid", "shooting", "detention", "other"}},
			{Name: "date", Type: FieldTypeTimestamp, Mutable: true},
			{Name: "region", Type: FieldTypeString, Mutable: true, Enum: RegionNames()},
			{Name: "description", Type: FieldTypeString, Mutable: true},
			{Name: "casualties", Type: FieldTypeInteger, Mutable: true},
			{Name: "source_links", Type: FieldTypeStringList, Mutable: true},
		},
	},
}

// DescriptorFor returns the schema descriptor for kind.
func DescriptorFor(kind Kind) (KindDescriptor, bool) {
	d, ok := descriptors[kind]
	return d, ok
}

// Kinds returns every documented kind.
func Kinds() []Kind {
	return []Kind{KindPerpetrator, KindVictim, KindIncident}
}
