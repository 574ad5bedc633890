package offline

// EntityMap maps REST collection names to Local Store partitions. Entities
// missing from the map bypass the cache entirely.
type EntityMap map[string]string

// DefaultEntityMap returns the school portal's collections.
func DefaultEntityMap() EntityMap {
	return EntityMap{
		"students":      "students",
		"staff":         "staff",
		"results":       "results",
		"attendance":    "attendance",
		"subjects":      "subjects",
		"classes":       "classes",
		"fees":          "fees",
		"timetable":     "timetable",
		"exams":         "exams",
		"parents":       "parents",
		"announcements": "announcements",
		"library":       "library",
	}
}

// Partition returns the partition for entity.
func (m EntityMap) Partition(entity string) (string, bool) {
	p, ok := m[entity]
	return p, ok
}
