package store

import "github.com/kimhsiao/campusync/internal/db"

// Partition names of the bookkeeping partitions.
const (
	SyncQueuePartition   = "syncQueue"
	ConflictLogPartition = "conflictLog"
)

// SchemaVersion is the version of DefaultSchema. Bump it whenever a
// partition or index is added.
const SchemaVersion = 2

func byRecordField(name, field string) db.IndexSpec {
	return db.IndexSpec{Name: name, KeyPath: "record." + field}
}

// DefaultSchema declares the school portal's partitions.
func DefaultSchema() db.Schema {
	return db.Schema{
		Version: SchemaVersion,
		Partitions: []db.PartitionSpec{
			{Name: "students", Indexes: []db.IndexSpec{
				byRecordField("byClass", "classId"),
				byRecordField("byAdmissionNo", "admissionNo"),
			}},
			{Name: "staff", Indexes: []db.IndexSpec{
				byRecordField("byDepartment", "department"),
			}},
			{Name: "results", Indexes: []db.IndexSpec{
				byRecordField("byStudent", "studentId"),
				byRecordField("byExam", "examId"),
			}},
			{Name: "attendance", Indexes: []db.IndexSpec{
				byRecordField("byStudent", "studentId"),
				byRecordField("byDate", "date"),
			}},
			{Name: "subjects", Indexes: []db.IndexSpec{
				byRecordField("byClass", "classId"),
			}},
			{Name: "classes"},
			{Name: "fees", Indexes: []db.IndexSpec{
				byRecordField("byStudent", "studentId"),
				byRecordField("byStatus", "status"),
			}},
			{Name: "timetable", Indexes: []db.IndexSpec{
				byRecordField("byClass", "classId"),
			}},
			{Name: "exams", Indexes: []db.IndexSpec{
				byRecordField("byClass", "classId"),
			}},
			{Name: "parents", Indexes: []db.IndexSpec{
				byRecordField("byStudent", "studentId"),
			}},
			{Name: "announcements"},
			{Name: "library"},
			{Name: SyncQueuePartition, Indexes: []db.IndexSpec{
				{Name: "byStatus", KeyPath: "status"},
				{Name: "byEntity", KeyPath: "entityName"},
			}},
			{Name: ConflictLogPartition, Indexes: []db.IndexSpec{
				{Name: "byEntity", KeyPath: "entityName"},
			}},
		},
	}
}
