package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRecipeID is the standardized structured logging key for recipe identifiers.
	FieldRecipeID = "recipe_id"
	// FieldScheduleID is the standardized structured logging key for schedule identifiers.
	FieldScheduleID = "schedule_id"
	// FieldRunID is the standardized structured logging key for compilation run identifiers.
	FieldRunID = "run_id"
	// FieldJobHandle is the standardized structured logging key for external job handles.
	FieldJobHandle = "job_handle"
	// FieldQueue is the standardized structured logging key for execution queue names.
	FieldQueue = "queue"
	// FieldOwnerID is the standardized structured logging key for content owner identifiers.
	FieldOwnerID = "owner_id"
)
