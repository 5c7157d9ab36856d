package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	WorkItemID key = "work_item_id"
	Workspace  key = "workspace"
	Isolation  key = "isolation"
)
