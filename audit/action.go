package audit

import "time"

// ObjectKind classifies the catalog object an action touched.
type ObjectKind string

const (
	ObjectWorkbook   ObjectKind = "Workbook"
	ObjectDatasource ObjectKind = "Datasource"
	ObjectView       ObjectKind = "View"
	ObjectExtract    ObjectKind = "Extract"
	ObjectFlow       ObjectKind = "Flow"
)

// Action is one immutable audit record, created exactly once per
// catalog-affecting operation. Once appended it is owned by the ledger and is
// never mutated or deleted, only flushed.
type Action struct {
	Timestamp   time.Time
	SiteID      string
	ProjectName string
	ProjectID   string
	ObjectName  string
	ObjectID    string
	ObjectKind  ObjectKind
	OwnerName   string
	OwnerID     string
	FilePath    string
	ActionType  string
	ActionLog   string
}

// NewAction creates a record stamped with the current time.
func NewAction(kind ObjectKind, actionType, actionLog string) Action {
	return Action{
		Timestamp:  time.Now().UTC(),
		ObjectKind: kind,
		ActionType: actionType,
		ActionLog:  actionLog,
	}
}
