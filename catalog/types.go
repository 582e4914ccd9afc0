package catalog

// Kind names a catalog entity kind. Listings are fetched and cached per kind.
type Kind string

const (
	KindProject    Kind = "project"
	KindDatasource Kind = "datasource"
	KindWorkbook   Kind = "workbook"
	KindView       Kind = "view"
	KindUser       Kind = "user"
	KindFlow       Kind = "flow"
)

// collection is the URL path segment for a kind's listing endpoint.
func (k Kind) collection() string {
	return string(k) + "s"
}

// Entity is a catalog object with its stable identifier and the metadata the
// server returns alongside listings.
type Entity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ProjectID   string `json:"projectId,omitempty"`
	ProjectName string `json:"projectName,omitempty"`
	OwnerID     string `json:"ownerId,omitempty"`
	OwnerName   string `json:"ownerName,omitempty"`
}

// Credentials carries both supported credential pairs. Username/password
// takes precedence when both pairs are complete.
type Credentials struct {
	Username    string
	Password    string
	TokenID     string
	TokenSecret string
}

// HasUserPair reports whether the username/password pair is complete.
func (c Credentials) HasUserPair() bool {
	return c.Username != "" && c.Password != ""
}

// HasTokenPair reports whether the token pair is complete.
func (c Credentials) HasTokenPair() bool {
	return c.TokenID != "" && c.TokenSecret != ""
}

// Complete reports whether at least one credential pair is usable.
func (c Credentials) Complete() bool {
	return c.HasUserPair() || c.HasTokenPair()
}
