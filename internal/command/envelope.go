// Package command decodes command envelopes, dispatches them to the note
// engine and encodes the JSON responses shared by every front-end.
package command

// Actions accepted in the envelope's action field.
const (
	ActionInsert           = "insert"
	ActionInsertImage      = "insert-image"
	ActionDelete           = "delete"
	ActionSelect           = "select"
	ActionSearch           = "search"
	ActionFilter           = "filter"
	ActionSyncViaAttach    = "sync-via-attach"
	ActionUpgrade          = "upgrade"
	ActionServer           = "server"
	ActionClientSync       = "client-sync"
	ActionClientStopServer = "client-stop-server"
)

// Envelope carries the discriminator of every command.
type Envelope struct {
	Action string `json:"action"`
}

// Page is the pagination shared by listing commands.
type Page struct {
	Limit  int64 `json:"limit"`
	Offset int64 `json:"offset"`
}

// Insert creates a note; insert-image uses the same shape with a data URL
// in Annotations.
type Insert struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Tags        string `json:"tags"`
	Description string `json:"description"`
	Comments    string `json:"comments"`
	Annotations string `json:"annotations"`
	IsPublic    bool   `json:"is_public"`
	Page
}

// Delete removes a note and answers with a search on Query.
type Delete struct {
	RowID int64  `json:"rowid"`
	Query string `json:"query"`
	Page
}

// Select lists all notes.
type Select struct {
	Page
}

// Search lists notes matching Query.
type Search struct {
	Query string `json:"query"`
	Page
}

// Filter lists notes matching Query created within [From, To].
type Filter struct {
	Query string `json:"query"`
	From  string `json:"from"`
	To    string `json:"to"`
	Page
}

// SyncViaAttach merges another store file.
type SyncViaAttach struct {
	URI string `json:"uri"`
}

// Peer addresses a sync server.
type Peer struct {
	Addr string `json:"addr"`
}

// ErrorResponse is the transport form of every failure.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
