package event

import "time"

const (
	// DocumentsTopicPrefix is followed by the collection name, e.g. stand.docs.orders.
	DocumentsTopicPrefix = "stand.docs."
	// DocumentsWildcard matches change notifications for every collection.
	DocumentsWildcard = DocumentsTopicPrefix + ">"

	EventDocumentCreated = "document.created"
	EventDocumentUpdated = "document.updated"
	EventDocumentDeleted = "document.deleted"
)

// DocumentsTopic returns the subject carrying change notifications for a collection.
func DocumentsTopic(collection string) string {
	return DocumentsTopicPrefix + collection
}

// DocumentEvent tells live queries that a collection changed and should be re-read.
// It carries no document body; subscribers fetch the current result set themselves.
type DocumentEvent struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Collection string    `json:"collection"`
	DocumentID string    `json:"document_id"`
	Fields     []string  `json:"fields,omitempty"`
	Source     string    `json:"source,omitempty"`
}
