package types

// Event is the generic payload emitted by vault settlements and compliance
// updates. Attributes carry the rendered fields an indexer needs without
// access to the originating types.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
