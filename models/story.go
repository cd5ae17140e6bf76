package models

// StoryItem is one player-submitted piece of text used as round material.
// The story list built at game start keeps a nil sentinel at index 0 so that
// round numbers address it 1-based.
type StoryItem struct {
	AuthorID string `json:"author_id"`
	Text     string `json:"text"`
}
