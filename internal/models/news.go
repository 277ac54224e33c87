package models

// NewsArticle is a raw article as returned by a news search backend.
type NewsArticle struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	SourceID    string `json:"source_id"`
	PubDate     string `json:"pubDate"`
}
