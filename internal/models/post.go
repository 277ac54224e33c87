package models

// PostRecord is a social-media post handed to the pipeline by the extraction layer.
type PostRecord struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
}
