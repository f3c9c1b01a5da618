package domain

// Page is one cleaned corpus document before chunking: a crawled faculty
// page or an uploaded file.
type Page struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	LastModified string `json:"lastmod,omitempty"`
	Lang         string `json:"lang,omitempty"`
	Text         string `json:"text"`
}
