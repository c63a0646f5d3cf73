package domain

// Book groups chapters published by the author.
type Book struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Chapters int    `json:"chapters"`
}

// Chapter is one unit of published text. Lines carry the canonical
// numbering computed by NumberLines at load time; everything downstream
// (likes, comments, deep links) refers to those indices.
type Chapter struct {
	ID      string `json:"id"`
	BookID  string `json:"book_id"`
	Title   string `json:"title"`
	Ordinal int    `json:"ordinal"`
	Body    string `json:"body"`
	Lines   []Line `json:"lines"`
}
