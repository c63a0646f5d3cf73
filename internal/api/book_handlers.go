package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/marginaliapress/marginalia-server/internal/domain"
)

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "List books",
		Description: "Returns all published books",
		Tags:        []string{"Content"},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{bookID}",
		Summary:     "Get book",
		Description: "Returns a book by ID",
		Tags:        []string{"Content"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "listChapters",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{bookID}/chapters",
		Summary:     "List chapters",
		Description: "Returns a book's chapters in reading order, without bodies",
		Tags:        []string{"Content"},
	}, s.handleListChapters)

	huma.Register(s.api, huma.Operation{
		OperationID: "getChapter",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{bookID}/chapters/{stem}",
		Summary:     "Get chapter",
		Description: "Returns one chapter with its numbered lines",
		Tags:        []string{"Content"},
	}, s.handleGetChapter)
}

// === DTOs ===

// BookResponse contains book data in API responses.
type BookResponse struct {
	ID       string `json:"id" doc:"Book ID"`
	Title    string `json:"title" doc:"Book title"`
	Chapters int    `json:"chapters" doc:"Number of chapters"`
}

// ListBooksOutput wraps the book list for Huma.
type ListBooksOutput struct {
	Body struct {
		Books []BookResponse `json:"books" doc:"All published books"`
	}
}

// GetBookInput contains parameters for getting a book.
type GetBookInput struct {
	BookID string `path:"bookID" doc:"Book ID"`
}

// BookOutput wraps a single book for Huma.
type BookOutput struct {
	Body BookResponse
}

// ChapterSummaryResponse describes a chapter without its text.
type ChapterSummaryResponse struct {
	ID      string `json:"id" doc:"Chapter ID"`
	Title   string `json:"title" doc:"Chapter title"`
	Ordinal int    `json:"ordinal" doc:"Position within the book"`
	Lines   int    `json:"lines" doc:"Number of numbered lines"`
}

// ListChaptersInput contains parameters for listing chapters.
type ListChaptersInput struct {
	BookID string `path:"bookID" doc:"Book ID"`
}

// ListChaptersOutput wraps the chapter list for Huma.
type ListChaptersOutput struct {
	Body struct {
		Chapters []ChapterSummaryResponse `json:"chapters" doc:"Chapters in reading order"`
	}
}

// GetChapterInput contains parameters for getting a chapter.
type GetChapterInput struct {
	BookID string `path:"bookID" doc:"Book ID"`
	Stem   string `path:"stem" doc:"Chapter file stem, e.g. 01-the-harbor"`
}

// LineResponse is one numbered line of chapter text.
type LineResponse struct {
	Index int    `json:"index" doc:"1-based line number"`
	Text  string `json:"text" doc:"Line text"`
	Blank bool   `json:"blank,omitempty" doc:"True when the line is blank"`
}

// ChapterResponse contains a full chapter with numbered lines.
type ChapterResponse struct {
	ID      string         `json:"id" doc:"Chapter ID"`
	BookID  string         `json:"book_id" doc:"Owning book ID"`
	Title   string         `json:"title" doc:"Chapter title"`
	Ordinal int            `json:"ordinal" doc:"Position within the book"`
	Lines   []LineResponse `json:"lines" doc:"Numbered lines, blanks included"`
}

// ChapterOutput wraps a chapter for Huma.
type ChapterOutput struct {
	Body ChapterResponse
}

// === Handlers ===

func (s *Server) handleListBooks(_ context.Context, _ *struct{}) (*ListBooksOutput, error) {
	books := s.library.ListBooks()

	out := &ListBooksOutput{}
	out.Body.Books = make([]BookResponse, len(books))
	for i, b := range books {
		out.Body.Books[i] = BookResponse{ID: b.ID, Title: b.Title, Chapters: b.Chapters}
	}
	return out, nil
}

func (s *Server) handleGetBook(_ context.Context, input *GetBookInput) (*BookOutput, error) {
	book, err := s.library.GetBook(input.BookID)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: BookResponse{ID: book.ID, Title: book.Title, Chapters: book.Chapters}}, nil
}

func (s *Server) handleListChapters(_ context.Context, input *ListChaptersInput) (*ListChaptersOutput, error) {
	chapters, err := s.library.ListChapters(input.BookID)
	if err != nil {
		return nil, err
	}

	out := &ListChaptersOutput{}
	out.Body.Chapters = make([]ChapterSummaryResponse, len(chapters))
	for i, ch := range chapters {
		out.Body.Chapters[i] = ChapterSummaryResponse{
			ID:      ch.ID,
			Title:   ch.Title,
			Ordinal: ch.Ordinal,
			Lines:   len(ch.Lines),
		}
	}
	return out, nil
}

func (s *Server) handleGetChapter(_ context.Context, input *GetChapterInput) (*ChapterOutput, error) {
	chapter, err := s.library.GetChapter(input.BookID + "/" + input.Stem)
	if err != nil {
		return nil, err
	}

	return &ChapterOutput{Body: chapterResponse(chapter)}, nil
}

func chapterResponse(chapter *domain.Chapter) ChapterResponse {
	lines := make([]LineResponse, len(chapter.Lines))
	for i, l := range chapter.Lines {
		lines[i] = LineResponse{Index: l.Index, Text: l.Text, Blank: l.Blank}
	}
	return ChapterResponse{
		ID:      chapter.ID,
		BookID:  chapter.BookID,
		Title:   chapter.Title,
		Ordinal: chapter.Ordinal,
		Lines:   lines,
	}
}
