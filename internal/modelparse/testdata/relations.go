package testdata

type Author struct {
	ID   int
	Name string
	// has_many: Author has many Articles
	Articles []Article `rel:"has_many,foreign_key:author_id"`
	Avatar   *Image    `rel:"morph_one,morph:imageable"`
}

type Article struct {
	ID       int
	AuthorID int
	Title    string
	// belongs_to: Article belongs to Author
	Author   *Author   `rel:"belongs_to,foreign_key:author_id"`
	Comments []Comment `rel:"morph_many,morph:commentable"`
}

type Comment struct {
	ID              int
	CommentableID   int
	CommentableType string
	Body            string
	Commentable     any `rel:"morph_to,morph:commentable,types:Article|Author"`
}

type Image struct {
	ID            int
	ImageableID   int
	ImageableType string
}
