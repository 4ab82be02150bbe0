package models

type Post struct {
	ID     int64  `db:"id,primaryKey"`
	UserID int64  `db:"user_id"`
	Title  string `db:"title"`
	Tags   []Tag  `rel:"belongs_to_many"`
}
