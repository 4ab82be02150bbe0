package testdata

type Event struct {
	Name string `db:"name"`
	At   int64  `db:"at"`
}
