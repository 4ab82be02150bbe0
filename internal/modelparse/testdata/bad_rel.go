package testdata

type Broken struct {
	ID    int
	Items []Item `rel:"has_many,pivot:items_pivot"`
}

type Item struct {
	ID int
}
