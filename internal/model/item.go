package model

// Item is the only persisted entity.  This struct corresponds to a row in the
// `items` table.  ID is assigned by the store and never changes; Name is
// required; Description defaults to the empty string.
type Item struct {
	ID          int64  `db:"id" json:"id"`                   // items.id
	Name        string `db:"name" json:"name"`               // items.name
	Description string `db:"description" json:"description"` // items.description
}
