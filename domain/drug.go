package domain

type DrugStock struct {
	Name     string `db:"name" json:"name"`
	Stock    int64  `db:"stock" json:"stock"`
	Form     string `db:"form" json:"form"`
	Strength string `db:"strength" json:"strength"`
	Category string `db:"category" json:"category"`
}
