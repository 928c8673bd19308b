package models

// Participant is a person who can be enrolled, as supplied by the
// participant directory.
type Participant struct {
	ID              string `db:"id" json:"id"`
	Name            string `db:"name" json:"name"`
	OwnerCustomerID string `db:"owner_customer_id" json:"owner_customer_id"`
}

// ParticipantFilter scopes directory lookups.
type ParticipantFilter struct {
	Query    string
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
