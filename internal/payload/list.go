package payload

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

type (
	// ListReqQuery is the paging part of a list request, read from the query string.
	// Requests that filter on more fields declare page_index and page_size themselves, since gin
	// does not validate embedded query structs.
	ListReqQuery struct {
		PageIndex *int `form:"page_index" binding:"required,min=0"`
		PageSize  *int `form:"page_size" binding:"required,min=1,max=200"`
	}
	ListResp[T any] struct {
		Rows  []T   `json:"rows"`
		Count int64 `json:"count"`
	}
)

func (q *ListReqQuery) Page() (index, size int) {
	return *q.PageIndex, *q.PageSize
}
