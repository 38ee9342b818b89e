package query

import "strconv"

// Paginate resolves cursor based pagination options against a maximum page
// size. A zero or missing limit selects the maximum.
func Paginate(maxLimit uint64, opts ...Option) (*QueryOptions, error) {
	req := QueryOptions{
		Limit:     maxLimit,
		SortBy:    Ascending,
		Supported: CanLimitResults | CanSortBy | CanQueryByCursor,
	}
	if err := req.Apply(opts...); err != nil {
		return nil, err
	}

	if req.Limit == 0 {
		req.Limit = maxLimit
	}
	if req.Limit > maxLimit {
		return nil, ErrQueryNotSupported
	}

	return &req, nil
}

// PaginateQuery appends id based paging clauses to a query of the form
// "SELECT ... WHERE (...)". The parenthesized condition is required.
//
//	PaginateQuery("SELECT * FROM t WHERE (owner = $1)", []interface{}{owner}, ToCursor(7), 10, Descending)
//	> "SELECT * FROM t WHERE (owner = $1) AND id < $2 ORDER BY id DESC LIMIT $3"
func PaginateQuery(query string, args []interface{}, cursor Cursor, limit uint64, direction Ordering) (string, []interface{}) {
	if !cursor.IsEmpty() {
		comparator := " > $"
		if direction == Descending {
			comparator = " < $"
		}
		args = append(args, cursor.ToUint64())
		query += " AND id" + comparator + strconv.Itoa(len(args))
	}

	query += " ORDER BY id " + direction.sql()

	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	return query, args
}
