package database

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/pkg/errors"
)

type Query struct {
	Select    string
	Where     string
	WhereArgs []interface{}
	OrderBy   string
	Limit     uint64
	Offset    uint64
	InnerJoin string
}

func debugQuery(query string, args []interface{}) {
	if strings.EqualFold(DBLogLevel, "debug") {
		logger.Log.Debug("query: ", query, " -args: ", args)
	}
}

func buildquery(columns string, table string, qu Query, count bool) string {
	var query strings.Builder
	query.WriteString("select ")

	if qu.InnerJoin != "" {
		switch {
		case strings.Contains(columns, table+"."):
			query.WriteString(columns + " from " + table)
		case count:
			query.WriteString("count(*) from " + table)
		default:
			query.WriteString(table + ".* from " + table)
		}
		query.WriteString(" inner join " + qu.InnerJoin)
	} else {
		query.WriteString(columns + " from " + table)
	}
	if qu.Where != "" {
		query.WriteString(" where " + qu.Where)
	}
	if qu.OrderBy != "" && !count {
		query.WriteString(" order by " + qu.OrderBy)
	}
	if qu.Limit != 0 {
		if qu.Offset != 0 {
			query.WriteString(" limit " + strconv.Itoa(int(qu.Offset)) + ", " + strconv.Itoa(int(qu.Limit)))
		} else {
			query.WriteString(" limit " + strconv.Itoa(int(qu.Limit)))
		}
	}
	return query.String()
}

// queryStructs scans all matching rows into T.
func queryStructs[T any](table string, qu Query) ([]T, error) {
	columns := "*"
	if qu.Select != "" {
		columns = qu.Select
	}
	query := buildquery(columns, table, qu, false)
	debugQuery(query, qu.WhereArgs)
	rows, err := DB.Queryx(query, qu.WhereArgs...)
	if err != nil {
		logger.Log.Error("Query: ", query, " error: ", err)
		return nil, err
	}
	defer rows.Close()

	capacity := 10
	if qu.Limit >= 1 {
		capacity = int(qu.Limit)
	}
	result := make([]T, 0, capacity)
	for rows.Next() {
		var item T
		if err := rows.StructScan(&item); err != nil {
			logger.Log.Error("Query2: ", query, " error: ", err)
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// getStruct returns the first matching row or logger.ErrNotFound.
func getStruct[T any](table string, qu Query) (T, error) {
	qu.Limit = 1
	results, err := queryStructs[T](table, qu)
	if err != nil {
		var empty T
		return empty, err
	}
	if len(results) == 0 {
		var empty T
		return empty, errors.Wrap(logger.ErrNotFound, table)
	}
	return results[0], nil
}

func CountRows(table string, qu Query) (int, error) {
	qu.Offset = 0
	qu.Limit = 0
	query := buildquery("count(*)", table, qu, true)
	debugQuery(query, qu.WhereArgs)
	var counter int
	if err := DB.QueryRow(query, qu.WhereArgs...).Scan(&counter); err != nil {
		logger.Log.Error("Query: ", query, " error: ", err)
		return 0, err
	}
	return counter, nil
}

// queryID returns the id of the first row or 0.
func queryID(table string, qu Query) (int64, error) {
	qu.Limit = 1
	query := buildquery("id", table, qu, false)
	debugQuery(query, qu.WhereArgs)
	var id int64
	err := DB.QueryRow(query, qu.WhereArgs...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

func insertarrayprepare(table string, columns []string) string {
	var query strings.Builder
	query.WriteString("INSERT INTO " + table + " (")
	query.WriteString(strings.Join(columns, ","))
	query.WriteString(") VALUES (")
	for idx := range columns {
		if idx != 0 {
			query.WriteString(",")
		}
		query.WriteString("?")
	}
	query.WriteString(")")
	return query.String()
}

func InsertArray(table string, columns []string, values []interface{}) (sql.Result, error) {
	result, err := dbexec(insertarrayprepare(table, columns), values)
	if err != nil {
		logger.Log.Error("Insert: ", table, " values: ", columns, values, " error: ", err)
	}
	return result, err
}

func updatearrayprepare(table string, columns []string, values []interface{}, qu Query) (string, []interface{}) {
	var query strings.Builder
	query.WriteString("UPDATE " + table + " SET ")
	for idx := range columns {
		if idx != 0 {
			query.WriteString(",")
		}
		query.WriteString(columns[idx] + " = ?")
	}
	if qu.Where != "" {
		query.WriteString(" where " + qu.Where)
	}
	args := make([]interface{}, 0, len(values)+len(qu.WhereArgs))
	args = append(args, values...)
	args = append(args, qu.WhereArgs...)
	return query.String(), args
}

func UpdateArray(table string, columns []string, values []interface{}, qu Query) (sql.Result, error) {
	query, args := updatearrayprepare(table, columns, values, qu)
	result, err := dbexec(query, args)
	if err != nil {
		logger.Log.Error("Update: ", table, " values: ", columns, values, " where: ", qu.Where, " whereargs: ", qu.WhereArgs, " error: ", err)
	}
	return result, err
}

func UpdateColumn(table string, column string, value interface{}, qu Query) (sql.Result, error) {
	return UpdateArray(table, []string{column}, []interface{}{value}, qu)
}

func DeleteRow(table string, qu Query) (sql.Result, error) {
	query := "DELETE FROM " + table
	if qu.Where != "" {
		query += " where " + qu.Where
	}
	result, err := dbexec(query, qu.WhereArgs)
	if err != nil {
		logger.Log.Error("Delete: ", table, " where: ", qu.Where, " whereargs: ", qu.WhereArgs, " error: ", err)
	}
	return result, err
}

func dbexec(query string, args []interface{}) (sql.Result, error) {
	if DB == nil {
		return nil, errors.New("database not initialized")
	}
	debugQuery(query, args)
	ReadWriteMu.Lock()
	defer ReadWriteMu.Unlock()
	return DB.Exec(query, args...)
}

// upsertRow updates the row found by the first matching lookup or inserts a
// new one. Lookup, update and insert run under the write lock so concurrent
// upserts of the same entity do not create two rows.
func upsertRow(table string, lookups []Query, columns []string, values []interface{}) (int64, error) {
	ReadWriteMu.Lock()
	defer ReadWriteMu.Unlock()

	var id int64
	for idx := range lookups {
		found, err := queryID(table, lookups[idx])
		if err != nil {
			return 0, errors.Wrapf(err, "lookup %s", table)
		}
		if found != 0 {
			id = found
			break
		}
	}
	if id != 0 {
		if len(columns) == 0 {
			return id, nil
		}
		query, args := updatearrayprepare(table, append(columns, "updated_at"), append(values, time.Now()), Query{Where: "id = ?", WhereArgs: []interface{}{id}})
		debugQuery(query, args)
		if _, err := DB.Exec(query, args...); err != nil {
			return 0, errors.Wrapf(err, "update %s", table)
		}
		return id, nil
	}
	query := insertarrayprepare(table, columns)
	if len(columns) == 0 {
		query = "INSERT INTO " + table + " DEFAULT VALUES"
	}
	debugQuery(query, values)
	result, err := DB.Exec(query, values...)
	if err != nil {
		return 0, errors.Wrapf(err, "insert %s", table)
	}
	return result.LastInsertId()
}
