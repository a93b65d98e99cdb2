package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresSinkWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresSinkWithPool(nil, "cases")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresSinkWithPool(mock, "cases; DROP TABLE x")
	require.Error(t, err)

	s, err := NewPostgresSinkWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, "cjeu_cases", s.table)
}

func TestNewPostgresSinkRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewPostgresSink(context.Background(), PostgresConfig{})
	require.Error(t, err)
}

func TestPostgresSinkEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresSinkWithPool(mock, "cases")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cases").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkAppendUpsertsInTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresSinkWithPool(mock, "cases")
	require.NoError(t, err)

	recs := sampleRecords()
	mock.ExpectBegin()
	for _, rec := range recs {
		mock.ExpectExec("INSERT INTO cases").
			WithArgs(rec.URL, rec.Identifier.String(), rec.Content, rec.Source).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	loc, err := s.Append(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, "postgres://cases?rows=2", loc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkAppendRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresSinkWithPool(mock, "cases")
	require.NoError(t, err)

	recs := sampleRecords()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cases").
		WithArgs(recs[0].URL, recs[0].Identifier.String(), recs[0].Content, recs[0].Source).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = s.Append(context.Background(), recs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkAppendBeginFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewPostgresSinkWithPool(mock, "cases")
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	_, err = s.Append(context.Background(), sampleRecords())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
