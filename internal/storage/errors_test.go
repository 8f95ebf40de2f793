package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdnilsen/eliot-web/internal/util"
)

func TestClassify(t *testing.T) {
	require.NoError(t, classify("noop", nil))

	err := classify("fetch verse rows", fmt.Errorf("read: %w", io.ErrUnexpectedEOF))
	require.ErrorIs(t, err, util.ErrStoreUnavailable)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, util.Retryable(err))
	assert.Contains(t, err.Error(), "fetch verse rows")

	err = classify("upsert", &pgconn.PgError{Code: "23505", Message: "duplicate key"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, util.ErrStoreUnavailable))

	err = classify("upsert", &pgconn.PgError{Code: "08006", Message: "connection failure"})
	assert.True(t, util.Retryable(err))

	err = classify("query", context.Canceled)
	assert.False(t, util.Retryable(err))
}

func TestSchemaFollowsEditionColumns(t *testing.T) {
	ddl := postgresSchema()
	for _, c := range []string{"first_edition TEXT", "second_edition TEXT", "mayhew TEXT", "zeroth_edition TEXT", "kjv TEXT", "grebrew TEXT"} {
		assert.Contains(t, ddl, c)
	}
	assert.Less(t, strings.Index(ddl, "zeroth_edition"), strings.Index(ddl, "kjv"))
	assert.Contains(t, upsertVerseSQL, "$10")
	assert.Equal(t, 10, len(allVerseColumns()))
}

func TestVerseRowFromValues(t *testing.T) {
	row, err := verseRowFromValues([]any{int64(1008001001), "Ruth", int32(1), int32(1), "Ne woh", nil, nil, nil, "In the days", nil})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ne woh", "", "", "", "In the days", ""}, row.Texts)
	assert.Equal(t, 1, row.Chapter)

	_, err = verseRowFromValues([]any{"x", "Ruth", 1, 1})
	require.Error(t, err)
}
