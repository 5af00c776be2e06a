package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func testProvider(t *testing.T) *StaticProvider {
	t.Helper()

	p, err := NewStaticProvider(
		&Collection{
			Code:       "tickets",
			PrimaryKey: "id",
			Properties: []*Property{
				{Code: "title", Type: TypeText},
				{Code: "assignee_id", Type: TypeReference, Reference: &Reference{TargetCollection: "users"}},
				{Code: "watcher_ids", Type: TypeReference, Reference: &Reference{TargetCollection: "users", Multi: true}},
			},
		},
		&Collection{
			Code:       "users",
			PrimaryKey: "id",
			Properties: []*Property{
				{Code: "name", Type: TypeText},
				{Code: "manager_id", Type: TypeReference, Reference: &Reference{TargetCollection: "users"}},
			},
		},
		&Collection{
			Code:       "orders",
			PrimaryKey: "id",
			Properties: []*Property{
				{Code: "total", Type: TypeNumber},
				{Code: "broken_ref", Type: TypeReference},
			},
		},
	)
	require.NoError(t, err)
	return p
}

func TestGetCollection(t *testing.T) {
	p := testProvider(t)

	c, err := p.GetCollection(context.Background(), "tickets")
	require.NoError(t, err)
	require.Equal(t, "tickets", c.Code)

	_, err = p.GetCollection(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetProperty(t *testing.T) {
	p := testProvider(t)

	prop, err := p.GetProperty(context.Background(), "users", "name")
	require.NoError(t, err)
	require.Equal(t, TypeText, prop.Type)

	_, err = p.GetProperty(context.Background(), "users", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListReferenceProperties(t *testing.T) {
	p := testProvider(t)

	refs, err := p.ListReferenceProperties(context.Background(), "tickets")
	require.NoError(t, err)
	require.Len(t, refs, 2)
}

func TestGetReferenceTarget(t *testing.T) {
	p := testProvider(t)
	ctx := context.Background()

	ref, err := p.GetReferenceTarget(ctx, "tickets", "assignee_id")
	require.NoError(t, err)
	require.Equal(t, "users", ref.TargetCollection)
	require.False(t, ref.Multi)

	_, err = p.GetReferenceTarget(ctx, "tickets", "title")
	var invalidErr *InvalidReferenceError
	require.True(t, errors.As(err, &invalidErr))

	_, err = p.GetReferenceTarget(ctx, "orders", "broken_ref")
	require.True(t, errors.As(err, &invalidErr))
	require.Equal(t, "missing target collection", invalidErr.Reason)
}

func TestListReferencingCollections(t *testing.T) {
	p := testProvider(t)

	codes, err := p.ListReferencingCollections(context.Background(), "users")
	require.NoError(t, err)
	require.Equal(t, []string{"tickets", "users"}, codes)

	codes, err = p.ListReferencingCollections(context.Background(), "orders")
	require.NoError(t, err)
	require.Empty(t, codes)
}

func TestDuplicateCollectionRejected(t *testing.T) {
	_, err := NewStaticProvider(
		&Collection{Code: "a"},
		&Collection{Code: "a"},
	)
	require.Error(t, err)
}
